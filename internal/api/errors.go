package api

import (
	"errors"
	"fmt"
)

// 错误码
const (
	// ErrorConnection - 建立连接失败
	ErrorConnection = iota + 100
	// ErrorRead - 读取消息失败 (连接已断开)
	ErrorRead
	// ErrorClose - 关闭连接失败
	ErrorClose
	// ErrorDecode - 上游消息无法解析
	ErrorDecode
	// ErrorHTTPStatus - REST 接口返回非 200
	ErrorHTTPStatus
)

// Error 带错误码的上游错误
type Error struct {
	Code int
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("api error %d: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError - Error constructor
func NewError(code int, err error) error {
	return &Error{Code: code, Err: err}
}

func NewConnectionError(err error) error { return NewError(ErrorConnection, err) }
func NewReadError(err error) error       { return NewError(ErrorRead, err) }
func NewCloseError(err error) error      { return NewError(ErrorClose, err) }
func NewDecodeError(err error) error     { return NewError(ErrorDecode, err) }

// NewHTTPStatusError 非 200 响应
func NewHTTPStatusError(status int, body []byte) error {
	if len(body) > 256 {
		body = body[:256]
	}
	return NewError(ErrorHTTPStatus, fmt.Errorf("status %d: %s", status, body))
}

// IsCode 判断 err 链中是否包含指定错误码
func IsCode(err error, code int) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
