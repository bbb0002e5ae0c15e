package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"crypto-rsi-scanner/internal/model"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Querier 引擎对外的两个只读操作
type Querier interface {
	GetSnapshot(ctx context.Context, seg model.Segment, limit int) []model.SnapshotEntry
	GetConnectionStatus() model.ConnectionStatus
}

// NewRouter 注册查询接口、健康检查和 /metrics
func NewRouter(q Querier, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	r.GET("/healthz", handleHealthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.GET("/snapshot", snapshotHandler(q))
	api.GET("/status", statusHandler(q))
	return r
}

func handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// snapshotHandler GET /api/snapshot?market=spot&limit=20
func snapshotHandler(q Querier) gin.HandlerFunc {
	return func(c *gin.Context) {
		market := c.DefaultQuery("market", string(model.SegmentSpot))
		seg, ok := model.ParseSegment(market)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown market " + market})
			return
		}

		limit := defaultLimit
		if raw := c.Query("limit"); raw != "" {
			var err error
			limit, err = strconv.Atoi(raw)
			if err != nil || limit < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
				return
			}
		}
		if limit > maxLimit {
			limit = maxLimit
		}

		entries := q.GetSnapshot(c.Request.Context(), seg, limit)
		if entries == nil {
			entries = []model.SnapshotEntry{}
		}
		c.JSON(http.StatusOK, gin.H{
			"market": seg,
			"count":  len(entries),
			"data":   entries,
		})
	}
}

func statusHandler(q Querier) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, q.GetConnectionStatus())
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
