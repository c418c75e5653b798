package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"momsvpn/backend/logging"
	"momsvpn/backend/repository"
	"momsvpn/backend/service"
	"momsvpn/backend/service/panel"
)

const requestIDHeader = "X-Request-ID"

// Options 路由参数
type Options struct {
	AdminUsername string
	// AdminPasswordHash 为空时管理接口全部返回 401
	AdminPasswordHash []byte
}

type Router struct {
	service *service.Facade
	opts    Options
	logger  zerolog.Logger
}

func NewRouter(svc *service.Facade, opts Options) *gin.Engine {
	r := &Router{service: svc, opts: opts, logger: logging.Component("api")}
	engine := gin.New()
	engine.Use(gin.Recovery())
	r.register(engine)
	return engine
}

// requestID 为每个请求分配 ID 并写入响应头
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

func (r *Router) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		// 订阅接口自行记录，避免 token 出现在访问日志中
		if c.FullPath() == "/sub/:token" {
			return
		}
		r.logger.Info().
			Str("request_id", c.GetString("request_id")).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("ip", c.ClientIP()).
			Msg("request")
	}
}

func (r *Router) register(engine *gin.Engine) {
	engine.Use(requestID(), r.accessLog())

	engine.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "VPN SaaS Core API"})
	})
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now()})
	})

	engine.GET("/sub/:token", r.getSubscription)

	users := engine.Group("/users")
	{
		users.POST("/", r.createUser)
		users.GET("/:tgid", r.getUser)
		users.GET("/:tgid/subscription", r.getUserSubscription)
	}

	engine.GET("/server/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, r.service.ServerStatus(c.Request.Context()))
	})

	admin := engine.Group("/admin", r.basicAuth())
	{
		admin.GET("/overview", r.getOverview)
		admin.GET("/users", r.listPanelUsers)
		admin.POST("/users/:tgid/subscription", r.addSubscription)
		admin.PUT("/users/:tgid/devices", r.setDevicesLimit)
		admin.POST("/users/:tgid/enable", r.enableUser)
		admin.POST("/users/:tgid/disable", r.disableUser)
		admin.POST("/users/:tgid/revoke", r.revokeSubscription)
		admin.DELETE("/users/:tgid", r.deleteUser)
		admin.GET("/devices", r.listDevices)
		admin.POST("/sync", r.runSync)
		admin.GET("/logs", r.getAppLogs)
	}
}

// telegramID 解析路径参数 :tgid
func telegramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("tgid"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, errors.New("invalid telegram id"))
		return 0, false
	}
	return id, true
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func (r *Router) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrInvalidID) || errors.Is(err, repository.ErrInvalidData):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrNotFound) || errors.Is(err, panel.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrPanelUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		r.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
