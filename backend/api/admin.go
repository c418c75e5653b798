package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"momsvpn/backend/service/syncer"
)

// basicAuth 校验管理员 HTTP Basic 凭据（密码为 bcrypt 哈希）
func (r *Router) basicAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, pass, ok := c.Request.BasicAuth()
		if !ok || len(r.opts.AdminPasswordHash) == 0 ||
			subtle.ConstantTimeCompare([]byte(user), []byte(r.opts.AdminUsername)) != 1 ||
			bcrypt.CompareHashAndPassword(r.opts.AdminPasswordHash, []byte(pass)) != nil {
			c.Header("WWW-Authenticate", `Basic realm="admin"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Incorrect username or password"})
			return
		}
		c.Set("admin", user)
		c.Next()
	}
}

func (r *Router) getOverview(c *gin.Context) {
	ov, err := r.service.Overview(c.Request.Context())
	if err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, ov)
}

func (r *Router) listPanelUsers(c *gin.Context) {
	page := 1
	if raw := c.Query("page"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			badRequest(c, errors.New("invalid 'page' parameter: must be a positive integer"))
			return
		}
		page = v
	}
	result, err := r.service.PanelUsers(c.Request.Context(), c.Query("search"), c.Query("status"), page)
	if err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type addSubscriptionRequest struct {
	Days int `json:"days"`
}

func (r *Router) addSubscription(c *gin.Context) {
	id, ok := telegramID(c)
	if !ok {
		return
	}
	var req addSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	expires, err := r.service.AddSubscription(c.Request.Context(), id, req.Days)
	if err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"telegram_id": id, "expires": expires})
}

type devicesLimitRequest struct {
	Limit *int `json:"limit"`
}

func (r *Router) setDevicesLimit(c *gin.Context) {
	id, ok := telegramID(c)
	if !ok {
		return
	}
	var req devicesLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Limit == nil || *req.Limit < 0 {
		badRequest(c, errors.New("limit must be a non-negative integer"))
		return
	}
	if err := r.service.SetDevicesLimit(c.Request.Context(), id, *req.Limit); err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"telegram_id": id, "devices_limit": *req.Limit})
}

func (r *Router) enableUser(c *gin.Context) {
	id, ok := telegramID(c)
	if !ok {
		return
	}
	if err := r.service.EnableUser(c.Request.Context(), id); err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"telegram_id": id, "status": "active"})
}

func (r *Router) disableUser(c *gin.Context) {
	id, ok := telegramID(c)
	if !ok {
		return
	}
	if err := r.service.DisableUser(c.Request.Context(), id); err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"telegram_id": id, "status": "disabled"})
}

func (r *Router) revokeSubscription(c *gin.Context) {
	id, ok := telegramID(c)
	if !ok {
		return
	}
	url, err := r.service.RevokeSubscription(c.Request.Context(), id)
	if err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"telegram_id": id, "subscription_url": url})
}

func (r *Router) deleteUser(c *gin.Context) {
	id, ok := telegramID(c)
	if !ok {
		return
	}
	if err := r.service.DeleteUser(c.Request.Context(), id); err != nil {
		r.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Router) listDevices(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			badRequest(c, errors.New("invalid 'limit' parameter"))
			return
		}
		limit = v
	}
	devices, err := r.service.RecentDevices(c.Request.Context(), limit)
	if err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, devices)
}

type syncRequest struct {
	DryRun bool `json:"dry_run"`
	Notify bool `json:"notify"`
}

func (r *Router) runSync(c *gin.Context) {
	var req syncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	stats, err := r.service.Sync(c.Request.Context(), syncer.Options{DryRun: req.DryRun, Notify: req.Notify})
	if err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
