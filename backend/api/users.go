package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type createUserRequest struct {
	TelegramID int64  `json:"telegram_id"`
	Username   string `json:"username"`
	FullName   string `json:"full_name"`
}

func (r *Router) createUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.TelegramID <= 0 {
		badRequest(c, errors.New("telegram_id is required"))
		return
	}
	user, err := r.service.RegisterUser(c.Request.Context(), req.TelegramID, req.Username, req.FullName)
	if err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (r *Router) getUser(c *gin.Context) {
	id, ok := telegramID(c)
	if !ok {
		return
	}
	user, err := r.service.GetUser(c.Request.Context(), id)
	if err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (r *Router) getUserSubscription(c *gin.Context) {
	id, ok := telegramID(c)
	if !ok {
		return
	}
	info, err := r.service.SubscriptionInfo(c.Request.Context(), id)
	if err != nil {
		r.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}
