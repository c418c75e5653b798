package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"momsvpn/backend/domain"
	"momsvpn/backend/service/device"
	"momsvpn/backend/service/subscription"
)

const textPlain = "text/plain; charset=utf-8"

// getSubscription GET /sub/:token：代理并改写上游订阅
func (r *Router) getSubscription(c *gin.Context) {
	token := c.Param("token")
	userAgent := c.GetHeader("User-Agent")
	info := device.ParseUserAgent(userAgent)
	hint := domain.TokenHint(token)

	r.logger.Info().
		Str("token", hint).
		Str("ip", c.ClientIP()).
		Str("ua", userAgent).
		Str("device", info.DeviceName).
		Str("os", info.OSVersion).
		Str("app", info.AppName).
		Msg("subscription request")

	res, err := r.service.FetchSubscription(c.Request.Context(), token, c.ClientIP(), info)
	if err != nil {
		r.logger.Error().Err(err).Str("token", hint).Msg("subscription proxy failed")
		c.Data(http.StatusInternalServerError, textPlain, []byte("Error"))
		return
	}
	if res.Passthrough {
		c.Data(res.StatusCode, textPlain, res.Body)
		return
	}

	subscription.RelayHeaders(res.Header, c.Writer.Header())
	if res.Usage != nil {
		r.logger.Info().
			Str("token", hint).
			Int64("used", res.Usage.Used()).
			Int64("total", res.Usage.Total).
			Int64("expire", res.Usage.Expire).
			Int("links", len(res.Links)).
			Msg("subscription served")
	}
	c.Data(http.StatusOK, textPlain, res.Body)
}
