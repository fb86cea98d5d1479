package gateway

import (
	"errors"
	"net/http"

	"github.com/example/takeout/pkg/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Result is the response envelope: code 1 with data on success, code 0
// with msg on failure.
type Result struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg,omitempty"`
	Data interface{} `json:"data,omitempty"`
}

func success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Result{Code: 1, Data: data})
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, Result{Code: 0, Msg: msg})
}

// statusOf maps service errors to an HTTP status and a client message.
func statusOf(err error) (int, string) {
	var (
		ve *service.ValidationError
		ne *service.NotFoundError
		ce *service.ConflictError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Message
	case errors.As(err, &ne):
		return http.StatusNotFound, ne.Error()
	case errors.As(err, &ce):
		return http.StatusConflict, ce.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (g *Gateway) fail(c *gin.Context, err error) {
	status, msg := statusOf(err)
	if status >= http.StatusInternalServerError {
		g.logger.Error("Request failed",
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", c.GetString(ctxRequestID)),
			zap.Error(err))
	}
	abort(c, status, msg)
}
