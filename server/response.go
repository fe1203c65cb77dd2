package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/nabiya/diarymem/core"
)

const (
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// Response is the envelope of every JSON reply.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, Response{Code: status, Message: "ok", Data: data})
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Response{Code: status, Message: message})
}

// writeError maps an error kind to a status code.
func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	entry := log.WithError(err).WithFields(log.Fields{
		requestIDKey: c.GetString(requestIDKey),
		"status":     status,
	})
	if status >= http.StatusInternalServerError {
		entry.Error("[SERVER] request failed")
	} else {
		entry.Debug("[SERVER] request rejected")
	}
	fail(c, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidInput), errors.Is(err, core.ErrInvalidDate):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrEmbedding), errors.Is(err, core.ErrRetrieval):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// requestID tags each request with an ID, reusing the caller's if present.
func requestID(c *gin.Context) {
	id := c.GetHeader(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(requestIDKey, id)
	c.Header(RequestIDHeader, id)
	c.Next()
}

func requestLogger(c *gin.Context) {
	start := time.Now()
	c.Next()

	log.WithFields(log.Fields{
		requestIDKey: c.GetString(requestIDKey),
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
		"status":     c.Writer.Status(),
		"latency":    time.Since(start).String(),
		"ip":         c.ClientIP(),
	}).Info("[SERVER] request")
}
