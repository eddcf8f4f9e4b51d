package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/integrationgw/internal/cache"
	"github.com/vyrodovalexey/integrationgw/internal/configuration"
	"github.com/vyrodovalexey/integrationgw/internal/integration"
	"github.com/vyrodovalexey/integrationgw/internal/observability"
)

// errBadRequest marks request binding failures.
var errBadRequest = errors.New("bad request")

// errUnauthorized is returned when the callback API key is missing or wrong.
var errUnauthorized = errors.New("invalid api key")

// ErrorBody is the JSON body of every error response.
type ErrorBody struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message,omitempty"`
	Timestamp  string `json:"timestamp"`
	Path       string `json:"path"`
}

func newErrorBody(c *gin.Context, status int, message string) ErrorBody {
	return ErrorBody{
		StatusCode: status,
		Message:    message,
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Path:       c.Request.URL.RequestURI(),
	}
}

// statusFor maps an error returned by the integration clients to an HTTP
// status code.
func statusFor(err error) int {
	if status := integration.StatusOf(err); status > 0 {
		return status
	}

	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, integration.ErrCacheKeyRequired):
		return http.StatusBadRequest
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, configuration.ErrConfigurationNotFound):
		return http.StatusNotFound
	case errors.Is(err, integration.ErrCallbackNotExpected),
		errors.Is(err, cache.ErrUpdateMissing):
		return http.StatusConflict
	case errors.Is(err, integration.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, integration.ErrAPIGatewayAuth):
		return http.StatusBadGateway
	case integration.IsCircuitOpen(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError renders err and records it on the gin context so that the
// request logger reports the failure. Internal errors are logged and their
// message is not exposed.
func (s *Server) abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	_ = c.Error(err)

	message := err.Error()
	if status >= http.StatusInternalServerError {
		s.logger.WithContext(c.Request.Context()).Error("request failed",
			observability.Error(err),
			observability.Int("statusCode", status),
			observability.String("path", c.Request.URL.Path),
		)
		message = http.StatusText(status)
	}
	c.AbortWithStatusJSON(status, newErrorBody(c, status, message))
}
