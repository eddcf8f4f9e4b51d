package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/integrationgw/internal/integration"
)

const scopeKey = "integrationScope"

// scope attaches a fresh integration.Scope to the request.
func (s *Server) scope() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(scopeKey, s.deps.NewScope(c.Request.Context()))
		c.Next()
	}
}

func scopeOf(c *gin.Context) *integration.Scope {
	return c.MustGet(scopeKey).(*integration.Scope)
}

func badRequest(err error) error {
	return fmt.Errorf("%w: %v", errBadRequest, err)
}

// bindOptionalJSON binds a JSON body, accepting an empty one.
func bindOptionalJSON(c *gin.Context, dest any) error {
	if err := c.ShouldBindJSON(dest); err != nil && !errors.Is(err, io.EOF) {
		return badRequest(err)
	}
	return nil
}

type asyncStatusQuery struct {
	Timeout int64 `form:"timeout" binding:"gte=0"`
}

type asyncStartRequest struct {
	ServiceKey string                  `json:"serviceKey" binding:"required"`
	Body       any                     `json:"body"`
	Query      map[string]any          `json:"query"`
	Headers    map[string]string       `json:"headers"`
	TimeoutMs  int64                   `json:"timeoutMs" binding:"gt=0"`
	Context    any                     `json:"context"`
	Cache      integration.CachePolicy `json:"cache"`
	Options    integration.CallOptions `json:"options"`
}

type integrationRequest struct {
	Body      any                     `json:"body"`
	Query     map[string]any          `json:"query"`
	Headers   map[string]string       `json:"headers"`
	Method    string                  `json:"method" binding:"omitempty,oneof=GET POST PUT PATCH DELETE get post put patch delete"`
	TimeoutMs int64                   `json:"timeoutMs" binding:"gte=0"`
	CEP       string                  `json:"cep" binding:"omitempty,cep"`
	Cache     integration.CachePolicy `json:"cache"`
}

// compactBody drops nil members of an object body.
func compactBody(body any) any {
	if m, ok := body.(map[string]any); ok {
		return integration.CompactMap(m)
	}
	return body
}

func (s *Server) getAsyncStatus(c *gin.Context) {
	var q asyncStatusQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.abortWithError(c, badRequest(err))
		return
	}

	status, err := scopeOf(c).Async.GetContext(c.Request.Context(), c.Param("id"), q.Timeout)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) startAsync(c *gin.Context) {
	var req asyncStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abortWithError(c, badRequest(err))
		return
	}

	in := integration.APIConsume{
		ServiceKey: req.ServiceKey,
		Body:       compactBody(req.Body),
		Query:      integration.CompactMap(req.Query),
		Headers:    req.Headers,
		Cache:      req.Cache,
		Options:    req.Options,
	}
	result, err := scopeOf(c).Async.ConsumeAsyncAPI(c.Request.Context(), c.Param("id"), in, req.TimeoutMs, req.Context)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	status := http.StatusOK
	if result.Response != nil {
		status = http.StatusAccepted
	}
	c.JSON(status, result)
}

func (s *Server) asyncCallback(c *gin.Context) {
	var result any
	if err := json.NewDecoder(c.Request.Body).Decode(&result); err != nil {
		s.abortWithError(c, badRequest(err))
		return
	}
	if result == nil {
		s.abortWithError(c, badRequest(errors.New("callback result is required")))
		return
	}

	updated, err := scopeOf(c).Async.End(c.Request.Context(), c.Param("id"), result)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) consumeIntegration(c *gin.Context) {
	var req integrationRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		s.abortWithError(c, err)
		return
	}

	query := integration.CompactMap(req.Query)
	if req.CEP != "" {
		if query == nil {
			query = make(map[string]any, 1)
		}
		query["cep"] = req.CEP
	}

	resp, err := scopeOf(c).Async.ConsumeAPIGatewayService(c.Request.Context(), integration.APIConsume{
		ServiceKey: c.Param("serviceKey"),
		Body:       compactBody(req.Body),
		Query:      query,
		Headers:    req.Headers,
		Cache:      req.Cache,
		Options:    integration.CallOptions{TimeoutMs: req.TimeoutMs, Method: req.Method},
	})
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
