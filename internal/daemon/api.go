package daemon

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/theirongolddev/promptroute/internal/gateway"
	"github.com/theirongolddev/promptroute/internal/ledger"
	"github.com/theirongolddev/promptroute/internal/model"
	"github.com/theirongolddev/promptroute/internal/router"
)

type classifyRequest struct {
	Prompt   string `json:"prompt"`
	Model    string `json:"model"`
	Strategy string `json:"strategy"`
}

type routeRequest struct {
	Messages []model.Message `json:"messages"`
	Prompt   string          `json:"prompt"`
	Model    string          `json:"model"`
	Strategy string          `json:"strategy"`
}

type routeResponse struct {
	Text   string           `json:"text"`
	Record model.CallRecord `json:"record"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// Handler returns the gin engine serving the daemon API.
func (s *Service) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	s.registerRoutes(r)
	return r
}

func (s *Service) registerRoutes(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok\n")
	})

	v1 := r.Group("/v1")
	v1.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.snapshotStatus())
	})
	v1.GET("/events", func(c *gin.Context) {
		s.mu.RLock()
		out := make([]Event, len(s.events))
		copy(out, s.events)
		s.mu.RUnlock()
		c.JSON(http.StatusOK, out)
	})
	v1.GET("/stream", s.stream)
	v1.GET("/models", s.handleModels)
	v1.POST("/classify", s.handleClassify)
	v1.POST("/route", s.handleRoute)
	v1.GET("/costs", s.handleCosts)
}

func (s *Service) handleModels(c *gin.Context) {
	if s.deps.Catalog == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "catalog not configured"})
		return
	}
	cat := s.deps.Catalog.Current()
	c.JSON(http.StatusOK, gin.H{
		"default_model": cat.DefaultModel(),
		"models":        cat.All(),
	})
}

func (s *Service) handleClassify(c *gin.Context) {
	if s.deps.Engine == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "routing engine not configured"})
		return
	}
	var req classifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: "validation"})
		return
	}
	preview := s.deps.Engine.Explain(req.Prompt, req.Model, strategyOption(req.Strategy))
	c.JSON(http.StatusOK, preview)
}

func (s *Service) handleRoute(c *gin.Context) {
	if s.deps.Engine == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "routing engine not configured"})
		return
	}
	var req routeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: "validation"})
		return
	}
	messages := req.Messages
	if len(messages) == 0 && req.Prompt != "" {
		messages = []model.Message{{Role: model.RoleUser, Content: req.Prompt}}
	}

	res, err := s.deps.Engine.Route(c.Request.Context(), messages, req.Model, strategyOption(req.Strategy))
	if err != nil {
		c.JSON(statusFor(err), errorResponse{Error: err.Error(), Kind: gateway.KindOf(err)})
		return
	}
	s.requestPoll()
	c.JSON(http.StatusOK, routeResponse{Text: res.Text, Record: res.Record})
}

func (s *Service) handleCosts(c *gin.Context) {
	if s.deps.Ledger == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "ledger not configured"})
		return
	}
	kind, err := ledger.ParseScope(strings.TrimSpace(c.Query("scope")))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: "validation"})
		return
	}
	agg, err := s.deps.Ledger.Summary(ledger.Scope{Kind: kind, Key: c.Query("key")})
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, agg)
}

func strategyOption(name string) router.CallOption {
	return router.WithStrategy(model.Strategy(strings.ToLower(strings.TrimSpace(name))))
}

// statusFor maps a routing error onto the HTTP status returned to clients.
func statusFor(err error) int {
	switch {
	case errors.Is(err, gateway.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, gateway.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, gateway.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, gateway.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, gateway.ErrContextLength):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusBadGateway
	}
}
