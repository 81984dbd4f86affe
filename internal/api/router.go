package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/emitter-go/internal/keystore"
)

// healthCheckTimeout bounds each component check made by /health.
const healthCheckTimeout = 2 * time.Second

// defaultWSPath is used when the websocket path is not configured.
const defaultWSPath = "/ws"

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeNotFound(w, r)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, r.Method+" not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/subscriptions", s.handleSubscriptions)
		r.Get("/channels", s.handleListChannels)
	})

	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = defaultWSPath
	}
	r.Get(wsPath, s.handleWebSocket)

	return r
}

// handleHealth reports the health of the client and the key store.
// It answers 503 when any component is unhealthy.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := map[string]string{
		"emitter": checkHealth(r.Context(), s.client),
	}
	if s.db != nil {
		components["database"] = checkHealth(r.Context(), s.db)
	}

	status, code := "ok", http.StatusOK
	for _, v := range components {
		if v != "ok" {
			status, code = "degraded", http.StatusServiceUnavailable
			break
		}
	}

	resp := map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
	}
	if s.hub != nil {
		resp["websocket_clients"] = s.hub.ClientCount()
	}
	writeJSON(w, code, resp)
}

// checkHealth returns "ok" or the error text of a component check.
func checkHealth(ctx context.Context, c HealthChecker) string {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	if err := c.HealthCheck(ctx); err != nil {
		return err.Error()
	}
	return "ok"
}

// handleSubscriptions lists the channel patterns the client is subscribed to.
func (s *Server) handleSubscriptions(w http.ResponseWriter, _ *http.Request) {
	subs := s.client.Subscriptions()
	if subs == nil {
		subs = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"subscriptions": subs,
		"count":         len(subs),
	})
}

// channelView is a stored channel key as returned by /channels.
type channelView struct {
	keystore.ChannelKey
	Expired bool `json:"expired"`
}

// handleListChannels lists stored channel keys with the key masked.
func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	keys := []channelView{}
	if s.keys != nil {
		stored, err := s.keys.List(r.Context())
		if err != nil {
			s.logger.Error("listing channel keys", "error", err)
			writeInternalError(w, r, "failed to list channel keys")
			return
		}
		now := time.Now()
		for _, k := range stored {
			keys = append(keys, channelView{ChannelKey: k.Masked(), Expired: k.Expired(now)})
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"channels": keys,
		"count":    len(keys),
	})
}
