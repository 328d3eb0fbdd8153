// Package gateway exposes the dispatcher and the research tool over a
// small JSON HTTP surface.
package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/seiklabs/mcpgate/pkg/audit"
	"github.com/seiklabs/mcpgate/pkg/dispatch"
	"github.com/seiklabs/mcpgate/pkg/errors"
	"github.com/seiklabs/mcpgate/pkg/research"
)

// Server is the HTTP binding for the gateway.
type Server struct {
	dispatcher *dispatch.Dispatcher
	researcher *research.Client
	auditor    *audit.SQLiteStore
	logger     *slog.Logger
}

// Option customizes the server.
type Option func(*Server)

// WithResearcher enables the /v1/research endpoint.
func WithResearcher(r *research.Client) Option {
	return func(s *Server) {
		s.researcher = r
	}
}

// WithAuditor enables audit logging of dispatched actions.
func WithAuditor(a *audit.SQLiteStore) Option {
	return func(s *Server) {
		s.auditor = a
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates the HTTP server binding.
func New(d *dispatch.Dispatcher, opts ...Option) *Server {
	s := &Server{
		dispatcher: d,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the route table for the gateway.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/actions", s.handleActions)
	mux.HandleFunc("/v1/research", s.handleResearch)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req dispatch.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.New(errors.CodeInvalidArguments, "invalid JSON request body", err))
		return
	}

	requestID := uuid.NewString()
	w.Header().Set("X-Request-ID", requestID)
	started := time.Now()

	env, err := s.dispatcher.Dispatch(r.Context(), req)
	s.recordAudit(r, req, err, started)

	if err != nil {
		ge := errors.AsGateError(err)
		s.logger.WarnContext(r.Context(), "action failed",
			"request_id", requestID, "action", req.Action, "code", ge.Code)
		writeError(w, ge)
		return
	}

	writeJSON(w, http.StatusOK, env)
}

func (s *Server) handleResearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.researcher == nil {
		writeError(w, errors.New(errors.CodeInternal, "research endpoint is not configured", nil))
		return
	}

	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.New(errors.CodeInvalidArguments, "invalid JSON request body", err))
		return
	}

	result, err := s.researcher.Search(r.Context(), req.Question)
	if err != nil {
		writeError(w, errors.AsGateError(err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// recordAudit persists the dispatch outcome. Audit failures are logged and
// dropped; they never block the response.
func (s *Server) recordAudit(r *http.Request, req dispatch.Request, dispatchErr error, started time.Time) {
	if s.auditor == nil {
		return
	}
	event := audit.Event{
		Action:     req.Action,
		Target:     auditTarget(req),
		Status:     "ok",
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if dispatchErr != nil {
		ge := errors.AsGateError(dispatchErr)
		event.Status = "error"
		event.ErrorCode = string(ge.Code)
		event.Message = ge.Error()
	}
	if err := s.auditor.Record(r.Context(), event); err != nil {
		s.logger.WarnContext(r.Context(), "audit record failed", "error", err)
	}
}

func auditTarget(req dispatch.Request) string {
	switch req.Action {
	case dispatch.ActionExecuteTool:
		return req.ToolName
	case dispatch.ActionGetResource:
		return req.ResourceURI
	case dispatch.ActionGetPrompt:
		return req.PromptName
	default:
		return ""
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, ge *errors.GateError) {
	writeJSON(w, ge.StatusCode, map[string]any{
		"error": map[string]string{
			"code":    string(ge.Code),
			"message": ge.Error(),
		},
	})
}
