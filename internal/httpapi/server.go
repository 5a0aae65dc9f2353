package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"call-compass-go/internal/gateway"
	"call-compass-go/internal/logger"
	"call-compass-go/internal/metrics"
	"call-compass-go/internal/processor"
	"call-compass-go/internal/state"
	"call-compass-go/internal/types"
	"call-compass-go/internal/views"
)

// Deps are the pieces the HTTP surface reads from and drives.
type Deps struct {
	Processor *processor.Processor
	State     *state.Manager
	Dashboard *views.Dashboard
	Alerts    *views.Alerts
	Table     *views.Table
	Hub       *Hub
	Logger    *logger.Logger
}

type Server struct {
	Deps
	log *logger.Logger
}

func New(d Deps) *Server {
	log := d.Logger
	if log == nil {
		log = logger.New()
	}
	return &Server{Deps: d, log: log.WithComponent("http")}
}

// Handler returns the routed mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.health)
	mux.Handle("GET /metrics", metrics.Handler())
	if s.Hub != nil {
		mux.Handle("GET /ws", s.Hub)
	}

	mux.HandleFunc("GET /api/state", s.getState)
	mux.HandleFunc("GET /api/calls", s.listCalls)
	mux.HandleFunc("POST /api/source", s.switchSource)
	mux.HandleFunc("POST /api/reload", s.reload)
	mux.HandleFunc("POST /api/select", s.selectCalls)
	mux.HandleFunc("POST /api/analyze", s.analyze)
	mux.HandleFunc("POST /api/custom-analyze", s.customAnalyze)
	mux.HandleFunc("POST /api/transcribe", s.transcribe)
	mux.HandleFunc("POST /api/preview", s.preview)
	mux.HandleFunc("GET /api/chat", s.chatHistory)
	mux.HandleFunc("POST /api/chat", s.chat)
	mux.HandleFunc("POST /api/tags/refresh", s.refreshTags)
	mux.HandleFunc("DELETE /api/cache", s.clearCache)
	mux.HandleFunc("GET /api/dashboard", s.dashboard)
	mux.HandleFunc("GET /api/alerts", s.listAlerts)
	mux.HandleFunc("POST /api/alerts/{id}/{action}", s.alertAction)
	return mux
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.log.WithRequest(r).Debug("health check")
	fmt.Fprint(w, "ok")
}

func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, s.State.State())
}

func (s *Server) listCalls(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rows := s.Table.Rows(views.Filter{
		Status:   q.Get("status"),
		Operator: q.Get("operator"),
		Tag:      q.Get("tag"),
		Search:   q.Get("search"),
	})
	s.writeJSON(w, r, http.StatusOK, rows)
}

type sourceRequest struct {
	Source string `json:"source"`
}

func (s *Server) switchSource(w http.ResponseWriter, r *http.Request) {
	var req sourceRequest
	if !s.decode(w, r, &req) {
		return
	}
	src, err := types.ParseDataSource(req.Source)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err)
		return
	}
	calls, err := s.Processor.SwitchSource(r.Context(), src)
	if err != nil {
		s.failFrom(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{"source": src, "total": len(calls)})
}

func (s *Server) reload(w http.ResponseWriter, r *http.Request) {
	if err := s.Processor.Reload(r.Context()); err != nil {
		s.failFrom(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, s.State.State())
}

type selectRequest struct {
	CallIDs []string `json:"callIds"`
	Prune   bool     `json:"prune,omitempty"`
}

func (s *Server) selectCalls(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.Processor.Select(req.CallIDs)
	removed := 0
	if req.Prune {
		removed = s.State.PruneSelection()
	}
	snap := s.State.State()
	s.writeJSON(w, r, http.StatusOK, map[string]any{"selectedCallIds": snap.SelectedIDs, "pruned": removed})
}

type analyzeRequest struct {
	CallIDs      []string `json:"callIds"`
	KeyQuestions []string `json:"keyQuestions"`
	Prompt       string   `json:"prompt"`
}

func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.Processor.Analyze(r.Context(), req.CallIDs, req.KeyQuestions)
	if err != nil {
		s.failFrom(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, res)
}

func (s *Server) customAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.Processor.CustomAnalyze(r.Context(), req.CallIDs, req.Prompt)
	if err != nil {
		s.failFrom(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, res)
}

type transcribeRequest struct {
	CallIDs []string `json:"callIds"`
	Force   bool     `json:"forceRetranscribe"`
}

func (s *Server) transcribe(w http.ResponseWriter, r *http.Request) {
	var req transcribeRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.Processor.Transcribe(r.Context(), req.CallIDs, req.Force)
	if err != nil {
		s.failFrom(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, res)
}

// preview always answers 200: the fallback report is a valid result.
func (s *Server) preview(w http.ResponseWriter, r *http.Request) {
	res, err := s.Processor.Preview(r.Context())
	if err != nil {
		s.log.WithRequest(r).WithField("error", err.Error()).Warn("preview fell back")
	}
	s.writeJSON(w, r, http.StatusOK, res)
}

func (s *Server) chatHistory(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, s.Processor.History(r.Context()))
}

type chatRequest struct {
	Message string            `json:"message"`
	Filters types.ChatFilters `json:"filters"`
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !s.decode(w, r, &req) {
		return
	}
	reply, err := s.Processor.Chat(r.Context(), req.Message, req.Filters)
	if err != nil {
		s.failFrom(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, reply)
}

func (s *Server) refreshTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.Processor.RefreshTags(r.Context())
	if err != nil {
		s.failFrom(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{"tags": tags})
}

func (s *Server) clearCache(w http.ResponseWriter, r *http.Request) {
	if err := s.Processor.ClearCache(r.Context()); err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"source": s.Dashboard.Source(),
		"stats":  s.Dashboard.Stats(),
	})
}

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, s.Alerts.List())
}

func (s *Server) alertAction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var ok bool
	switch r.PathValue("action") {
	case "ack":
		ok = s.Alerts.Engine().Acknowledge(id)
	case "resolve":
		ok = s.Alerts.Engine().Resolve(id)
	default:
		s.fail(w, r, http.StatusNotFound, fmt.Errorf("unknown alert action %q", r.PathValue("action")))
		return
	}
	if !ok {
		s.fail(w, r, http.StatusNotFound, fmt.Errorf("alert %s not found", id))
		return
	}
	s.writeJSON(w, r, http.StatusOK, s.Alerts.List())
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.fail(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	return true
}

// failFrom maps domain errors onto status codes.
func (s *Server) failFrom(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, processor.ErrNoCalls), errors.Is(err, processor.ErrEmptyInput):
		status = http.StatusBadRequest
	case errors.Is(err, state.ErrStale):
		status = http.StatusConflict
	default:
		switch gateway.KindOf(err) {
		case gateway.KindValidation:
			status = http.StatusBadRequest
		case gateway.KindTimeout:
			status = http.StatusGatewayTimeout
		case "":
			status = http.StatusInternalServerError
		}
	}
	s.fail(w, r, status, err)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	s.log.WithRequest(r).WithField("status", status).WithField("error", err.Error()).Warn("request failed")
	s.writeJSON(w, r, status, map[string]string{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		s.log.WithRequest(r).WithField("error", err.Error()).Error("failed to write response")
	}
}

// NewHTTPServer wraps h with the timeouts used in every environment.
func NewHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}
