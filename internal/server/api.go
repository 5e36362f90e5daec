package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Ashok161/docquery/internal/answer"
	"github.com/Ashok161/docquery/internal/index"
	"github.com/Ashok161/docquery/internal/observability"
	"github.com/Ashok161/docquery/internal/retrieval"
)

// Retriever finds the most relevant indexed chunks for a question.
type Retriever interface {
	Retrieve(ctx context.Context, question string, k int) ([]index.Match, error)
}

// Composer turns retrieved matches into an answer.
type Composer interface {
	Compose(ctx context.Context, question string, matches []index.Match) (*answer.Answer, error)
}

// APIServer serves the question-answering API over the ingested corpus.
type APIServer struct {
	retriever  Retriever
	composer   Composer
	store      index.Store
	metrics    *observability.DocqueryMetrics
	audit      *observability.AuditLogger
	logger     *slog.Logger
	shutdownCh chan struct{}
}

// APIOption configures an APIServer.
type APIOption func(*APIServer)

// WithAPIMetrics sets the metrics sink.
func WithAPIMetrics(m *observability.DocqueryMetrics) APIOption {
	return func(s *APIServer) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithAPIAudit sets the audit logger.
func WithAPIAudit(a *observability.AuditLogger) APIOption {
	return func(s *APIServer) {
		if a != nil {
			s.audit = a
		}
	}
}

// WithAPILogger sets the logger.
func WithAPILogger(l *slog.Logger) APIOption {
	return func(s *APIServer) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewAPIServer creates the query API server.
func NewAPIServer(retriever Retriever, composer Composer, store index.Store, opts ...APIOption) (*APIServer, error) {
	if retriever == nil {
		return nil, errors.New("retriever required")
	}
	if composer == nil {
		return nil, errors.New("composer required")
	}
	if store == nil {
		return nil, errors.New("index store required")
	}

	s := &APIServer{
		retriever:  retriever,
		composer:   composer,
		store:      store,
		metrics:    observability.Metrics(),
		audit:      observability.Audit(),
		logger:     slog.Default().With("component", "server.api"),
		shutdownCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handler returns the API endpoints plus the metrics endpoint.
func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/query", s.handleQuery)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.Handle("/metrics", s.metrics.Handler())
	return mux
}

// ListenAndServe starts the API listener and blocks until Shutdown.
// The write timeout leaves room for a full generation-chain walk.
func (s *APIServer) ListenAndServe(addr string) error {
	if addr == "" {
		addr = ":8080"
	}

	server := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * time.Minute,
	}

	go func() {
		<-s.shutdownCh
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	s.logger.Info("query API listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the API listener.
func (s *APIServer) Shutdown() {
	close(s.shutdownCh)
}

type queryRequest struct {
	Question string `json:"question"`
}

type queryResponse struct {
	Success bool   `json:"success"`
	Answer  string `json:"answer,omitempty"`
	Model   string `json:"model,omitempty"`
	Matches int    `json:"matches"`
	Error   string `json:"error,omitempty"`
}

type statsResponse struct {
	Documents int    `json:"documents"`
	Error     string `json:"error,omitempty"`
}

// handleQuery answers a question: retrieve, filter, compose. Questions
// failing validation get a 400; everything retrievable gets an answer,
// falling back to the no-documents notice on an empty result.
func (s *APIServer) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, queryResponse{Success: false, Error: "method not allowed"})
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, queryResponse{Success: false, Error: "invalid request body"})
		return
	}

	start := time.Now()
	ctx, span := observability.StartQuerySpan(r.Context())
	defer span.End()

	matches, err := s.retriever.Retrieve(ctx, req.Question, 0)
	if err != nil {
		observability.RecordError(span, err)
		s.metrics.RecordQuery(time.Since(start), 0, false, err)

		if errors.Is(err, retrieval.ErrQuestionTooShort) {
			writeJSON(w, http.StatusBadRequest, queryResponse{Success: false, Error: err.Error()})
			return
		}
		s.logger.Error("retrieval failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, queryResponse{Success: false, Error: "retrieval failed: " + err.Error()})
		return
	}

	ans, err := s.composer.Compose(ctx, req.Question, matches)
	if err != nil {
		observability.RecordError(span, err)
		s.metrics.RecordQuery(time.Since(start), len(matches), false, err)
		s.logger.Error("compose failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, queryResponse{Success: false, Error: "compose failed: " + err.Error()})
		return
	}

	duration := time.Since(start)
	fallback := ans.Model == answer.FallbackModel && ans.Grounded > 0
	observability.RecordQueryResult(span, len(matches), ans.Model, ans.Grounded)
	s.metrics.RecordQuery(duration, len(matches), fallback, nil)
	s.audit.LogQuery(ctx, req.Question, len(matches), ans.Model, duration)

	writeJSON(w, http.StatusOK, queryResponse{
		Success: true,
		Answer:  ans.Text,
		Model:   ans.Model,
		Matches: len(matches),
	})
}

// handleStats reports how many entries the index currently holds.
func (s *APIServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, statsResponse{Error: "method not allowed"})
		return
	}

	count, err := s.store.Count(r.Context())
	if err != nil {
		s.logger.Error("index count failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, statsResponse{Error: "index unreachable: " + err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{Documents: count})
}
