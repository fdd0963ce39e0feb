// Package docstore is an in-memory JSON document store speaking the same
// REST dialect as the hosted bin service the client syncs to. It backs local
// development and end-to-end tests.
package docstore

import (
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aviamasters/beacon-go/adapters"
)

const maxBodyBytes = 10 << 20

type Options struct {
	// APIKeyHeader and APIKey enable authentication when APIKey is set.
	APIKeyHeader string
	APIKey       string
	Logger       adapters.LoggerAdapter
	Registerer   prometheus.Registerer
}

type bin struct {
	name      string
	createdAt time.Time
	record    json.RawMessage
}

// Server holds documents in memory.
type Server struct {
	opts     Options
	requests *prometheus.CounterVec

	mu      sync.Mutex
	bins    map[string]*bin
	failing int
}

func New(opts Options) *Server {
	if opts.APIKeyHeader == "" {
		opts.APIKeyHeader = "X-Master-Key"
	}
	if opts.Logger == nil {
		opts.Logger = adapters.NewNoOpLoggerAdapter()
	}
	s := &Server{
		opts: opts,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docstore",
			Name:      "requests_total",
			Help:      "Requests handled by operation and status code.",
		}, []string{"op", "code"}),
		bins: map[string]*bin{},
	}
	if opts.Registerer != nil {
		opts.Registerer.MustRegister(s.requests)
	}
	return s
}

// Handler returns the routes under /b.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Route("/b", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.injectFailures)
		r.Post("/", s.handleCreate)
		r.Get("/{id}/latest", s.handleRead)
		r.Get("/{id}", s.handleRead)
		r.Put("/{id}", s.handleUpdate)
		r.Delete("/{id}", s.handleDelete)
	})
	return r
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.APIKey != "" && r.Header.Get(s.opts.APIKeyHeader) != s.opts.APIKey {
			s.reply(w, "auth", http.StatusUnauthorized, map[string]string{"message": "Invalid API key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		status := s.failing
		s.mu.Unlock()
		if status != 0 {
			s.reply(w, "fail", status, map[string]string{"message": "Simulated failure"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// FailWith makes every document request answer status until called with 0.
func (s *Server) FailWith(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = status
}

// Record returns the stored document for id.
func (s *Server) Record(id string) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bins[id]
	if !ok {
		return nil, false
	}
	return b.record, true
}

// Put stores record under id, replacing any existing document.
func (s *Server) Put(id string, record json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bins[id] = &bin{name: id, createdAt: time.Now(), record: record}
}

// Delete removes the document for id.
func (s *Server) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bins, id)
}

// IDs returns the stored document ids in sorted order.
func (s *Server) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.bins))
	for id := range s.bins {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of stored documents.
func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bins)
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

func readRecord(r *http.Request) (json.RawMessage, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil || !json.Valid(body) {
		return nil, false
	}
	return json.RawMessage(body), true
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	record, ok := readRecord(r)
	if !ok {
		s.reply(w, "create", http.StatusBadRequest, map[string]string{"message": "Invalid JSON body"})
		return
	}

	id := newID()
	b := &bin{
		name:      r.Header.Get("X-Bin-Name"),
		createdAt: time.Now().UTC(),
		record:    record,
	}
	s.mu.Lock()
	s.bins[id] = b
	s.mu.Unlock()

	s.opts.Logger.Info("Created document %s (%s)", id, b.name)
	s.reply(w, "create", http.StatusOK, map[string]any{
		"record": record,
		"metadata": map[string]any{
			"id":        id,
			"name":      b.name,
			"createdAt": b.createdAt.Format(time.RFC3339),
			"private":   r.Header.Get("X-Bin-Private") != "false",
		},
	})
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	b, ok := s.bins[id]
	s.mu.Unlock()
	if !ok {
		s.reply(w, "read", http.StatusNotFound, map[string]string{"message": "Bin not found"})
		return
	}
	s.reply(w, "read", http.StatusOK, map[string]any{
		"record": b.record,
		"metadata": map[string]any{
			"id":        id,
			"name":      b.name,
			"createdAt": b.createdAt.Format(time.RFC3339),
		},
	})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	record, ok := readRecord(r)
	if !ok {
		s.reply(w, "update", http.StatusBadRequest, map[string]string{"message": "Invalid JSON body"})
		return
	}

	s.mu.Lock()
	b, exists := s.bins[id]
	if exists {
		b.record = record
	}
	s.mu.Unlock()
	if !exists {
		s.reply(w, "update", http.StatusNotFound, map[string]string{"message": "Bin not found"})
		return
	}

	s.opts.Logger.Debug("Updated document %s", id)
	s.reply(w, "update", http.StatusOK, map[string]any{
		"record":   record,
		"metadata": map[string]any{"parentId": id},
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	_, ok := s.bins[id]
	delete(s.bins, id)
	s.mu.Unlock()
	if !ok {
		s.reply(w, "delete", http.StatusNotFound, map[string]string{"message": "Bin not found"})
		return
	}
	s.reply(w, "delete", http.StatusOK, map[string]any{
		"metadata": map[string]any{"id": id},
		"message":  "Bin deleted successfully",
	})
}

func (s *Server) reply(w http.ResponseWriter, op string, status int, body any) {
	s.requests.WithLabelValues(op, strconv.Itoa(status)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.opts.Logger.Warn("Failed to write response: %v", err)
	}
}
