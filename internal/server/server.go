package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Server exposes the latest snapshot read-only over HTTP. It never
// touches tracker state: the poller hands it the exact bytes written
// to disk and the server serves those until the next publish.
type Server struct {
	staleAfter time.Duration
	now        func() time.Time

	mu        sync.RWMutex
	snapshot  []byte
	updatedAt time.Time
}

// New creates a server that reports unhealthy once the last published
// snapshot is older than staleAfter.
func New(staleAfter time.Duration) *Server {
	return &Server{staleAfter: staleAfter, now: time.Now}
}

// Publish implements poller.Sink, swapping in the latest snapshot.
func (s *Server) Publish(data []byte, generatedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = data
	s.updatedAt = generatedAt
}

// Handler builds the router: gzip and permissive CORS so map frontends
// anywhere can pull the snapshot directly.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Compress(5, "application/geo+json", "application/json"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/stops.geojson", s.getSnapshot)
	r.Get("/healthz", s.getHealth)
	return r
}

func (s *Server) getSnapshot(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	snapshot := s.snapshot
	s.mu.RUnlock()

	if snapshot == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "no snapshot published yet",
		})
		return
	}

	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	w.Write(snapshot)
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	updatedAt := s.updatedAt
	s.mu.RUnlock()

	status := "ok"
	code := http.StatusOK
	if updatedAt.IsZero() || s.now().Sub(updatedAt) > s.staleAfter {
		status = "stale"
		code = http.StatusServiceUnavailable
	}

	body := map[string]interface{}{
		"status":    status,
		"timestamp": s.now().UTC(),
	}
	if !updatedAt.IsZero() {
		body["lastUpdated"] = updatedAt.UTC()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
