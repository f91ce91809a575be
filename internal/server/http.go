package server

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"image/png"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"deskmirror/internal/capture"
)

// Handler is the control surface: health, metrics, session history and a
// debug snapshot of the captured screen.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))
	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/debug/frame", s.handleDebugFrame)
		r.Get("/sessions", s.handleSessions)
	})
	return r
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.checkAuth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) checkAuth(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return subtle.ConstantTimeCompare([]byte(auth), []byte("Bearer "+s.cfg.Secret)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	active, state := "", "idle"
	if sess := s.Session(); sess != nil {
		active, state = sess.ID, sess.State().String()
	}
	fmt.Fprintf(w, `{"status":"ok","session":%q,"state":%q}`, active, state)
}

func (s *Server) handleDebugFrame(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	src := s.src
	s.mu.Unlock()

	if src == nil {
		tmp, err := capture.Open(r.Context(), s.cfg.NewCapturer, s.cfg.Capture)
		if err != nil {
			http.Error(w, fmt.Sprintf("capturer init: %v", err), http.StatusInternalServerError)
			return
		}
		defer tmp.Close()
		src = tmp
	}

	img, err := src.Snapshot()
	if err != nil {
		http.Error(w, fmt.Sprintf("grab failed: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, img); err != nil {
		log.Printf("server: debug frame: %v", err)
	}
}

type sessionJSON struct {
	ID        string     `json:"id"`
	Remote    string     `json:"remote"`
	Transport string     `json:"transport"`
	Codec     string     `json:"codec"`
	Width     int        `json:"width"`
	Height    int        `json:"height"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Packets   int64      `json:"packets"`
	Bytes     int64      `json:"bytes"`
	Commands  int64      `json:"commands"`
	Error     string     `json:"error,omitempty"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Store == nil {
		http.Error(w, "no session store configured", http.StatusNotFound)
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "bad limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	rows, err := s.cfg.Store.Recent(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]sessionJSON, 0, len(rows))
	for _, row := range rows {
		j := sessionJSON{
			ID: row.ID, Remote: row.Remote, Transport: row.Transport, Codec: row.Codec,
			Width: row.Width, Height: row.Height, StartedAt: row.StartedAt,
			Packets: row.Packets, Bytes: row.Bytes, Commands: row.Commands, Error: row.Error,
		}
		if !row.EndedAt.IsZero() {
			ended := row.EndedAt
			j.EndedAt = &ended
		}
		out = append(out, j)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}
