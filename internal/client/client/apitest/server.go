// Package apitest runs an in-memory implementation of the collection API for
// tests of the client, services and cli packages.
package apitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/bizkeeper/internal/common"
	"github.com/go-chi/chi/v5"
)

type Item map[string]any

// Server is an httptest.Server with chi routes for /health and
// /clients/{client}/{kind}. Items get sequential ids starting at 1.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	items    map[string][]Item
	nextID   int64
	idem     map[string]int64
	down     bool
	token    string
	failures map[string]int
	requests []string
	now      time.Time
}

func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		items:    map[string][]Item{},
		idem:     map[string]int64{},
		failures: map[string]int{},
		now:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	r := chi.NewRouter()
	r.Use(s.gate)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Item{"status": "OK"})
	})
	r.Route("/clients/{client}/{kind}", func(r chi.Router) {
		r.Get("/", s.list)
		r.Post("/", s.create)
		r.Put("/{id}", s.update)
		r.Delete("/{id}", s.delete)
	})

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// SetDown makes every request fail with 503.
func (s *Server) SetDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

// RequireToken rejects requests without "Authorization: Bearer <token>".
func (s *Server) RequireToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// FailNext answers the next request matching "METHOD /path" with status.
func (s *Server) FailNext(method, path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = status
}

// Seed stores items under client/kind and returns their assigned ids.
func (s *Server) Seed(client, kind string, items ...Item) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, s.insert(client+"/"+kind, it))
	}
	return ids
}

// Items returns a copy of the stored items of client/kind.
func (s *Server) Items(client, kind string) []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Item, 0)
	for _, it := range s.items[client+"/"+kind] {
		cp := Item{}
		for k, v := range it {
			cp[k] = v
		}
		out = append(out, cp)
	}
	return out
}

// Requests returns "METHOD /path" for every request received so far.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func (s *Server) gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		key := r.Method + " " + r.URL.Path
		s.requests = append(s.requests, key)
		down, token := s.down, s.token
		status, fail := s.failures[key]
		delete(s.failures, key)
		s.mu.Unlock()

		switch {
		case down:
			http.Error(w, "maintenance", http.StatusServiceUnavailable)
		case token != "" && r.Header.Get("Authorization") != "Bearer "+token:
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		case fail:
			http.Error(w, http.StatusText(status), status)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Item{"items": s.Items(chi.URLParam(r, "client"), chi.URLParam(r, "kind"))})
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	var body Item
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if title, _ := body["title"].(string); strings.TrimSpace(title) == "" {
		http.Error(w, "title is required", http.StatusUnprocessableEntity)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	coll := chi.URLParam(r, "client") + "/" + chi.URLParam(r, "kind")

	if key := r.Header.Get(common.IdempotencyKeyHeader); key != "" {
		if id, ok := s.idem[key]; ok {
			if it, _ := s.find(coll, id); it != nil {
				writeJSON(w, http.StatusOK, it)
				return
			}
		}
		defer func() { s.idem[key] = s.nextID }()
	}

	id := s.insert(coll, body)
	it, _ := s.find(coll, id)
	writeJSON(w, http.StatusCreated, it)
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	var body Item
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.lookup(w, r)
	if !ok {
		return
	}
	for k, v := range body {
		if k != "id" && k != "created_at" {
			it[k] = v
		}
	}
	writeJSON(w, http.StatusOK, it)
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lookup(w, r); !ok {
		return
	}
	coll := chi.URLParam(r, "client") + "/" + chi.URLParam(r, "kind")
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	_, i := s.find(coll, id)
	s.items[coll] = append(s.items[coll][:i], s.items[coll][i+1:]...)
	w.WriteHeader(http.StatusNoContent)
}

// lookup resolves {id}, answering 404 itself when it is unknown.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (Item, bool) {
	coll := chi.URLParam(r, "client") + "/" + chi.URLParam(r, "kind")
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "bad id", http.StatusBadRequest)
		return nil, false
	}
	it, _ := s.find(coll, id)
	if it == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return nil, false
	}
	return it, true
}

func (s *Server) insert(coll string, it Item) int64 {
	s.nextID++
	s.now = s.now.Add(time.Minute)
	cp := Item{}
	for k, v := range it {
		cp[k] = v
	}
	cp["id"] = s.nextID
	if _, ok := cp["created_at"]; !ok {
		cp["created_at"] = s.now.Format(time.RFC3339)
	}
	s.items[coll] = append(s.items[coll], cp)
	return s.nextID
}

func (s *Server) find(coll string, id int64) (Item, int) {
	for i, it := range s.items[coll] {
		if it["id"] == id {
			return it, i
		}
	}
	return nil, -1
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
