// Package fakeapi is an in-process stand-in for the dashboard backend, used by
// tests across the module. It issues internal tokens from known external
// tokens, stores calculation history per user and can be told to fail.
package fakeapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type contextKey string

const userIDKey contextKey = "user_id"

// Identity is a user known to the fake identity exchange.
type Identity struct {
	ID    string
	Email string
	Name  string
}

// RecordedRequest is what the server saw for one call.
type RecordedRequest struct {
	Method        string
	Path          string
	Authorization string
	ContentType   string
	Body          string
}

// Calculation is a stored history entry.
type Calculation struct {
	ID        string         `json:"id"`
	Company   string         `json:"company"`
	Input     map[string]any `json:"input"`
	Result    map[string]any `json:"result"`
	Timestamp time.Time      `json:"timestamp"`
	Name      *string        `json:"name,omitempty"`
}

type Server struct {
	*httptest.Server

	mu           sync.Mutex
	identities   map[string]Identity      // external token -> identity
	issued       map[string]string        // internal access token -> user id
	calculations map[string][]Calculation // user id -> newest first
	failCreates  int
	createsDown  bool
	verifyGates  map[string]chan struct{}
	requests     []RecordedRequest
}

// New starts the server. Callers Close it when done.
func New() *Server {
	s := &Server{
		identities:   make(map[string]Identity),
		issued:       make(map[string]string),
		calculations: make(map[string][]Calculation),
		verifyGates:  make(map[string]chan struct{}),
	}
	s.Server = httptest.NewServer(s.routes())
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record)

	r.Post("/v1/auth/supabase/verify", s.verify)

	r.Group(func(r chi.Router) {
		r.Use(s.bearerAuth)

		r.Get("/v1/auth/supabase/me", s.profile)
		r.Get("/v1/user/profile", s.profile)
		r.Put("/v1/user/profile", s.updateProfile)
		r.Get("/v1/user/stats", s.stats)

		r.Route("/v1/emissions", func(r chi.Router) {
			r.Post("/calculate", s.calculate)
			r.Get("/calculations", s.listCalculations)
			r.Post("/calculations", s.createCalculation)
			r.Delete("/calculations/{id}", s.deleteCalculation)
		})

		r.Get("/v1/notifications/", s.notifications)
		r.Get("/v1/developer/rate-limits", s.rateLimits)
	})
	return r
}

// AddIdentity makes externalToken acceptable to the verify exchange.
func (s *Server) AddIdentity(externalToken string, identity Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities[externalToken] = identity
}

// FailNextCreates makes the next n calculation creates answer 503.
func (s *Server) FailNextCreates(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCreates = n
}

// SetCreatesDown makes every calculation create answer 503 until reset.
func (s *Server) SetCreatesDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createsDown = down
}

// HoldVerify blocks verify calls for externalToken until the returned release
// func is called.
func (s *Server) HoldVerify(externalToken string) (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.verifyGates[externalToken] = gate
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { close(gate) })
	}
}

// Requests returns every request seen so far.
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

// LastRequest returns the most recent request for path, if any.
func (s *Server) LastRequest(path string) (RecordedRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.requests) - 1; i >= 0; i-- {
		if s.requests[i].Path == path {
			return s.requests[i], true
		}
	}
	return RecordedRequest{}, false
}

// Calculations returns the stored history for userID, newest first.
func (s *Server) Calculations(userID string) []Calculation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Calculation(nil), s.calculations[userID]...)
}

// Issued reports whether a verify for externalToken has completed.
func (s *Server) Issued(externalToken string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.issued[AccessTokenFor(externalToken)]
	return ok
}

// AccessTokenFor reports the internal token issued for externalToken's identity.
func AccessTokenFor(externalToken string) string {
	return "internal-" + externalToken
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body string
		if r.Body != nil {
			buf := new(strings.Builder)
			if _, err := copyLimited(buf, r); err == nil {
				body = buf.String()
			}
		}
		s.mu.Lock()
		s.requests = append(s.requests, RecordedRequest{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
			ContentType:   r.Header.Get("Content-Type"),
			Body:          body,
		})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) bearerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		s.mu.Lock()
		userID, ok := s.issued[token]
		s.mu.Unlock()
		if !ok {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), userID)))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func newID() string {
	return uuid.New().String()
}
