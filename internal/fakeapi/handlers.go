package fakeapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

const maxBody = 1 << 20

func copyLimited(dst *strings.Builder, r *http.Request) (int64, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return 0, err
	}
	r.Body = io.NopCloser(strings.NewReader(string(data)))
	n, err := dst.Write(data)
	return int64(n), err
}

func withUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func userIDFrom(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}

func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Token == "" {
		body.Token, _ = strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	}

	s.mu.Lock()
	gate := s.verifyGates[body.Token]
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	s.mu.Lock()
	identity, ok := s.identities[body.Token]
	if ok {
		s.issued[AccessTokenFor(body.Token)] = identity.ID
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid Supabase token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  AccessTokenFor(body.Token),
		"refresh_token": "refresh-" + body.Token,
		"token_type":    "bearer",
		"message":       "Authentication successful",
		"user":          userJSON(identity),
	})
}

func userJSON(identity Identity) map[string]any {
	return map[string]any{
		"id":             identity.ID,
		"email":          identity.Email,
		"name":           identity.Name,
		"email_verified": true,
		"plan":           "free",
		"created_at":     "2025-01-01T00:00:00Z",
		"updated_at":     "2025-01-01T00:00:00Z",
	}
}

func (s *Server) identityByUserID(userID string) Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, identity := range s.identities {
		if identity.ID == userID {
			return identity
		}
	}
	return Identity{ID: userID}
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userJSON(s.identityByUserID(userIDFrom(r))))
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	var update map[string]any
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid profile")
		return
	}
	out := userJSON(s.identityByUserID(userIDFrom(r)))
	for k, v := range update {
		out[k] = v
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"total_calls": 12, "monthly_calls": 5, "active_keys": 1})
}

func (s *Server) calculate(w http.ResponseWriter, r *http.Request) {
	var input map[string]any
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid calculation input")
		return
	}
	if company, _ := input["company"].(string); company == "" {
		writeError(w, http.StatusUnprocessableEntity, "Company name is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"company":         input["company"],
		"total_emissions": 1.25,
		"unit":            "tCO2e",
	})
}

func (s *Server) listCalculations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"calculations": s.Calculations(userIDFrom(r))})
}

func (s *Server) createCalculation(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	fail := s.createsDown || s.failCreates > 0
	if s.failCreates > 0 {
		s.failCreates--
	}
	s.mu.Unlock()
	if fail {
		writeError(w, http.StatusServiceUnavailable, "Calculation store unavailable")
		return
	}

	var calc Calculation
	if err := json.NewDecoder(r.Body).Decode(&calc); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid calculation")
		return
	}
	calc.ID = newID()
	if calc.Timestamp.IsZero() {
		calc.Timestamp = time.Now().UTC()
	}

	userID := userIDFrom(r)
	s.mu.Lock()
	s.calculations[userID] = append([]Calculation{calc}, s.calculations[userID]...)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, calc)
}

func (s *Server) deleteCalculation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	userID := userIDFrom(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.calculations[userID]
	for i, calc := range list {
		if calc.ID == id {
			s.calculations[userID] = append(list[:i:i], list[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeError(w, http.StatusNotFound, "Calculation not found")
}

func (s *Server) notifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"data": []map[string]any{
		{"id": 7, "title": "Welcome", "message": "Thanks for signing up", "read": true, "created_at": "2025-01-01T00:00:00Z"},
		{"id": 8, "title": "Quota", "message": "80% of monthly quota used", "read": false, "category": "billing", "created_at": "2025-01-02T00:00:00Z"},
	}})
}

func (s *Server) rateLimits(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"rate_limit": "1000/3600",
		"keys":       []map[string]any{{"key_id": 1, "prefix": "sk_test", "rate_limit": "100/60"}},
	}})
}
