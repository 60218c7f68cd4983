// Package fakeidp is an in-process OpenID Connect issuer for tests. It serves
// discovery, JWKS, a token endpoint with the password and refresh_token grants,
// revocation and the account endpoints used for sign-up and password reset.
package fakeidp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	RouteWellKnownOpenIDConfig = "/.well-known/openid-configuration"
	RouteWellKnownJWKS         = "/.well-known/jwks.json"
	RouteToken                 = "/oauth2/token"
	RouteRevoke                = "/oauth2/revoke"
	RouteSignUp                = "/signup"
	RouteRecover               = "/recover"

	contentTypeJSON = "application/json; charset=utf-8"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

type Issuer struct {
	*httptest.Server

	clientID string
	keys     *keyPair

	mu            sync.Mutex
	accounts      map[string]account // email -> account
	refreshTokens map[string]string  // refresh token -> email
	lifetime      time.Duration
	rateLimited   bool
	grants        map[string]int
	revoked       []string
	signUps       []string
	recoveries    []string
}

// New starts an issuer that accepts clientID. Callers Close it when done.
func New(clientID string) (*Issuer, error) {
	keys, err := generateKeyPair("fakeidp-" + uuid.NewString()[:8])
	if err != nil {
		return nil, err
	}
	iss := &Issuer{
		clientID:      clientID,
		keys:          keys,
		accounts:      make(map[string]account),
		refreshTokens: make(map[string]string),
		lifetime:      time.Hour,
		grants:        make(map[string]int),
	}
	iss.Server = httptest.NewServer(iss.routes())
	return iss, nil
}

func (iss *Issuer) routes() http.Handler {
	r := chi.NewRouter()
	r.Get(RouteWellKnownOpenIDConfig, iss.wellKnownOpenIDConfig)
	r.Get(RouteWellKnownJWKS, iss.jwksHandler)
	r.Post(RouteToken, iss.token)
	r.Post(RouteRevoke, iss.revoke)
	r.Post(RouteSignUp, iss.signUp)
	r.Post(RouteRecover, iss.recover)
	return r
}

// AddUser registers a password account and returns its subject.
func (iss *Issuer) AddUser(email, password string, confirmed bool) string {
	iss.mu.Lock()
	defer iss.mu.Unlock()
	sub := uuid.NewString()
	acc, err := newAccount(sub, password, confirmed)
	if err != nil {
		panic(err)
	}
	iss.accounts[strings.ToLower(email)] = acc
	return sub
}

// SetTokenLifetime sets the expiry of tokens issued from now on.
func (iss *Issuer) SetTokenLifetime(d time.Duration) {
	iss.mu.Lock()
	defer iss.mu.Unlock()
	iss.lifetime = d
}

// SetRateLimited makes every token request answer 429.
func (iss *Issuer) SetRateLimited(limited bool) {
	iss.mu.Lock()
	defer iss.mu.Unlock()
	iss.rateLimited = limited
}

// RevokeAllRefreshTokens invalidates every outstanding refresh token.
func (iss *Issuer) RevokeAllRefreshTokens() {
	iss.mu.Lock()
	defer iss.mu.Unlock()
	iss.refreshTokens = make(map[string]string)
}

// Grants reports how many tokens were issued for grantType.
func (iss *Issuer) Grants(grantType string) int {
	iss.mu.Lock()
	defer iss.mu.Unlock()
	return iss.grants[grantType]
}

// Revoked lists the tokens posted to the revocation endpoint.
func (iss *Issuer) Revoked() []string {
	iss.mu.Lock()
	defer iss.mu.Unlock()
	return append([]string(nil), iss.revoked...)
}

func (iss *Issuer) SignUps() []string {
	iss.mu.Lock()
	defer iss.mu.Unlock()
	return append([]string(nil), iss.signUps...)
}

func (iss *Issuer) Recoveries() []string {
	iss.mu.Lock()
	defer iss.mu.Unlock()
	return append([]string(nil), iss.recoveries...)
}

func (iss *Issuer) wellKnownOpenIDConfig(w http.ResponseWriter, r *http.Request) {
	baseURL := iss.URL
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                baseURL,
		"authorization_endpoint":                baseURL + "/oauth2/authorize",
		"token_endpoint":                        baseURL + RouteToken,
		"jwks_uri":                              baseURL + RouteWellKnownJWKS,
		"revocation_endpoint":                   baseURL + RouteRevoke,
		"response_types_supported":              []string{"code"},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{rs256},
		"scopes_supported":                      []string{"openid", "profile", "email", "offline_access"},
		"grant_types_supported":                 []string{"password", "refresh_token"},
	})
}

func (iss *Issuer) jwksHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, iss.keys.jwks())
}

func (iss *Issuer) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, "invalid_request", "Failed to parse form data", http.StatusBadRequest)
		return
	}
	clientID := r.FormValue("client_id")
	if user, _, ok := r.BasicAuth(); ok {
		clientID = user
	}
	if clientID != iss.clientID {
		writeOAuthError(w, "invalid_client", "Unknown client", http.StatusUnauthorized)
		return
	}

	iss.mu.Lock()
	defer iss.mu.Unlock()

	if iss.rateLimited {
		writeOAuthError(w, "over_request_rate_limit", "Request rate limit reached", http.StatusTooManyRequests)
		return
	}

	grantType := r.FormValue("grant_type")
	var email string
	switch grantType {
	case "password":
		email = strings.ToLower(r.FormValue("username"))
		acc, ok := iss.accounts[email]
		if !ok || !acc.checkPassword(r.FormValue("password")) {
			writeOAuthError(w, "invalid_grant", "Invalid login credentials", http.StatusBadRequest)
			return
		}
		if !acc.confirmed {
			writeOAuthError(w, "invalid_grant", "Email not confirmed", http.StatusBadRequest)
			return
		}
	case "refresh_token":
		var ok bool
		email, ok = iss.refreshTokens[r.FormValue("refresh_token")]
		if !ok {
			writeOAuthError(w, "invalid_grant", "Invalid Refresh Token", http.StatusBadRequest)
			return
		}
		// refresh tokens rotate on each use
		delete(iss.refreshTokens, r.FormValue("refresh_token"))
	default:
		writeOAuthError(w, "unsupported_grant_type", grantType, http.StatusBadRequest)
		return
	}

	resp, err := iss.issueLocked(email)
	if err != nil {
		writeOAuthError(w, "server_error", err.Error(), http.StatusInternalServerError)
		return
	}
	iss.grants[grantType]++

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	writeJSON(w, http.StatusOK, resp)
}

func (iss *Issuer) issueLocked(email string) (map[string]any, error) {
	acc := iss.accounts[email]
	now := NowTimeFunc()
	exp := now.Add(iss.lifetime)

	idToken, err := iss.keys.sign(jwt.MapClaims{
		"iss":   iss.URL,
		"sub":   acc.sub,
		"aud":   iss.clientID,
		"email": email,
		"iat":   now.Unix(),
		"exp":   exp.Unix(),
		"jti":   uuid.NewString(),
	})
	if err != nil {
		return nil, err
	}
	accessToken, err := iss.keys.sign(jwt.MapClaims{
		"iss":   iss.URL,
		"sub":   acc.sub,
		"email": email,
		"iat":   now.Unix(),
		"exp":   exp.Unix(),
		"jti":   uuid.NewString(),
	})
	if err != nil {
		return nil, err
	}
	refreshToken, err := newRefreshToken()
	if err != nil {
		return nil, err
	}
	iss.refreshTokens[refreshToken] = email

	return map[string]any{
		"access_token":  accessToken,
		"id_token":      idToken,
		"refresh_token": refreshToken,
		"token_type":    "bearer",
		"expires_in":    int(iss.lifetime.Seconds()),
	}, nil
}

func (iss *Issuer) revoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, "invalid_request", "Failed to parse form data", http.StatusBadRequest)
		return
	}
	token := r.FormValue("token")
	iss.mu.Lock()
	delete(iss.refreshTokens, token)
	iss.revoked = append(iss.revoked, token)
	iss.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (iss *Issuer) signUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string         `json:"email"`
		Password string         `json:"password"`
		Data     map[string]any `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid body"})
		return
	}
	if !strings.Contains(body.Email, "@") {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "Unable to validate email address: invalid format"})
		return
	}
	if err := validatePasswordStrength(body.Password); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": err.Error()})
		return
	}
	acc, err := newAccount(uuid.NewString(), body.Password, false)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": err.Error()})
		return
	}
	iss.mu.Lock()
	iss.accounts[strings.ToLower(body.Email)] = acc
	iss.signUps = append(iss.signUps, body.Email)
	iss.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"email": body.Email})
}

func (iss *Issuer) recover(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "Unable to validate email address: invalid format"})
		return
	}
	iss.mu.Lock()
	limited := iss.rateLimited
	if !limited {
		iss.recoveries = append(iss.recoveries, body.Email)
	}
	iss.mu.Unlock()
	if limited {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"message": "Email rate limit exceeded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeOAuthError writes an OAuth2 error response
func writeOAuthError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}
