package adapters

import "time"

// User is the profile projection returned by the verify and profile endpoints.
type User struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name,omitempty"`
	Company       string `json:"company,omitempty"`
	JobTitle      string `json:"job_title,omitempty"`
	AvatarURL     string `json:"avatar_url,omitempty"`
	Timezone      string `json:"timezone,omitempty"`
	EmailVerified bool   `json:"email_verified"`
	Plan          string `json:"plan"`
	LastLogin     string `json:"last_login,omitempty"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// VerifyResponse is the result of trading an identity-provider session for an
// internal credential.
type VerifyResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	Message      string `json:"message"`
	User         *User  `json:"user"`
}

type UserStats struct {
	TotalRequests     int64 `json:"total_requests"`
	RequestsToday     int64 `json:"requests_today"`
	RequestsThisMonth int64 `json:"requests_this_month"`
	APIKeysCount      int64 `json:"api_keys_count"`
	ActiveSessions    int64 `json:"active_sessions"`
}

type APIKey struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Prefix      string   `json:"prefix"`
	Permissions []string `json:"permissions"`
	IsActive    bool     `json:"is_active"`
	LastUsed    string   `json:"last_used,omitempty"`
	UsageCount  int64    `json:"usage_count"`
	CreatedAt   string   `json:"created_at"`
	Key         string   `json:"key,omitempty"` // only present in the create response
}

type Session struct {
	ID         string `json:"id"`
	DeviceInfo string `json:"device_info,omitempty"`
	IPAddress  string `json:"ip_address,omitempty"`
	Location   string `json:"location,omitempty"`
	LastActive string `json:"last_active"`
	CreatedAt  string `json:"created_at"`
}

type Plan struct {
	Name          string   `json:"name"`
	RequestsLimit int64    `json:"requests_limit"`
	RequestsUsed  int64    `json:"requests_used"`
	Features      []string `json:"features"`
}

type Notification struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Category  string `json:"category,omitempty"`
	IsRead    bool   `json:"is_read"`
	CreatedAt string `json:"created_at"`
}

type EmissionData struct {
	ID        string  `json:"id"`
	State     string  `json:"state,omitempty"`
	Year      int     `json:"year,omitempty"`
	Pollutant string  `json:"pollutant,omitempty"`
	Value     float64 `json:"value"`
	Unit      string  `json:"unit"`
	Source    string  `json:"source,omitempty"`
}

type YearsRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

type EmissionStats struct {
	TotalRecords  int64      `json:"total_records"`
	StatesCovered int        `json:"states_covered"`
	YearsRange    YearsRange `json:"years_range"`
	Pollutants    []string   `json:"pollutants"`
}

type DeveloperStats struct {
	RequestsCount      int64 `json:"requests_count"`
	RequestsLimit      int64 `json:"requests_limit"`
	RateLimitRemaining int64 `json:"rate_limit_remaining"`
	RateLimitReset     int64 `json:"rate_limit_reset"`
}

type EndpointUsage struct {
	Endpoint string `json:"endpoint"`
	Count    int64  `json:"count"`
}

type UsageAnalytics struct {
	Period             string          `json:"period"`
	TotalRequests      int64           `json:"total_requests"`
	SuccessfulRequests int64           `json:"successful_requests"`
	ErrorRequests      int64           `json:"error_requests"`
	EndpointsUsage     []EndpointUsage `json:"endpoints_usage"`
}

// RateLimitInfo is a parsed "<limit>/<window_seconds>" string.
type RateLimitInfo struct {
	Raw           string `json:"raw"`
	Limit         int64  `json:"limit"`
	WindowSeconds int64  `json:"window_seconds"`
}

type KeyRateLimit struct {
	KeyID     string        `json:"key_id"`
	Prefix    string        `json:"prefix"`
	RateLimit RateLimitInfo `json:"rate_limit"`
}

type RateLimits struct {
	Default RateLimitInfo  `json:"default"`
	Keys    []KeyRateLimit `json:"keys"`
}

// Calculation is a server-side calculation history entry. ID is nil until the
// backend has confirmed the record.
type Calculation struct {
	ID        *string        `json:"id,omitempty"`
	Company   string         `json:"company"`
	Input     map[string]any `json:"input"`
	Result    map[string]any `json:"result"`
	Timestamp time.Time      `json:"timestamp"`
	Name      *string        `json:"name,omitempty"`
}
