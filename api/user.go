package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-dashboard-client/adapters"
)

const (
	RouteUserProfile  = "/v1/user/profile"
	RouteUserAPIKeys  = "/v1/user/api-keys"
	RouteUserStats    = "/v1/user/stats"
	RouteUserSessions = "/v1/user/sessions"
	RouteUserPlan     = "/v1/user/plan"
	RouteUserActivity = "/v1/user/activity"
)

// ProfileUpdate carries the editable profile fields; nil fields are left unchanged.
type ProfileUpdate struct {
	Name     *string `json:"name,omitempty"`
	Company  *string `json:"company,omitempty"`
	JobTitle *string `json:"job_title,omitempty"`
	Timezone *string `json:"timezone,omitempty"`
}

type APIKeyCreate struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions,omitempty"`
}

type UserEndpoints struct {
	c *Client
}

func (e *UserEndpoints) Profile(ctx context.Context) (adapters.User, error) {
	raw, err := e.c.Request(ctx, RouteUserProfile, RequestOptions{})
	if err != nil {
		return adapters.User{}, err
	}
	return decode(e.c, RouteUserProfile, raw, adapters.DecodeUser)
}

func (e *UserEndpoints) UpdateProfile(ctx context.Context, update ProfileUpdate) (adapters.User, error) {
	raw, err := e.c.Request(ctx, RouteUserProfile, RequestOptions{Method: http.MethodPut, Body: update})
	if err != nil {
		return adapters.User{}, err
	}
	return decode(e.c, RouteUserProfile, raw, adapters.DecodeUser)
}

func (e *UserEndpoints) APIKeys(ctx context.Context) ([]adapters.APIKey, error) {
	raw, err := e.c.Request(ctx, RouteUserAPIKeys, RequestOptions{})
	if err != nil {
		return []adapters.APIKey{}, err
	}
	return decode(e.c, RouteUserAPIKeys, raw, adapters.DecodeAPIKeys)
}

// CreateAPIKey returns the new key; its secret is only ever shown in this response.
func (e *UserEndpoints) CreateAPIKey(ctx context.Context, create APIKeyCreate) (adapters.APIKey, error) {
	raw, err := e.c.Request(ctx, RouteUserAPIKeys, RequestOptions{Method: http.MethodPost, Body: create})
	if err != nil {
		return adapters.APIKey{Permissions: []string{}}, err
	}
	return decode(e.c, RouteUserAPIKeys, raw, adapters.DecodeAPIKey)
}

func (e *UserEndpoints) DeleteAPIKey(ctx context.Context, keyID string) error {
	_, err := e.c.Request(ctx, RouteUserAPIKeys+"/"+url.PathEscape(keyID), RequestOptions{Method: http.MethodDelete})
	return err
}

func (e *UserEndpoints) Stats(ctx context.Context) (adapters.UserStats, error) {
	raw, err := e.c.Request(ctx, RouteUserStats, RequestOptions{})
	if err != nil {
		return adapters.UserStats{}, err
	}
	return decode(e.c, RouteUserStats, raw, adapters.DecodeUserStats)
}

func (e *UserEndpoints) Sessions(ctx context.Context) ([]adapters.Session, error) {
	raw, err := e.c.Request(ctx, RouteUserSessions, RequestOptions{})
	if err != nil {
		return []adapters.Session{}, err
	}
	return decode(e.c, RouteUserSessions, raw, adapters.DecodeSessions)
}

func (e *UserEndpoints) Plan(ctx context.Context) (adapters.Plan, error) {
	raw, err := e.c.Request(ctx, RouteUserPlan, RequestOptions{})
	if err != nil {
		return adapters.Plan{Features: []string{}}, err
	}
	return decode(e.c, RouteUserPlan, raw, adapters.DecodePlan)
}

// Activity returns the raw activity feed; its shape is display-only.
func (e *UserEndpoints) Activity(ctx context.Context) (any, error) {
	return e.c.Request(ctx, RouteUserActivity, RequestOptions{})
}
