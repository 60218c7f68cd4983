package api

import (
	"context"
	"net/http"

	"github.com/jrsteele09/go-dashboard-client/adapters"
)

const (
	RouteAuthVerify = "/v1/auth/supabase/verify"
	RouteAuthMe     = "/v1/auth/supabase/me"
)

type AuthEndpoints struct {
	c *Client
}

// Verify trades an identity-provider session token for an internal credential
// and the user's profile. The external token travels both as the bearer header
// and in the body, so the exchange never carries a stale internal token.
func (e *AuthEndpoints) Verify(ctx context.Context, externalToken string) (adapters.VerifyResponse, error) {
	raw, err := e.c.Request(ctx, RouteAuthVerify, RequestOptions{
		Method:  http.MethodPost,
		Headers: map[string]string{"Authorization": "Bearer " + externalToken},
		Body:    map[string]string{"token": externalToken},
	})
	if err != nil {
		return adapters.VerifyResponse{}, err
	}
	// The verify response is always validated: a credential-less success is unusable.
	return adapters.DecodeVerifyResponse(raw)
}

func (e *AuthEndpoints) Me(ctx context.Context) (adapters.User, error) {
	raw, err := e.c.Request(ctx, RouteAuthMe, RequestOptions{})
	if err != nil {
		return adapters.User{}, err
	}
	return decode(e.c, RouteAuthMe, raw, adapters.DecodeUser)
}
