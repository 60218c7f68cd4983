package api

import (
	"context"
	"net/url"
	"strconv"

	"github.com/jrsteele09/go-dashboard-client/adapters"
)

const (
	RouteDeveloperStats          = "/v1/developer/stats"
	RouteDeveloperUsageAnalytics = "/v1/developer/usage-analytics"
	RouteDeveloperRateLimits     = "/v1/developer/rate-limits"
)

type DeveloperEndpoints struct {
	c *Client
}

func (e *DeveloperEndpoints) Stats(ctx context.Context) (adapters.DeveloperStats, error) {
	raw, err := e.c.Request(ctx, RouteDeveloperStats, RequestOptions{})
	if err != nil {
		return adapters.DeveloperStats{}, err
	}
	return decode(e.c, RouteDeveloperStats, raw, adapters.DecodeDeveloperStats)
}

// UsageAnalytics covers the last hours hours; zero lets the backend choose.
func (e *DeveloperEndpoints) UsageAnalytics(ctx context.Context, hours int) (adapters.UsageAnalytics, error) {
	var query url.Values
	if hours > 0 {
		query = url.Values{"hours": []string{strconv.Itoa(hours)}}
	}
	raw, err := e.c.Request(ctx, RouteDeveloperUsageAnalytics, RequestOptions{Query: query})
	if err != nil {
		return adapters.AdaptUsageAnalytics(nil), err
	}
	return decode(e.c, RouteDeveloperUsageAnalytics, raw, adapters.DecodeUsageAnalytics)
}

func (e *DeveloperEndpoints) RateLimits(ctx context.Context) (adapters.RateLimits, error) {
	raw, err := e.c.Request(ctx, RouteDeveloperRateLimits, RequestOptions{})
	if err != nil {
		return adapters.AdaptRateLimits(nil), err
	}
	return decode(e.c, RouteDeveloperRateLimits, raw, adapters.DecodeRateLimits)
}
