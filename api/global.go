package api

import (
	"context"
	"net/url"

	"github.com/jrsteele09/go-dashboard-client/adapters"
)

const (
	RouteGlobalEmissions      = "/v1/global/emissions"
	RouteGlobalEmissionsStats = "/v1/global/emissions/stats"
	RouteGlobalISO            = "/v1/global/iso"
	RouteGlobalEEA            = "/v1/global/eea"
)

type GlobalEndpoints struct {
	c *Client
}

func queryOf(params map[string]string) url.Values {
	if len(params) == 0 {
		return nil
	}
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	return q
}

func (e *GlobalEndpoints) Emissions(ctx context.Context, params map[string]string) ([]adapters.EmissionData, error) {
	raw, err := e.c.Request(ctx, RouteGlobalEmissions, RequestOptions{Query: queryOf(params)})
	if err != nil {
		return []adapters.EmissionData{}, err
	}
	return decode(e.c, RouteGlobalEmissions, raw, adapters.DecodeEmissions)
}

func (e *GlobalEndpoints) EmissionStats(ctx context.Context) (adapters.EmissionStats, error) {
	raw, err := e.c.Request(ctx, RouteGlobalEmissionsStats, RequestOptions{})
	if err != nil {
		return adapters.EmissionStats{Pollutants: []string{}}, err
	}
	return decode(e.c, RouteGlobalEmissionsStats, raw, adapters.DecodeEmissionStats)
}

func (e *GlobalEndpoints) ISO(ctx context.Context, params map[string]string) ([]adapters.EmissionData, error) {
	raw, err := e.c.Request(ctx, RouteGlobalISO, RequestOptions{Query: queryOf(params)})
	if err != nil {
		return []adapters.EmissionData{}, err
	}
	return decode(e.c, RouteGlobalISO, raw, adapters.DecodeEmissions)
}

func (e *GlobalEndpoints) EEA(ctx context.Context, params map[string]string) ([]adapters.EmissionData, error) {
	raw, err := e.c.Request(ctx, RouteGlobalEEA, RequestOptions{Query: queryOf(params)})
	if err != nil {
		return []adapters.EmissionData{}, err
	}
	return decode(e.c, RouteGlobalEEA, raw, adapters.DecodeEmissions)
}
