package api

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/jrsteele09/go-dashboard-client/adapters"
)

const (
	RouteEmissionsCalculate    = "/v1/emissions/calculate"
	RouteEmissionsCalculations = "/v1/emissions/calculations"
	RouteValidationEPA         = "/v1/validation/epa"
	RouteExportSECPackage      = "/v1/export/sec/package"
	RouteExportSECSummary      = "/v1/export/sec/summary"
)

// CalculationCreate is the body for persisting a calculation server-side.
// Timestamp carries the original local time when a pending record migrates.
type CalculationCreate struct {
	Company   string         `json:"company"`
	Input     map[string]any `json:"input"`
	Result    map[string]any `json:"result"`
	Name      *string        `json:"name,omitempty"`
	Timestamp *time.Time     `json:"timestamp,omitempty"`
}

type EmissionEndpoints struct {
	c *Client
}

// Calculate runs the remote emission calculation. The result is opaque to
// the client and returned as an object.
func (e *EmissionEndpoints) Calculate(ctx context.Context, input map[string]any) (map[string]any, error) {
	raw, err := e.c.Request(ctx, RouteEmissionsCalculate, RequestOptions{Method: http.MethodPost, Body: input})
	if err != nil {
		return map[string]any{}, err
	}
	return decode(e.c, RouteEmissionsCalculate, raw, adapters.DecodeObject)
}

func (e *EmissionEndpoints) History(ctx context.Context) ([]adapters.Calculation, error) {
	raw, err := e.c.Request(ctx, RouteEmissionsCalculations, RequestOptions{})
	if err != nil {
		return []adapters.Calculation{}, err
	}
	return decode(e.c, RouteEmissionsCalculations, raw, adapters.DecodeCalculations)
}

func (e *EmissionEndpoints) CreateCalculation(ctx context.Context, create CalculationCreate) (adapters.Calculation, error) {
	raw, err := e.c.Request(ctx, RouteEmissionsCalculations, RequestOptions{Method: http.MethodPost, Body: create})
	if err != nil {
		return adapters.Calculation{}, err
	}
	return decode(e.c, RouteEmissionsCalculations, raw, adapters.DecodeCalculation)
}

func (e *EmissionEndpoints) DeleteCalculation(ctx context.Context, id string) error {
	_, err := e.c.Request(ctx, RouteEmissionsCalculations+"/"+url.PathEscape(id), RequestOptions{Method: http.MethodDelete})
	return err
}

type ValidationEndpoints struct {
	c *Client
}

// EPA checks the input against EPA reporting rules.
func (e *ValidationEndpoints) EPA(ctx context.Context, input map[string]any) (map[string]any, error) {
	raw, err := e.c.Request(ctx, RouteValidationEPA, RequestOptions{Method: http.MethodPost, Body: input})
	if err != nil {
		return map[string]any{}, err
	}
	return decode(e.c, RouteValidationEPA, raw, adapters.DecodeObject)
}

type ExportEndpoints struct {
	c *Client
}

func (e *ExportEndpoints) SECPackage(ctx context.Context, input map[string]any) (map[string]any, error) {
	raw, err := e.c.Request(ctx, RouteExportSECPackage, RequestOptions{Method: http.MethodPost, Body: input})
	if err != nil {
		return map[string]any{}, err
	}
	return decode(e.c, RouteExportSECPackage, raw, adapters.DecodeObject)
}

func (e *ExportEndpoints) Summary(ctx context.Context, input map[string]any) (map[string]any, error) {
	raw, err := e.c.Request(ctx, RouteExportSECSummary, RequestOptions{Method: http.MethodPost, Body: input})
	if err != nil {
		return map[string]any{}, err
	}
	return decode(e.c, RouteExportSECSummary, raw, adapters.DecodeObject)
}
