package otel

import (
	"go.opentelemetry.io/otel/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	sdk "go.opentelemetry.io/otel"
)

// endpointExcluder provides a sampler that excludes configured endpoints from
// tracing while sampling everything else at the configured probability.
type endpointExcluder struct {
	endpoints   map[string]struct{}
	probability float64
}

func newEndpointExcluder(endpoints map[string]struct{}, probability float64) endpointExcluder {
	return endpointExcluder{
		endpoints:   endpoints,
		probability: probability,
	}
}

// ShouldSample implements the sampler interface. It checks the route attribute
// on the span against the excluded endpoints.
func (ee endpointExcluder) ShouldSample(params sdktrace.SamplingParameters) sdktrace.SamplingResult {
	for i := range params.Attributes {
		if params.Attributes[i].Key == "http.target" {
			if _, exists := ee.endpoints[params.Attributes[i].Value.AsString()]; exists {
				return sdktrace.SamplingResult{Decision: sdktrace.Drop}
			}
		}
	}

	return sdktrace.TraceIDRatioBased(ee.probability).ShouldSample(params)
}

// Description implements the sampler interface.
func (endpointExcluder) Description() string { return "customSampler" }

// GetMeterProvider returns the globally registered meter provider.
func GetMeterProvider() metric.MeterProvider { return sdk.GetMeterProvider() }
