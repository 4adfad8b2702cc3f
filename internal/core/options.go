package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultApprovalThreshold is the share of the items total a quote discount
// may reach before approval is required.
var DefaultApprovalThreshold = decimal.RequireFromString("0.15")

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock overrides the time source used for date stamping and projections.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(metrics MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// WithTracer sets the span tracer.
func WithTracer(tracer Tracer) ServiceOption {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithApprovalThreshold overrides the discount approval threshold.
func WithApprovalThreshold(threshold decimal.Decimal) ServiceOption {
	return func(s *Service) {
		if threshold.IsPositive() {
			s.gate.Threshold = threshold
		}
	}
}

// WithCatalog supplies field metadata used to strip projection fields from
// payloads.
func WithCatalog(catalog FieldCatalog) ServiceOption {
	return func(s *Service) {
		if catalog != nil {
			s.catalog = catalog
		}
	}
}

func systemClock() Clock {
	return ClockFunc(func() time.Time { return time.Now().UTC() })
}
