package application

import (
	"time"

	"github.com/felixgeelhaar/specflow/domain/approval"
	"github.com/felixgeelhaar/specflow/domain/suggestion"
	"github.com/felixgeelhaar/specflow/domain/usage"
	"github.com/felixgeelhaar/specflow/infrastructure/telemetry"
)

// ServiceOption configures the evolution service.
type ServiceOption func(*EvolutionService)

// WithWriter sets the writer that materializes approved suggestions.
func WithWriter(w suggestion.Writer) ServiceOption {
	return func(s *EvolutionService) {
		s.writer = w
	}
}

// WithApprovalRequester sets the out-of-band approval transport.
func WithApprovalRequester(r approval.Requester) ServiceOption {
	return func(s *EvolutionService) {
		s.requester = r
	}
}

// WithServiceMetrics sets the metrics recorder.
func WithServiceMetrics(m telemetry.Metrics) ServiceOption {
	return func(s *EvolutionService) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithServiceClock sets the clock used to stamp decisions.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *EvolutionService) {
		if now != nil {
			s.now = now
		}
	}
}

// PipelineOption configures the pipeline.
type PipelineOption func(*Pipeline)

// WithPolicy sets the evolution policy enforced by the pipeline.
func WithPolicy(c *suggestion.Config) PipelineOption {
	return func(p *Pipeline) {
		p.policy = c
	}
}

// WithBaselineWindow sets how far before the query window baselines reach.
// Zero disables baseline comparison.
func WithBaselineWindow(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		p.baselineWindow = d
	}
}

// WithLifecycle sets the lifecycle context used to augment hints.
func WithLifecycle(lc *usage.LifecycleContext) PipelineOption {
	return func(p *Pipeline) {
		p.lifecycle = lc
	}
}

// WithSession submits pipeline suggestions under session so pending ones
// produce approval requests.
func WithSession(session *approval.Session) PipelineOption {
	return func(p *Pipeline) {
		p.session = session
	}
}

// WithStrategy names the generation strategy in metrics and logs.
func WithStrategy(name string) PipelineOption {
	return func(p *Pipeline) {
		p.strategy = name
	}
}

// WithPipelineMetrics sets the metrics recorder.
func WithPipelineMetrics(m telemetry.Metrics) PipelineOption {
	return func(p *Pipeline) {
		if m != nil {
			p.metrics = m
		}
	}
}
