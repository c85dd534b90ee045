package cascade

import (
	"context"

	"github.com/aiorch/core/internal/eventbus"
)

// BusEventSink adapts an eventbus.Bus to the EventSink interface cascade
// itself depends on, so this package never imports eventbus's Bus directly
// into its core traversal logic.
type BusEventSink struct {
	Bus eventbus.Bus
}

func (s *BusEventSink) Started(chain string, queryLength int) {
	s.Bus.Publish(context.Background(), eventbus.TopicCascadeStarted, eventbus.CascadeStarted{
		Chain: chain, QueryLength: queryLength,
	})
}

func (s *BusEventSink) StepComplete(r StepResult) {
	s.Bus.Publish(context.Background(), eventbus.TopicCascadeStepComplete, eventbus.CascadeStepComplete{
		Chain: "", Step: r.Step, Model: r.Model, Quality: r.Quality, Escalated: r.Escalated, CostCents: r.CostUSD * 100,
	})
}

func (s *BusEventSink) Completed(o Outcome, durationMS int64) {
	s.Bus.Publish(context.Background(), eventbus.TopicCascadeComplete, eventbus.CascadeComplete{
		Chain: o.Chain, FinalModel: string(o.FinalTier), TotalSteps: len(o.Steps),
		TotalCostCents: o.TotalCostUSD * 100, DurationMS: durationMS,
	})
}
