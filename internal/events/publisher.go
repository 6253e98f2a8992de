package events

import "context"

// Publisher is the outbound event port of the engine. Implementations must
// not block mutating calls on broker availability.
type Publisher interface {
	PublishAllocationChanged(ctx context.Context, assetID string, goalIDs []string) error
	PublishPlanRecalculated(ctx context.Context, goalIDs []string) error
	PublishExecutionStateChanged(ctx context.Context, recordID, status string) error
}

// Nop discards every event. Used when no broker is configured and in tests.
type Nop struct{}

func (Nop) PublishAllocationChanged(context.Context, string, []string) error { return nil }
func (Nop) PublishPlanRecalculated(context.Context, []string) error          { return nil }
func (Nop) PublishExecutionStateChanged(context.Context, string, string) error {
	return nil
}
