package events

import (
	"encoding/json"
	"time"
)

// Routing keys for engine events. The engine only publishes; nothing in the
// engine subscribes to its own events except the recompute worker.
const (
	RouteAllocationChanged     = "allocation.changed"
	RoutePlanRecalculated      = "plan.recalculated"
	RouteExecutionStateChanged = "execution.state_changed"
)

// AllocationChanged signals that an asset's allocation set was mutated and
// names the goals whose plans may need recomputation.
type AllocationChanged struct {
	AssetID   string    `json:"asset_id"`
	GoalIDs   []string  `json:"goal_ids"`
	Timestamp time.Time `json:"timestamp"`
}

// PlanRecalculated signals that required amounts were recomputed.
type PlanRecalculated struct {
	GoalIDs   []string  `json:"goal_ids"`
	Timestamp time.Time `json:"timestamp"`
}

// ExecutionStateChanged signals an execution record transition.
type ExecutionStateChanged struct {
	RecordID  string    `json:"record_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func (m *AllocationChanged) ToJSON() ([]byte, error) { return json.Marshal(m) }

func AllocationChangedFromJSON(data []byte) (*AllocationChanged, error) {
	var msg AllocationChanged
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (m *PlanRecalculated) ToJSON() ([]byte, error) { return json.Marshal(m) }

func (m *ExecutionStateChanged) ToJSON() ([]byte, error) { return json.Marshal(m) }
