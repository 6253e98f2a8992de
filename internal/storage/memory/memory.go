// Package memory provides an in-memory Store with the same transactional
// semantics as the SQLite store. It backs tests and the memory backend.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"risparmio/internal/core"
	"risparmio/internal/storage"
)

// Store keeps all state in maps guarded by one mutex. Transactions run on a
// deep copy and swap it in on commit, so a failed transaction leaves no trace.
type Store struct {
	mu sync.Mutex
	st *state
}

type state struct {
	goals         map[string]core.Goal
	assets        map[string]core.Asset
	allocations   map[string]core.Allocation // key assetID+"/"+goalID
	history       []core.AllocationHistoryEntry
	nextHistoryID int64
	plans         map[string]core.MonthlyPlan // key goalID+"/"+month
	executions    map[string]core.ExecutionRecord
	snapshots     map[string][]core.ExecutionGoalSnapshot
	completed     map[string][]core.CompletedExecution
	contributions map[string]core.Contribution
	budgets       map[string]storage.BudgetApplication
}

func New() *Store {
	return &Store{st: &state{
		goals:         map[string]core.Goal{},
		assets:        map[string]core.Asset{},
		allocations:   map[string]core.Allocation{},
		nextHistoryID: 1,
		plans:         map[string]core.MonthlyPlan{},
		executions:    map[string]core.ExecutionRecord{},
		snapshots:     map[string][]core.ExecutionGoalSnapshot{},
		completed:     map[string][]core.CompletedExecution{},
		contributions: map[string]core.Contribution{},
		budgets:       map[string]storage.BudgetApplication{},
	}}
}

func (s *Store) Close() error { return nil }

// WithTx implements storage.Store. The mutex serializes writers the way the
// SQLite transaction boundary does.
func (s *Store) WithTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(&tx{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (st *state) clone() *state {
	c := &state{
		goals:         make(map[string]core.Goal, len(st.goals)),
		assets:        make(map[string]core.Asset, len(st.assets)),
		allocations:   make(map[string]core.Allocation, len(st.allocations)),
		history:       append([]core.AllocationHistoryEntry(nil), st.history...),
		nextHistoryID: st.nextHistoryID,
		plans:         make(map[string]core.MonthlyPlan, len(st.plans)),
		executions:    make(map[string]core.ExecutionRecord, len(st.executions)),
		snapshots:     make(map[string][]core.ExecutionGoalSnapshot, len(st.snapshots)),
		completed:     make(map[string][]core.CompletedExecution, len(st.completed)),
		contributions: make(map[string]core.Contribution, len(st.contributions)),
		budgets:       make(map[string]storage.BudgetApplication, len(st.budgets)),
	}
	for k, v := range st.goals {
		c.goals[k] = v
	}
	for k, v := range st.assets {
		c.assets[k] = v
	}
	for k, v := range st.allocations {
		c.allocations[k] = v
	}
	for k, v := range st.plans {
		c.plans[k] = v
	}
	for k, v := range st.executions {
		c.executions[k] = v
	}
	for k, v := range st.snapshots {
		c.snapshots[k] = append([]core.ExecutionGoalSnapshot(nil), v...)
	}
	for k, v := range st.completed {
		c.completed[k] = append([]core.CompletedExecution(nil), v...)
	}
	for k, v := range st.contributions {
		c.contributions[k] = v
	}
	for k, v := range st.budgets {
		c.budgets[k] = v
	}
	return c
}

type tx struct {
	st *state
}

func allocKey(assetID, goalID string) string { return assetID + "/" + goalID }
func planKey(goalID string, m core.Month) string {
	return goalID + "/" + m.String()
}

// Goals

func (t *tx) CreateGoal(g core.Goal) error {
	if _, ok := t.st.goals[g.ID]; ok {
		return fmt.Errorf("goal %s already exists", g.ID)
	}
	t.st.goals[g.ID] = g
	return nil
}

func (t *tx) UpdateGoal(g core.Goal) error {
	if _, ok := t.st.goals[g.ID]; !ok {
		return fmt.Errorf("goal %s: %w", g.ID, core.ErrNotFound)
	}
	t.st.goals[g.ID] = g
	return nil
}

func (t *tx) GetGoal(id string) (core.Goal, error) {
	g, ok := t.st.goals[id]
	if !ok {
		return core.Goal{}, fmt.Errorf("goal %s: %w", id, core.ErrNotFound)
	}
	return g, nil
}

func (t *tx) ListGoals(statuses ...core.GoalStatus) ([]core.Goal, error) {
	var out []core.Goal
	for _, g := range t.st.goals {
		if len(statuses) > 0 && !containsStatus(statuses, g.Status) {
			continue
		}
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Deadline.Equal(out[j].Deadline) {
			return out[i].Deadline.Before(out[j].Deadline)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *tx) DeleteGoal(id string) error {
	if _, ok := t.st.goals[id]; !ok {
		return fmt.Errorf("goal %s: %w", id, core.ErrNotFound)
	}
	delete(t.st.goals, id)
	for k, a := range t.st.allocations {
		if a.GoalID == id {
			delete(t.st.allocations, k)
		}
	}
	for k, p := range t.st.plans {
		if p.GoalID == id {
			delete(t.st.plans, k)
		}
	}
	for k, c := range t.st.contributions {
		if c.GoalID == id {
			delete(t.st.contributions, k)
		}
	}
	return nil
}

func containsStatus(ss []core.GoalStatus, s core.GoalStatus) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// Assets

func (t *tx) CreateAsset(a core.Asset) error {
	if _, ok := t.st.assets[a.ID]; ok {
		return fmt.Errorf("asset %s already exists", a.ID)
	}
	t.st.assets[a.ID] = a
	return nil
}

func (t *tx) UpdateAsset(a core.Asset) error {
	if _, ok := t.st.assets[a.ID]; !ok {
		return fmt.Errorf("asset %s: %w", a.ID, core.ErrNotFound)
	}
	t.st.assets[a.ID] = a
	return nil
}

func (t *tx) GetAsset(id string) (core.Asset, error) {
	a, ok := t.st.assets[id]
	if !ok {
		return core.Asset{}, fmt.Errorf("asset %s: %w", id, core.ErrNotFound)
	}
	return a, nil
}

func (t *tx) ListAssets() ([]core.Asset, error) {
	var out []core.Asset
	for _, a := range t.st.assets {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *tx) DeleteAsset(id string) error {
	if _, ok := t.st.assets[id]; !ok {
		return fmt.Errorf("asset %s: %w", id, core.ErrNotFound)
	}
	delete(t.st.assets, id)
	for k, a := range t.st.allocations {
		if a.AssetID == id {
			delete(t.st.allocations, k)
		}
	}
	for k, c := range t.st.contributions {
		if c.AssetID == id {
			delete(t.st.contributions, k)
		}
	}
	return nil
}

// Allocations

func (t *tx) GetAllocation(assetID, goalID string) (core.Allocation, error) {
	a, ok := t.st.allocations[allocKey(assetID, goalID)]
	if !ok {
		return core.Allocation{}, fmt.Errorf("allocation %s/%s: %w", assetID, goalID, core.ErrNotFound)
	}
	return a, nil
}

func (t *tx) ListAllocationsByAsset(assetID string) ([]core.Allocation, error) {
	var out []core.Allocation
	for _, a := range t.st.allocations {
		if a.AssetID == assetID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GoalID < out[j].GoalID })
	return out, nil
}

func (t *tx) ListAllocationsByGoal(goalID string) ([]core.Allocation, error) {
	var out []core.Allocation
	for _, a := range t.st.allocations {
		if a.GoalID == goalID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out, nil
}

func (t *tx) UpsertAllocation(a core.Allocation) error {
	t.st.allocations[allocKey(a.AssetID, a.GoalID)] = a
	return nil
}

func (t *tx) DeleteAllocation(assetID, goalID string) error {
	delete(t.st.allocations, allocKey(assetID, goalID))
	return nil
}

func (t *tx) AppendAllocationHistory(e core.AllocationHistoryEntry) error {
	e.ID = t.st.nextHistoryID
	t.st.nextHistoryID++
	t.st.history = append(t.st.history, e)
	return nil
}

func (t *tx) ListAllocationHistory(assetID string, limit int) ([]core.AllocationHistoryEntry, error) {
	var out []core.AllocationHistoryEntry
	for i := len(t.st.history) - 1; i >= 0 && len(out) < limit; i-- {
		if t.st.history[i].AssetID == assetID {
			out = append(out, t.st.history[i])
		}
	}
	return out, nil
}

// Monthly plans

func (t *tx) GetPlan(goalID string, month core.Month) (core.MonthlyPlan, error) {
	p, ok := t.st.plans[planKey(goalID, month)]
	if !ok {
		return core.MonthlyPlan{}, fmt.Errorf("plan %s/%s: %w", goalID, month, core.ErrNotFound)
	}
	return p, nil
}

func (t *tx) ListPlansByMonth(month core.Month) ([]core.MonthlyPlan, error) {
	var out []core.MonthlyPlan
	for _, p := range t.st.plans {
		if p.Month == month {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GoalID < out[j].GoalID })
	return out, nil
}

func (t *tx) UpsertPlan(p core.MonthlyPlan) error {
	key := planKey(p.GoalID, p.Month)
	if existing, ok := t.st.plans[key]; ok {
		p.ID = existing.ID
	}
	t.st.plans[key] = p
	return nil
}

// Execution records

func (t *tx) GetExecutionByMonth(month core.Month) (core.ExecutionRecord, error) {
	for _, r := range t.st.executions {
		if r.Month == month {
			return r, nil
		}
	}
	return core.ExecutionRecord{}, fmt.Errorf("execution record for %s: %w", month, core.ErrNotFound)
}

func (t *tx) GetExecution(id string) (core.ExecutionRecord, error) {
	r, ok := t.st.executions[id]
	if !ok {
		return core.ExecutionRecord{}, fmt.Errorf("execution record %s: %w", id, core.ErrNotFound)
	}
	return r, nil
}

func (t *tx) InsertExecution(r core.ExecutionRecord) error {
	if _, ok := t.st.executions[r.ID]; ok {
		return fmt.Errorf("execution record %s already exists", r.ID)
	}
	t.st.executions[r.ID] = r
	return nil
}

func (t *tx) UpdateExecution(r core.ExecutionRecord) error {
	if _, ok := t.st.executions[r.ID]; !ok {
		return fmt.Errorf("execution record %s: %w", r.ID, core.ErrNotFound)
	}
	t.st.executions[r.ID] = r
	return nil
}

func (t *tx) ReplaceSnapshotGoals(recordID string, snaps []core.ExecutionGoalSnapshot) error {
	t.st.snapshots[recordID] = append([]core.ExecutionGoalSnapshot(nil), snaps...)
	return nil
}

func (t *tx) ListSnapshotGoals(recordID string) ([]core.ExecutionGoalSnapshot, error) {
	snaps := append([]core.ExecutionGoalSnapshot(nil), t.st.snapshots[recordID]...)
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].GoalID < snaps[j].GoalID })
	return snaps, nil
}

func (t *tx) InsertCompletedExecutions(rows []core.CompletedExecution) error {
	for _, r := range rows {
		t.st.completed[r.RecordID] = append(t.st.completed[r.RecordID], r)
	}
	return nil
}

func (t *tx) DeleteCompletedExecutions(recordID string) error {
	delete(t.st.completed, recordID)
	return nil
}

func (t *tx) ListCompletedExecutions(recordID string) ([]core.CompletedExecution, error) {
	rows := append([]core.CompletedExecution(nil), t.st.completed[recordID]...)
	sort.Slice(rows, func(i, j int) bool { return rows[i].GoalID < rows[j].GoalID })
	return rows, nil
}

// Contributions

func (t *tx) InsertContribution(c core.Contribution) error {
	if _, ok := t.st.contributions[c.ID]; ok {
		return fmt.Errorf("contribution %s already exists", c.ID)
	}
	t.st.contributions[c.ID] = c
	return nil
}

func (t *tx) ListContributionsByRecord(recordID string) ([]core.Contribution, error) {
	var out []core.Contribution
	for _, c := range t.st.contributions {
		if c.RecordID != nil && *c.RecordID == recordID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *tx) SumContributionsByRecord(recordID string) (map[string]decimal.Decimal, error) {
	contributions, err := t.ListContributionsByRecord(recordID)
	if err != nil {
		return nil, err
	}
	totals := make(map[string]decimal.Decimal, len(contributions))
	for _, c := range contributions {
		totals[c.GoalID] = totals[c.GoalID].Add(c.Amount.Mul(c.ExchangeRate))
	}
	return totals, nil
}

// Budget applications

func (t *tx) GetBudgetApplication(month core.Month) (storage.BudgetApplication, error) {
	a, ok := t.st.budgets[month.String()]
	if !ok {
		return storage.BudgetApplication{}, fmt.Errorf("budget application for %s: %w", month, core.ErrNotFound)
	}
	return a, nil
}

func (t *tx) UpsertBudgetApplication(a storage.BudgetApplication) error {
	t.st.budgets[a.Month.String()] = a
	return nil
}
