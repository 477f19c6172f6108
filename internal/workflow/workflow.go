// Package workflow defines the ordered loan-processing steps and the rules
// hanging off them: escalations, time limits and role assignments.
package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"loanadmin.org/internal/apperr"
	"loanadmin.org/internal/repo"
	"loanadmin.org/internal/store"
)

// Storage keys.
const (
	StepsKey       = "workflowSteps"
	EscalationsKey = "workflowEscalations"
	TimeLimitsKey  = "workflowTimeLimits"
	AssignmentsKey = "workflowStepAssign"
)

type StepType string

const (
	StepManual StepType = "manual"
	StepSystem StepType = "system"
)

type Step struct {
	repo.Meta
	Name          string   `json:"name" validate:"required"`
	Type          StepType `json:"type" validate:"oneof=manual system"`
	DurationHours int      `json:"duration" validate:"gte=0"`
	Order         int      `json:"order"`
	Description   string   `json:"description"`
}

type StepUpdate struct {
	Name          *string   `json:"name,omitempty"`
	Type          *StepType `json:"type,omitempty"`
	DurationHours *int      `json:"duration,omitempty"`
	Description   *string   `json:"description,omitempty"`
}

type Escalation struct {
	repo.Meta
	StepID          string `json:"step_id" validate:"required"`
	AfterHours      int    `json:"after_hours" validate:"gte=1"`
	EscalateToRole  string `json:"escalate_to_role"`
	EscalateToEmail string `json:"escalate_to_email" validate:"omitempty,email"`
	Message         string `json:"message"`
	AutoReassign    bool   `json:"auto_reassign"`
	RetryAttempts   int    `json:"retry_attempts" validate:"gte=0"`
}

const defaultEscalationMessage = "Your step is delayed. Please take necessary action."

// TimeLimit bounds how long a step may take. ReminderBefore is hours before the deadline.
type TimeLimit struct {
	DurationHours  int  `json:"duration" validate:"gte=1"`
	ReminderBefore int  `json:"reminder_before" validate:"gte=0"`
	HardStop       bool `json:"hard_stop"`
}

// RoleLookup resolves role ids. rbac.Service satisfies it.
type RoleLookup interface {
	RoleName(ctx context.Context, id string) (string, bool, error)
}

type Service struct {
	steps       *repo.Collection[Step, *Step]
	escalations *repo.Collection[Escalation, *Escalation]
	limits      *repo.Document[map[string]TimeLimit]
	assignments *repo.Document[map[string]string]
	roles       RoleLookup
}

func NewService(kv store.KV, hooks ...repo.Hook) *Service {
	s := &Service{
		steps:       repo.NewCollection[Step](kv, StepsKey),
		escalations: repo.NewCollection[Escalation](kv, EscalationsKey),
		limits:      repo.NewDocument(kv, TimeLimitsKey, func() map[string]TimeLimit { return map[string]TimeLimit{} }),
		assignments: repo.NewDocument(kv, AssignmentsKey, func() map[string]string { return map[string]string{} }),
	}
	for _, h := range hooks {
		s.steps.WithHook(h)
		s.escalations.WithHook(h)
		s.limits.WithHook(h)
		s.assignments.WithHook(h)
	}
	return s
}

// WithRoles makes escalations and step assignments check that roles exist.
func (s *Service) WithRoles(r RoleLookup) *Service {
	s.roles = r
	return s
}

func (s *Service) checkRole(ctx context.Context, roleID string) error {
	if s.roles == nil {
		return nil
	}
	_, ok, err := s.roles.RoleName(ctx, roleID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: role %s does not exist", apperr.ErrDanglingReference, roleID)
	}
	return nil
}

func (s *Service) stepIDs(ctx context.Context) (map[string]bool, error) {
	steps, err := s.steps.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(steps))
	for _, st := range steps {
		out[st.ID] = true
	}
	return out, nil
}

func sortByOrder(steps []Step) {
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })
}

func renumber(steps []Step) {
	for i := range steps {
		steps[i].Order = i + 1
	}
}

// Steps

// ListSteps returns the steps by order.
func (s *Service) ListSteps(ctx context.Context) ([]Step, error) {
	steps, err := s.steps.List(ctx)
	if err != nil {
		return nil, err
	}
	sortByOrder(steps)
	return steps, nil
}

func (s *Service) GetStep(ctx context.Context, id string) (Step, error) {
	return s.steps.Get(ctx, id)
}

// AddStep appends st at the end of the workflow.
func (s *Service) AddStep(ctx context.Context, st Step) (Step, error) {
	st.Name = strings.TrimSpace(st.Name)
	if st.Type == "" {
		st.Type = StepManual
	}
	if err := apperr.Validate(st); err != nil {
		return Step{}, err
	}
	st.Meta = repo.Meta{}
	steps, err := s.steps.Mutate(ctx, func(steps []Step) ([]Step, error) {
		st.Order = len(steps) + 1
		return append(steps, st), nil
	})
	if err != nil {
		return Step{}, err
	}
	return steps[len(steps)-1], nil
}

func (s *Service) UpdateStep(ctx context.Context, id string, upd StepUpdate) (Step, error) {
	if upd.Name != nil {
		n := strings.TrimSpace(*upd.Name)
		if n == "" {
			return Step{}, fmt.Errorf("%w: name is required", apperr.ErrInvalidInput)
		}
		upd.Name = &n
	}
	if upd.Type != nil && *upd.Type != StepManual && *upd.Type != StepSystem {
		return Step{}, fmt.Errorf("%w: type must be one of [manual system]", apperr.ErrInvalidInput)
	}
	if upd.DurationHours != nil && *upd.DurationHours < 0 {
		return Step{}, fmt.Errorf("%w: duration must be at least 0", apperr.ErrInvalidInput)
	}
	return s.steps.Update(ctx, id, upd)
}

// DeleteStep removes the step, renumbers the rest 1..n and drops the rules
// that referenced it.
func (s *Service) DeleteStep(ctx context.Context, id string) error {
	_, err := s.steps.Mutate(ctx, func(steps []Step) ([]Step, error) {
		sortByOrder(steps)
		kept := make([]Step, 0, len(steps))
		for _, st := range steps {
			if st.ID != id {
				kept = append(kept, st)
			}
		}
		if len(kept) == len(steps) {
			return nil, fmt.Errorf("%w: %s %s", apperr.ErrNotFound, StepsKey, id)
		}
		renumber(kept)
		return kept, nil
	})
	if err != nil {
		return err
	}

	if _, err := s.escalations.Mutate(ctx, func(items []Escalation) ([]Escalation, error) {
		kept := items[:0]
		for _, e := range items {
			if e.StepID != id {
				kept = append(kept, e)
			}
		}
		return kept, nil
	}); err != nil {
		return err
	}
	if _, err := s.limits.Modify(ctx, func(cur map[string]TimeLimit) (map[string]TimeLimit, error) {
		delete(cur, id)
		return cur, nil
	}); err != nil {
		return err
	}
	_, err = s.assignments.Modify(ctx, func(cur map[string]string) (map[string]string, error) {
		delete(cur, id)
		return cur, nil
	})
	return err
}

// MoveStep swaps the step with its neighbour in direction (-1 up, +1 down).
// Moving past either end leaves the order unchanged.
func (s *Service) MoveStep(ctx context.Context, id string, direction int) ([]Step, error) {
	if direction != -1 && direction != 1 {
		return nil, fmt.Errorf("%w: direction must be -1 or 1", apperr.ErrInvalidInput)
	}
	steps, err := s.steps.Mutate(ctx, func(steps []Step) ([]Step, error) {
		sortByOrder(steps)
		idx := -1
		for i, st := range steps {
			if st.ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s %s", apperr.ErrNotFound, StepsKey, id)
		}
		next := idx + direction
		if next >= 0 && next < len(steps) {
			steps[idx], steps[next] = steps[next], steps[idx]
		}
		renumber(steps)
		return steps, nil
	})
	if err != nil {
		return nil, err
	}
	return steps, nil
}

// Escalations

func (s *Service) ListEscalations(ctx context.Context) ([]Escalation, error) {
	return s.escalations.List(ctx)
}

// AddEscalation requires an existing step and either a role or an email.
func (s *Service) AddEscalation(ctx context.Context, e Escalation) (Escalation, error) {
	e.StepID = strings.TrimSpace(e.StepID)
	e.EscalateToRole = strings.TrimSpace(e.EscalateToRole)
	e.EscalateToEmail = strings.TrimSpace(e.EscalateToEmail)
	if strings.TrimSpace(e.Message) == "" {
		e.Message = defaultEscalationMessage
	}
	if err := apperr.Validate(e); err != nil {
		return Escalation{}, err
	}
	if e.EscalateToRole == "" && e.EscalateToEmail == "" {
		return Escalation{}, fmt.Errorf("%w: assign either a role or an email", apperr.ErrInvalidInput)
	}
	if _, err := s.steps.Get(ctx, e.StepID); err != nil {
		return Escalation{}, fmt.Errorf("%w: step %s does not exist", apperr.ErrDanglingReference, e.StepID)
	}
	if e.EscalateToRole != "" {
		if err := s.checkRole(ctx, e.EscalateToRole); err != nil {
			return Escalation{}, err
		}
	}
	return s.escalations.Create(ctx, e)
}

func (s *Service) DeleteEscalation(ctx context.Context, id string) error {
	return s.escalations.Delete(ctx, id)
}

// RoleReferences counts the escalations and step assignments pointing at roleID.
func (s *Service) RoleReferences(ctx context.Context, roleID string) (map[string]int, error) {
	esc, err := s.escalations.Filter(ctx, func(e Escalation) bool { return e.EscalateToRole == roleID })
	if err != nil {
		return nil, err
	}
	assigned, err := s.assignments.Get(ctx)
	if err != nil {
		return nil, err
	}
	steps := 0
	for _, r := range assigned {
		if r == roleID {
			steps++
		}
	}
	return map[string]int{"escalations": len(esc), "step assignments": steps}, nil
}

// Time limits

func (s *Service) TimeLimits(ctx context.Context) (map[string]TimeLimit, error) {
	return s.limits.Get(ctx)
}

// SaveTimeLimits replaces every time limit. Unknown step ids are rejected.
func (s *Service) SaveTimeLimits(ctx context.Context, limits map[string]TimeLimit) (map[string]TimeLimit, error) {
	known, err := s.stepIDs(ctx)
	if err != nil {
		return nil, err
	}
	clean := make(map[string]TimeLimit, len(limits))
	for stepID, l := range limits {
		if !known[stepID] {
			return nil, fmt.Errorf("%w: step %s does not exist", apperr.ErrDanglingReference, stepID)
		}
		if err := apperr.Validate(l); err != nil {
			return nil, fmt.Errorf("step %s: %w", stepID, err)
		}
		if l.ReminderBefore >= l.DurationHours {
			return nil, fmt.Errorf("%w: step %s: reminder must come before the deadline", apperr.ErrInvalidInput, stepID)
		}
		clean[stepID] = l
	}
	return s.limits.Save(ctx, clean)
}

// SetTimeLimit sets the limit of one step.
func (s *Service) SetTimeLimit(ctx context.Context, stepID string, l TimeLimit) (map[string]TimeLimit, error) {
	cur, err := s.limits.Get(ctx)
	if err != nil {
		return nil, err
	}
	cur[stepID] = l
	return s.SaveTimeLimits(ctx, cur)
}

// Step assignments

func (s *Service) StepAssignments(ctx context.Context) (map[string]string, error) {
	return s.assignments.Get(ctx)
}

// SaveStepAssignments replaces the step → role map. An empty role id leaves
// the step unassigned.
func (s *Service) SaveStepAssignments(ctx context.Context, mapping map[string]string) (map[string]string, error) {
	known, err := s.stepIDs(ctx)
	if err != nil {
		return nil, err
	}
	clean := make(map[string]string, len(mapping))
	for stepID, roleID := range mapping {
		roleID = strings.TrimSpace(roleID)
		if !known[stepID] {
			return nil, fmt.Errorf("%w: step %s does not exist", apperr.ErrDanglingReference, stepID)
		}
		if roleID == "" {
			continue
		}
		if err := s.checkRole(ctx, roleID); err != nil {
			return nil, err
		}
		clean[stepID] = roleID
	}
	return s.assignments.Save(ctx, clean)
}

// AssignStep sets the role of one step.
func (s *Service) AssignStep(ctx context.Context, stepID, roleID string) (map[string]string, error) {
	cur, err := s.assignments.Get(ctx)
	if err != nil {
		return nil, err
	}
	cur[stepID] = roleID
	return s.SaveStepAssignments(ctx, cur)
}
