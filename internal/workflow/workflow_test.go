package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"loanadmin.org/internal/apperr"
	"loanadmin.org/internal/store"
)

type stubRoles map[string]string

func (r stubRoles) RoleName(_ context.Context, id string) (string, bool, error) {
	name, ok := r[id]
	return name, ok, nil
}

func addSteps(t *testing.T, svc *Service, names ...string) []Step {
	t.Helper()
	out := make([]Step, 0, len(names))
	for _, n := range names {
		st, err := svc.AddStep(context.Background(), Step{Name: n, DurationHours: 24})
		if err != nil {
			t.Fatalf("AddStep(%s): %v", n, err)
		}
		out = append(out, st)
	}
	return out
}

func names(steps []Step) []string {
	out := make([]string, len(steps))
	for i, st := range steps {
		out[i] = st.Name
	}
	return out
}

func orders(steps []Step) []int {
	out := make([]int, len(steps))
	for i, st := range steps {
		out[i] = st.Order
	}
	return out
}

func TestAddStep(t *testing.T) {
	svc := NewService(store.NewMemory())
	steps := addSteps(t, svc, "Underwriting", "Verification")
	if steps[0].Order != 1 || steps[1].Order != 2 || steps[1].Type != StepManual {
		t.Fatalf("unexpected steps %+v", steps)
	}
	if _, err := svc.AddStep(context.Background(), Step{Name: " "}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := svc.AddStep(context.Background(), Step{Name: "X", Type: "robot"}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected invalid type to be rejected, got %v", err)
	}
}

func TestDeleteStepRenumbersAndCascades(t *testing.T) {
	ctx := context.Background()
	svc := NewService(store.NewMemory())
	steps := addSteps(t, svc, "A", "B", "C")

	if _, err := svc.AddEscalation(ctx, Escalation{StepID: steps[1].ID, AfterHours: 4, EscalateToEmail: "lead@acme.test"}); err != nil {
		t.Fatalf("AddEscalation: %v", err)
	}
	if _, err := svc.AddEscalation(ctx, Escalation{StepID: steps[2].ID, AfterHours: 4, EscalateToEmail: "lead@acme.test"}); err != nil {
		t.Fatalf("AddEscalation: %v", err)
	}
	if _, err := svc.SetTimeLimit(ctx, steps[1].ID, TimeLimit{DurationHours: 48, ReminderBefore: 6}); err != nil {
		t.Fatalf("SetTimeLimit: %v", err)
	}
	if _, err := svc.AssignStep(ctx, steps[1].ID, "role-1"); err != nil {
		t.Fatalf("AssignStep: %v", err)
	}

	if err := svc.DeleteStep(ctx, steps[1].ID); err != nil {
		t.Fatalf("DeleteStep: %v", err)
	}
	got, _ := svc.ListSteps(ctx)
	if diff := cmp.Diff([]string{"A", "C"}, names(got)); diff != "" {
		t.Fatalf("names (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 2}, orders(got)); diff != "" {
		t.Fatalf("orders (-want +got):\n%s", diff)
	}

	esc, _ := svc.ListEscalations(ctx)
	if len(esc) != 1 || esc[0].StepID != steps[2].ID {
		t.Fatalf("escalations not cascaded: %+v", esc)
	}
	limits, _ := svc.TimeLimits(ctx)
	if _, ok := limits[steps[1].ID]; ok {
		t.Fatalf("time limit not cascaded: %+v", limits)
	}
	assigned, _ := svc.StepAssignments(ctx)
	if len(assigned) != 0 {
		t.Fatalf("assignment not cascaded: %+v", assigned)
	}

	if err := svc.DeleteStep(ctx, steps[1].ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMoveStep(t *testing.T) {
	ctx := context.Background()
	svc := NewService(store.NewMemory())
	steps := addSteps(t, svc, "A", "B", "C")

	got, err := svc.MoveStep(ctx, steps[2].ID, -1)
	if err != nil {
		t.Fatalf("MoveStep: %v", err)
	}
	if diff := cmp.Diff([]string{"A", "C", "B"}, names(got)); diff != "" {
		t.Fatalf("after move up (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 2, 3}, orders(got)); diff != "" {
		t.Fatalf("orders (-want +got):\n%s", diff)
	}

	// edges are no-ops
	got, _ = svc.MoveStep(ctx, steps[0].ID, -1)
	if diff := cmp.Diff([]string{"A", "C", "B"}, names(got)); diff != "" {
		t.Fatalf("move past top changed order (-want +got):\n%s", diff)
	}
	got, _ = svc.MoveStep(ctx, steps[1].ID, 1)
	if diff := cmp.Diff([]string{"A", "C", "B"}, names(got)); diff != "" {
		t.Fatalf("move past bottom changed order (-want +got):\n%s", diff)
	}

	listed, _ := svc.ListSteps(ctx)
	if diff := cmp.Diff([]string{"A", "C", "B"}, names(listed)); diff != "" {
		t.Fatalf("stored order (-want +got):\n%s", diff)
	}
	if _, err := svc.MoveStep(ctx, steps[0].ID, 2); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected invalid direction, got %v", err)
	}
	if _, err := svc.MoveStep(ctx, "missing", 1); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateStepKeepsOrder(t *testing.T) {
	ctx := context.Background()
	svc := NewService(store.NewMemory())
	steps := addSteps(t, svc, "A", "B")

	name := "Approval"
	got, err := svc.UpdateStep(ctx, steps[1].ID, StepUpdate{Name: &name})
	if err != nil {
		t.Fatalf("UpdateStep: %v", err)
	}
	if got.Name != "Approval" || got.Order != 2 || got.DurationHours != 24 {
		t.Fatalf("unexpected step %+v", got)
	}
	bad := StepType("robot")
	if _, err := svc.UpdateStep(ctx, steps[1].ID, StepUpdate{Type: &bad}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestAddEscalationValidation(t *testing.T) {
	ctx := context.Background()
	svc := NewService(store.NewMemory()).WithRoles(stubRoles{"r1": "Manager"})
	steps := addSteps(t, svc, "A")

	cases := []struct {
		name string
		in   Escalation
		want error
	}{
		{"no step", Escalation{AfterHours: 1, EscalateToRole: "r1"}, apperr.ErrInvalidInput},
		{"unknown step", Escalation{StepID: "x", AfterHours: 1, EscalateToRole: "r1"}, apperr.ErrDanglingReference},
		{"no target", Escalation{StepID: steps[0].ID, AfterHours: 1}, apperr.ErrInvalidInput},
		{"bad email", Escalation{StepID: steps[0].ID, AfterHours: 1, EscalateToEmail: "nope"}, apperr.ErrInvalidInput},
		{"unknown role", Escalation{StepID: steps[0].ID, AfterHours: 1, EscalateToRole: "r9"}, apperr.ErrDanglingReference},
		{"negative retries", Escalation{StepID: steps[0].ID, AfterHours: 1, EscalateToRole: "r1", RetryAttempts: -1}, apperr.ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.AddEscalation(ctx, tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	e, err := svc.AddEscalation(ctx, Escalation{StepID: steps[0].ID, AfterHours: 12, EscalateToRole: "r1", RetryAttempts: 2})
	if err != nil {
		t.Fatalf("AddEscalation: %v", err)
	}
	if e.Message != defaultEscalationMessage {
		t.Fatalf("expected default message, got %q", e.Message)
	}
	if err := svc.DeleteEscalation(ctx, e.ID); err != nil {
		t.Fatalf("DeleteEscalation: %v", err)
	}
}

func TestTimeLimitsAndAssignments(t *testing.T) {
	ctx := context.Background()
	svc := NewService(store.NewMemory()).WithRoles(stubRoles{"r1": "Manager"})
	steps := addSteps(t, svc, "A", "B")

	if _, err := svc.SaveTimeLimits(ctx, map[string]TimeLimit{"ghost": {DurationHours: 4}}); !errors.Is(err, apperr.ErrDanglingReference) {
		t.Fatalf("expected unknown step to be rejected, got %v", err)
	}
	if _, err := svc.SaveTimeLimits(ctx, map[string]TimeLimit{steps[0].ID: {DurationHours: 4, ReminderBefore: 4}}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected reminder after deadline to be rejected, got %v", err)
	}
	want := map[string]TimeLimit{steps[0].ID: {DurationHours: 24, ReminderBefore: 2, HardStop: true}}
	if _, err := svc.SaveTimeLimits(ctx, want); err != nil {
		t.Fatalf("SaveTimeLimits: %v", err)
	}
	got, _ := svc.TimeLimits(ctx)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("limits (-want +got):\n%s", diff)
	}

	if _, err := svc.SaveStepAssignments(ctx, map[string]string{steps[0].ID: "r9"}); !errors.Is(err, apperr.ErrDanglingReference) {
		t.Fatalf("expected unknown role to be rejected, got %v", err)
	}
	if _, err := svc.SaveStepAssignments(ctx, map[string]string{steps[0].ID: "r1", steps[1].ID: ""}); err != nil {
		t.Fatalf("SaveStepAssignments: %v", err)
	}
	mapping, _ := svc.StepAssignments(ctx)
	if diff := cmp.Diff(map[string]string{steps[0].ID: "r1"}, mapping); diff != "" {
		t.Fatalf("assignments (-want +got):\n%s", diff)
	}
}

func TestRoleReferences(t *testing.T) {
	ctx := context.Background()
	svc := NewService(store.NewMemory()).WithRoles(stubRoles{"r1": "Manager", "r2": "Clerk"})
	steps := addSteps(t, svc, "A", "B")

	if _, err := svc.AddEscalation(ctx, Escalation{StepID: steps[0].ID, AfterHours: 4, EscalateToRole: "r1"}); err != nil {
		t.Fatalf("AddEscalation: %v", err)
	}
	if _, err := svc.SaveStepAssignments(ctx, map[string]string{steps[0].ID: "r1", steps[1].ID: "r1"}); err != nil {
		t.Fatalf("SaveStepAssignments: %v", err)
	}

	got, err := svc.RoleReferences(ctx, "r1")
	if err != nil {
		t.Fatalf("RoleReferences: %v", err)
	}
	if diff := cmp.Diff(map[string]int{"escalations": 1, "step assignments": 2}, got); diff != "" {
		t.Fatalf("references (-want +got):\n%s", diff)
	}
	got, _ = svc.RoleReferences(ctx, "r2")
	if got["escalations"] != 0 || got["step assignments"] != 0 {
		t.Fatalf("unexpected references for unused role: %v", got)
	}
}
