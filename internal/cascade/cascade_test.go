package cascade

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type fixture struct {
	children map[string][]Option
	calls    []string
	fail     string
}

func (f *fixture) source(level string) Source {
	return func(_ context.Context, parentID string) ([]Option, error) {
		f.calls = append(f.calls, level+":"+parentID)
		if f.fail != "" && parentID == f.fail {
			return nil, errors.New("backend down")
		}
		return f.children[level+":"+parentID], nil
	}
}

func newFixture() *fixture {
	return &fixture{children: map[string][]Option{
		"org:":      {{ID: "1", Label: "Acme"}, {ID: "2", Label: "Globex"}},
		"branch:1":  {{ID: "b1", Label: "HQ"}, {ID: "b2", Label: "North"}},
		"dept:b1":   {{ID: "d1", Label: "Credit"}},
		"dept:b2":   {{ID: "d2", Label: "Collections"}},
		"staff:d1":  {{ID: "u1", Label: "Asha"}},
		"branch:2":  nil,
		"staff:d2":  {{ID: "u2", Label: "Ravi"}},
		"dept:none": nil,
	}}
}

func newSelector(t *testing.T, f *fixture) *Selector {
	t.Helper()
	s, err := New(context.Background(),
		Level{Name: "organization", Required: true, Source: f.source("org")},
		Level{Name: "branch", Required: true, Source: f.source("branch")},
		Level{Name: "department", Required: true, Source: f.source("dept")},
		Level{Name: "staff", Source: f.source("staff")},
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return s
}

func ids(opts []Option) []string {
	out := []string{}
	for _, o := range opts {
		out = append(out, o.ID)
	}
	return out
}

func TestMountLoadsOnlyFirstLevel(t *testing.T) {
	f := newFixture()
	s := newSelector(t, f)
	if diff := cmp.Diff([]string{"org:"}, f.calls); diff != "" {
		t.Fatalf("unexpected loads (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"1", "2"}, ids(s.Options(0))); diff != "" {
		t.Fatalf("level 0 options (-want +got):\n%s", diff)
	}
	for n := 1; n < s.Depth(); n++ {
		if len(s.Options(n)) != 0 || s.Selected(n) != "" {
			t.Fatalf("level %d should start empty", n)
		}
	}
}

func TestSwitchingParentClearsDescendants(t *testing.T) {
	ctx := context.Background()
	s := newSelector(t, newFixture())

	if err := s.SelectPath(ctx, "1", "b1", "d1", "u1"); err != nil {
		t.Fatalf("select path: %v", err)
	}
	if diff := cmp.Diff([]string{"1", "b1", "d1", "u1"}, s.Selection()); diff != "" {
		t.Fatalf("selection (-want +got):\n%s", diff)
	}

	// organization 2 has no branches
	if err := s.Select(ctx, 0, "2"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if diff := cmp.Diff([]string{"2", "", "", ""}, s.Selection()); diff != "" {
		t.Fatalf("selection (-want +got):\n%s", diff)
	}
	for n := 1; n < s.Depth(); n++ {
		if opts := s.Options(n); len(opts) != 0 {
			t.Fatalf("level %d kept stale options %v", n, opts)
		}
	}
	if diff := cmp.Diff([]string{"1", "2"}, ids(s.Options(0))); diff != "" {
		t.Fatalf("level 0 options must not change (-want +got):\n%s", diff)
	}
}

func TestReselectingMidLevel(t *testing.T) {
	ctx := context.Background()
	s := newSelector(t, newFixture())
	_ = s.SelectPath(ctx, "1", "b1", "d1")

	if err := s.Select(ctx, 1, "b2"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if s.Selected(2) != "" || s.Selected(3) != "" {
		t.Fatalf("descendants not cleared: %v", s.Selection())
	}
	if diff := cmp.Diff([]string{"d2"}, ids(s.Options(2))); diff != "" {
		t.Fatalf("department options (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"b1", "b2"}, ids(s.Options(1))); diff != "" {
		t.Fatalf("branch options must be unchanged (-want +got):\n%s", diff)
	}
}

func TestSelectEmptyClearsLevelAndBelow(t *testing.T) {
	ctx := context.Background()
	s := newSelector(t, newFixture())
	_ = s.SelectPath(ctx, "1", "b1", "d1")

	if err := s.Select(ctx, 1, ""); err != nil {
		t.Fatalf("select: %v", err)
	}
	if diff := cmp.Diff([]string{"1", "", "", ""}, s.Selection()); diff != "" {
		t.Fatalf("selection (-want +got):\n%s", diff)
	}
	if len(s.Options(1)) != 2 {
		t.Fatalf("level 1 options should survive clearing its own selection")
	}
	if len(s.Options(2)) != 0 || len(s.Options(3)) != 0 {
		t.Fatal("levels below should be emptied")
	}
}

func TestSelectRejectsUnknownOption(t *testing.T) {
	ctx := context.Background()
	s := newSelector(t, newFixture())
	_ = s.Select(ctx, 0, "1")
	before := s.State()

	err := s.Select(ctx, 1, "b9")
	if !errors.Is(err, ErrUnknownOption) {
		t.Fatalf("expected ErrUnknownOption, got %v", err)
	}
	if diff := cmp.Diff(before, s.State()); diff != "" {
		t.Fatalf("state changed on rejected select (-want +got):\n%s", diff)
	}
	if err := s.Select(ctx, 7, "x"); !errors.Is(err, ErrNoSuchLevel) {
		t.Fatalf("expected ErrNoSuchLevel, got %v", err)
	}
}

func TestSourceFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	s := newSelector(t, f)
	_ = s.SelectPath(ctx, "1", "b1")
	before := s.State()

	f.fail = "b2"
	if err := s.Select(ctx, 1, "b2"); err == nil {
		t.Fatal("expected source error")
	}
	if diff := cmp.Diff(before, s.State()); diff != "" {
		t.Fatalf("state changed on failed load (-want +got):\n%s", diff)
	}
}

func TestValidate(t *testing.T) {
	ctx := context.Background()
	s := newSelector(t, newFixture())

	var inc *IncompleteError
	if err := s.Validate(); !errors.As(err, &inc) || inc.Name != "organization" {
		t.Fatalf("expected organization incomplete, got %v", err)
	}
	_ = s.SelectPath(ctx, "1", "b1")
	if err := s.Validate(); !errors.As(err, &inc) || inc.Level != 2 || err.Error() != "department is required" {
		t.Fatalf("expected department incomplete, got %v", err)
	}
	_ = s.Select(ctx, 2, "d1")
	if err := s.Validate(); err != nil {
		t.Fatalf("optional staff level should not block: %v", err)
	}
	if opt, ok := s.SelectedOption(2); !ok || opt.Label != "Credit" {
		t.Fatalf("selected option = %+v %v", opt, ok)
	}
}

func TestNewRequiresLevels(t *testing.T) {
	if _, err := New(context.Background()); err == nil {
		t.Fatal("expected error without levels")
	}
	if _, err := New(context.Background(), Level{Name: "x"}); err == nil {
		t.Fatal("expected error for missing source")
	}
}
