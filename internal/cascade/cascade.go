// Package cascade implements a chain of dependent selections where choosing a
// value at one level resets and repopulates every level below it.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownOption is returned when the selected id is not among the level's options.
	ErrUnknownOption = errors.New("cascade: unknown option")
	// ErrNoSuchLevel is returned for level indexes outside the chain.
	ErrNoSuchLevel = errors.New("cascade: no such level")
)

// Option is one selectable entry.
type Option struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Source produces a level's options for the parent selection. The first level
// is called with an empty parentID.
type Source func(ctx context.Context, parentID string) ([]Option, error)

// Level describes one step of the chain.
type Level struct {
	Name     string
	Required bool
	Source   Source
}

// IncompleteError reports the first required level without a selection.
type IncompleteError struct {
	Level int
	Name  string
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("%s is required", e.Name)
}

// LevelState is the externally visible state of one level.
type LevelState struct {
	Name     string   `json:"name"`
	Selected string   `json:"selected"`
	Options  []Option `json:"options"`
}

type levelState struct {
	selected string
	options  []Option
}

// Selector holds the state of one form. It is not safe for concurrent use.
type Selector struct {
	levels []Level
	state  []levelState
}

// New mounts the chain: the first level's options are loaded, deeper levels start empty.
func New(ctx context.Context, levels ...Level) (*Selector, error) {
	if len(levels) == 0 {
		return nil, errors.New("cascade: at least one level is required")
	}
	s := &Selector{
		levels: append([]Level(nil), levels...),
		state:  make([]levelState, len(levels)),
	}
	for i, l := range s.levels {
		if l.Source == nil {
			return nil, fmt.Errorf("cascade: level %d (%s) has no source", i, l.Name)
		}
		if strings.TrimSpace(l.Name) == "" {
			s.levels[i].Name = fmt.Sprintf("level %d", i)
		}
	}
	for i := range s.state {
		s.state[i].options = []Option{}
	}
	opts, err := s.load(ctx, 0, "")
	if err != nil {
		return nil, err
	}
	s.state[0].options = opts
	return s, nil
}

func (s *Selector) load(ctx context.Context, n int, parentID string) ([]Option, error) {
	opts, err := s.levels[n].Source(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("cascade: load %s options: %w", s.levels[n].Name, err)
	}
	if opts == nil {
		opts = []Option{}
	}
	return opts, nil
}

// Depth is the number of levels.
func (s *Selector) Depth() int { return len(s.levels) }

// Select sets level n to id. Every level below n loses its selection and options;
// level n+1 is then repopulated from id. An empty id clears level n. Level n's own
// options are never recomputed. On error the state is unchanged.
func (s *Selector) Select(ctx context.Context, n int, id string) error {
	if n < 0 || n >= len(s.levels) {
		return fmt.Errorf("%w: %d", ErrNoSuchLevel, n)
	}
	id = strings.TrimSpace(id)
	if id != "" && !containsOption(s.state[n].options, id) {
		return fmt.Errorf("%w: %s %q", ErrUnknownOption, s.levels[n].Name, id)
	}

	var next []Option
	if id != "" && n+1 < len(s.levels) {
		opts, err := s.load(ctx, n+1, id)
		if err != nil {
			return err
		}
		next = opts
	}

	s.state[n].selected = id
	for i := n + 1; i < len(s.state); i++ {
		s.state[i] = levelState{options: []Option{}}
	}
	if next != nil {
		s.state[n+1].options = next
	}
	return nil
}

// SelectPath applies ids from the first level down, stopping at the first empty id.
func (s *Selector) SelectPath(ctx context.Context, ids ...string) error {
	for i, id := range ids {
		if i >= len(s.levels) {
			return fmt.Errorf("%w: %d", ErrNoSuchLevel, i)
		}
		if strings.TrimSpace(id) == "" {
			return s.Select(ctx, i, "")
		}
		if err := s.Select(ctx, i, id); err != nil {
			return err
		}
	}
	return nil
}

// Options returns a copy of level n's current options.
func (s *Selector) Options(n int) []Option {
	if n < 0 || n >= len(s.state) {
		return []Option{}
	}
	return append([]Option{}, s.state[n].options...)
}

// Selected returns level n's selected id, or "".
func (s *Selector) Selected(n int) string {
	if n < 0 || n >= len(s.state) {
		return ""
	}
	return s.state[n].selected
}

// SelectedOption returns the selected option of level n.
func (s *Selector) SelectedOption(n int) (Option, bool) {
	id := s.Selected(n)
	if id == "" {
		return Option{}, false
	}
	for _, o := range s.state[n].options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// Selection returns the selected id of every level, top to bottom.
func (s *Selector) Selection() []string {
	out := make([]string, len(s.state))
	for i, st := range s.state {
		out[i] = st.selected
	}
	return out
}

// State returns a copy of every level's state.
func (s *Selector) State() []LevelState {
	out := make([]LevelState, len(s.state))
	for i, st := range s.state {
		out[i] = LevelState{
			Name:     s.levels[i].Name,
			Selected: st.selected,
			Options:  append([]Option{}, st.options...),
		}
	}
	return out
}

// Validate returns an *IncompleteError naming the first required level left empty.
func (s *Selector) Validate() error {
	for i, l := range s.levels {
		if l.Required && s.state[i].selected == "" {
			return &IncompleteError{Level: i, Name: l.Name}
		}
	}
	return nil
}

func containsOption(opts []Option, id string) bool {
	for _, o := range opts {
		if o.ID == id {
			return true
		}
	}
	return false
}
