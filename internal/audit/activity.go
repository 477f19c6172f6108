package audit

import (
	"context"
	"fmt"
	"strings"

	"loanadmin.org/internal/apperr"
	"loanadmin.org/internal/repo"
	"loanadmin.org/internal/store"
)

// Storage keys of the activity lists.
const (
	LoginAttemptsKey = "loginAttempts"
	ActivityKey      = "userActivity"
)

type LoginAttempt struct {
	repo.Meta
	Username   string `json:"username"`
	UserID     string `json:"user_id,omitempty"`
	Success    bool   `json:"success"`
	Reason     string `json:"reason,omitempty"`
	RemoteAddr string `json:"remote_addr,omitempty"`
}

type Activity struct {
	repo.Meta
	UserID    string `json:"user_id"`
	Action    string `json:"action"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// History keeps login attempts and user activity, newest first.
type History struct {
	attempts *repo.Collection[LoginAttempt, *LoginAttempt]
	activity *repo.Collection[Activity, *Activity]
	limit    int
}

func NewHistory(kv store.KV, limit int) *History {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &History{
		attempts: repo.NewCollection[LoginAttempt](kv, LoginAttemptsKey),
		activity: repo.NewCollection[Activity](kv, ActivityKey),
		limit:    limit,
	}
}

func (h *History) RecordLoginAttempt(ctx context.Context, a LoginAttempt) (LoginAttempt, error) {
	a.Username = strings.TrimSpace(a.Username)
	if a.Username == "" {
		return LoginAttempt{}, fmt.Errorf("%w: username is required", apperr.ErrInvalidInput)
	}
	a.Meta = repo.Meta{}
	items, err := h.attempts.Mutate(ctx, func(items []LoginAttempt) ([]LoginAttempt, error) {
		return prepend(items, a, h.limit), nil
	})
	if err != nil {
		return LoginAttempt{}, err
	}
	return items[0], nil
}

// LoginAttempts lists attempts for username, or all attempts when it is empty.
func (h *History) LoginAttempts(ctx context.Context, username string) ([]LoginAttempt, error) {
	username = strings.TrimSpace(username)
	return h.attempts.Filter(ctx, func(a LoginAttempt) bool {
		return username == "" || strings.EqualFold(a.Username, username)
	})
}

func (h *History) RecordActivity(ctx context.Context, userID, action, detail string) (Activity, error) {
	userID = strings.TrimSpace(userID)
	action = strings.TrimSpace(action)
	if userID == "" || action == "" {
		return Activity{}, fmt.Errorf("%w: user_id and action are required", apperr.ErrInvalidInput)
	}
	a := Activity{UserID: userID, Action: action, Detail: detail, RequestID: RequestIDFromContext(ctx)}
	items, err := h.activity.Mutate(ctx, func(items []Activity) ([]Activity, error) {
		return prepend(items, a, h.limit), nil
	})
	if err != nil {
		return Activity{}, err
	}
	return items[0], nil
}

// UserActivity lists the activity of one user, or of everyone when userID is empty.
func (h *History) UserActivity(ctx context.Context, userID string) ([]Activity, error) {
	return h.activity.Filter(ctx, func(a Activity) bool {
		return userID == "" || a.UserID == userID
	})
}
