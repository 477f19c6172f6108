package ids

import (
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier for a new record.
// Identifiers minted by the same process are strictly increasing.
func New() string {
	return NewAt(time.Now())
}

// NewAt mints an identifier whose timestamp component is t.
func NewAt(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Valid reports whether s is a well-formed record identifier.
func Valid(s string) bool {
	_, err := ulid.ParseStrict(strings.TrimSpace(s))
	return err == nil
}

// Time extracts the creation instant embedded in id.
func Time(id string) (time.Time, bool) {
	parsed, err := ulid.ParseStrict(strings.TrimSpace(id))
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(parsed.Time()).UTC(), true
}
