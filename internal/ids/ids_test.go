package ids

import (
	"testing"
	"time"
)

func TestNewIsMonotonic(t *testing.T) {
	prev := New()
	for i := 0; i < 1000; i++ {
		next := New()
		if next <= prev {
			t.Fatalf("ids not increasing: %s then %s", prev, next)
		}
		prev = next
	}
}

func TestNewAtEmbedsTime(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	id := NewAt(at)
	if !Valid(id) {
		t.Fatalf("expected %q to be valid", id)
	}
	got, ok := Time(id)
	if !ok {
		t.Fatal("expected time to be extracted")
	}
	if !got.Equal(at) {
		t.Fatalf("time = %v, want %v", got, at)
	}
}

func TestValidRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "1712345678901", "not-an-id", "01HZZZZZZZZZZZZZZZZZZZZZZZZZ"} {
		if Valid(s) {
			t.Fatalf("expected %q to be invalid", s)
		}
	}
}
