package counsel

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewIDUniqueAndVersioned(t *testing.T) {
	seen := make(map[string]bool, 1000)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true

		parsed, err := uuid.Parse(id)
		if err != nil {
			t.Fatalf("Parse(%s): %v", id, err)
		}
		if parsed.Version() != 7 {
			t.Fatalf("version = %d, want 7", parsed.Version())
		}
	}
}

func TestNewIDTimeOrdered(t *testing.T) {
	a := NewID()
	time.Sleep(2 * time.Millisecond)
	b := NewID()
	if !(a < b) {
		t.Errorf("ids not time-ordered: %s then %s", a, b)
	}
}

func TestNowUnix(t *testing.T) {
	got := NowUnix()
	now := time.Now().Unix()
	if got < now-2 || got > now+2 {
		t.Errorf("NowUnix = %d, now = %d", got, now)
	}
}
