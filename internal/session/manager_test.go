package session

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestManager_SessionsAreIsolated(t *testing.T) {
	m := NewManager()
	a, b := m.Create(), m.Create()
	if a == b {
		t.Fatal("session ids must be unique")
	}
	if _, err := m.Apply(a, ActionLike, "pho"); err != nil {
		t.Fatal(err)
	}
	fa, _ := m.Feedback(a)
	fb, _ := m.Feedback(b)
	if !fa.IsLiked("pho") {
		t.Error("session a lost its like")
	}
	if fb.Personalized() {
		t.Error("session b must not see session a's feedback")
	}

	// Returned feedback is a copy.
	fa.Like("bun_bo")
	again, _ := m.Feedback(a)
	if again.IsLiked("bun_bo") {
		t.Error("mutating returned feedback should not change the session")
	}
}

func TestManager_UnknownSession(t *testing.T) {
	m := NewManager()
	if _, err := m.Feedback("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Feedback: got %v", err)
	}
	if _, err := m.Apply("missing", ActionLike, "pho"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Apply: got %v", err)
	}
	if err := m.Delete("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete: got %v", err)
	}
}

func TestManager_Delete(t *testing.T) {
	m := NewManager()
	id := m.Create()
	if err := m.Delete(id); err != nil {
		t.Fatal(err)
	}
	if m.Len() != 0 {
		t.Errorf("Len = %d after delete", m.Len())
	}
}

func TestManager_ExpiresIdleSessions(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := NewManager(WithTTL(time.Minute), withClock(clock.Now))
	stale := m.Create()
	clock.Advance(45 * time.Second)
	fresh := m.Create()
	clock.Advance(30 * time.Second)

	if _, err := m.Feedback(stale); !errors.Is(err, ErrNotFound) {
		t.Errorf("stale session should be expired, got %v", err)
	}
	if _, err := m.Feedback(fresh); err != nil {
		t.Errorf("fresh session: %v", err)
	}
	if n := m.Sweep(); n != 1 {
		t.Errorf("Sweep removed %d, want 1", n)
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d, want 1", m.Len())
	}
}

func TestManager_PersonalizationDisabled(t *testing.T) {
	m := NewManager(WithPersonalizationDisabled())
	id := m.Create()
	fb, err := m.Apply(id, ActionLike, "pho")
	if err != nil {
		t.Fatal(err)
	}
	if fb.Personalized() {
		t.Error("feedback should stay empty when personalization is off")
	}
	got, _ := m.Feedback(id)
	if got.Personalized() {
		t.Error("stored feedback should be cleared when personalization is off")
	}
}

func TestManager_ConcurrentApply(t *testing.T) {
	m := NewManager()
	ids := []string{m.Create(), m.Create(), m.Create()}
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := ids[i%len(ids)]
			_, _ = m.Apply(id, ActionLike, id)
			_, _ = m.Feedback(id)
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		fb, _ := m.Feedback(id)
		if got := fb.LikedLabels(); len(got) != 1 || got[0] != id {
			t.Errorf("session %s liked = %v", id, got)
		}
	}
}
