package priority

import (
	"testing"
	"time"

	"github.com/timmy/lazyimg/internal/clock"
)

func newTestGate() (*Gate, *clock.Manual) {
	c := clock.NewManual()
	return NewGate(c, 0, nil), c
}

func TestGate_DefaultWindow(t *testing.T) {
	g, c := newTestGate()
	fired := 0
	g.AddListener("/a.jpg", func() { fired++ })

	g.BeginPriorityLoad()
	g.EndPriorityLoad()

	c.Advance(DefaultWindow - time.Millisecond)
	if fired != 0 {
		t.Fatal("prefetch window opened before the debounce elapsed")
	}
	c.Advance(time.Millisecond)
	if fired != 1 {
		t.Fatalf("expected listener to fire once at %v, got %d", DefaultWindow, fired)
	}
}

func TestGate_CounterNeverNegative(t *testing.T) {
	g, c := newTestGate()

	g.EndPriorityLoad()
	if g.Count() != 0 {
		t.Errorf("expected count 0, got %d", g.Count())
	}
	if c.Pending() != 0 {
		t.Error("an unmatched end must not schedule the prefetch window")
	}

	g.BeginPriorityLoad()
	g.BeginPriorityLoad()
	g.EndPriorityLoad()
	if g.Count() != 1 {
		t.Errorf("expected count 1, got %d", g.Count())
	}
	if c.Pending() != 0 {
		t.Error("timer must only start when the count drops below one")
	}
}

func TestGate_DebounceResetsOnLastDecrement(t *testing.T) {
	g, c := newTestGate()
	fired := 0
	g.AddListener("/a.jpg", func() { fired++ })

	g.BeginPriorityLoad()
	g.EndPriorityLoad() // t=0, window would open at 500ms

	c.Advance(300 * time.Millisecond)
	g.BeginPriorityLoad()
	g.EndPriorityLoad() // t=300ms, window now opens at 800ms

	c.Advance(499 * time.Millisecond)
	if fired != 0 {
		t.Fatal("window opened before 500ms after the last decrement")
	}
	c.Advance(time.Millisecond)
	if fired != 1 {
		t.Fatalf("expected exactly one firing, got %d", fired)
	}
	c.Advance(time.Second)
	if fired != 1 {
		t.Errorf("replaced timers must never fire, got %d firings", fired)
	}
	if g.Openings() != 1 {
		t.Errorf("expected one opening, got %d", g.Openings())
	}
}

func TestGate_SkipsWhenBusyAtFireTime(t *testing.T) {
	g, c := newTestGate()
	fired := 0
	g.AddListener("/a.jpg", func() { fired++ })

	g.BeginPriorityLoad()
	g.EndPriorityLoad()
	g.BeginPriorityLoad() // still in flight when the timer fires

	c.Advance(time.Second)
	if fired != 0 {
		t.Errorf("listeners must not run while a priority load is in flight, got %d", fired)
	}
}

func TestGate_ListenersRunInRegistrationOrder(t *testing.T) {
	g, c := newTestGate()
	var order []string

	for _, url := range []string{"/1.jpg", "/2.jpg", "/3.jpg"} {
		url := url
		var l *Listener
		l = g.AddListener(url, func() {
			order = append(order, url)
			g.RemoveListener(l)
		})
	}

	g.BeginPriorityLoad()
	g.EndPriorityLoad()
	c.Advance(DefaultWindow)

	want := []string{"/1.jpg", "/2.jpg", "/3.jpg"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
	if g.Pending() != 0 {
		t.Errorf("self-removing listeners should leave no registrations, got %d", g.Pending())
	}
}

func TestGate_RemovedDuringSweepIsSkipped(t *testing.T) {
	g, c := newTestGate()
	var second *Listener
	ran := map[string]int{}

	g.AddListener("/first.jpg", func() {
		ran["first"]++
		g.RemoveListener(second)
	})
	second = g.AddListener("/second.jpg", func() { ran["second"]++ })

	g.BeginPriorityLoad()
	g.EndPriorityLoad()
	c.Advance(DefaultWindow)

	if ran["first"] != 1 || ran["second"] != 0 {
		t.Errorf("expected first only, got %v", ran)
	}
}

func TestGate_ListenersStayUntilRemoved(t *testing.T) {
	g, c := newTestGate()
	fired := 0
	l := g.AddListener("/a.jpg", func() { fired++ })

	for i := 0; i < 2; i++ {
		g.BeginPriorityLoad()
		g.EndPriorityLoad()
		c.Advance(DefaultWindow)
	}
	if fired != 2 {
		t.Errorf("expected the listener to fire on each opening, got %d", fired)
	}

	g.RemoveListener(l)
	g.RemoveListener(l)
	g.RemoveListener(nil)
	if g.Pending() != 0 {
		t.Errorf("expected no listeners, got %d", g.Pending())
	}
}
