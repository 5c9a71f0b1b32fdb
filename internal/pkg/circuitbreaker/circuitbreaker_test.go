package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

func TestStateString(t *testing.T) {
	cases := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateHalfOpen, "half-open"},
		{StateOpen, "open"},
		{State(99), "unknown"},
	}
	for _, c := range cases {
		if got := c.state.String(); got != c.want {
			t.Errorf("State(%d).String() = %q, want %q", c.state, got, c.want)
		}
	}
}

func TestExecuteSuccessKeepsCircuitClosed(t *testing.T) {
	cb := New(Config{Name: "test"})

	for i := 0; i < 10; i++ {
		_, err := cb.Execute(func() (interface{}, error) { return "ok", nil })
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
	}
	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want closed", cb.State())
	}
}

func TestExecuteTripsOpenAfterFailureThreshold(t *testing.T) {
	cb := New(Config{Name: "test", FailureThreshold: 3})
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		_, _ = cb.Execute(func() (interface{}, error) { return nil, boom })
	}
	if cb.State() != StateOpen {
		t.Fatalf("State() = %v, want open after %d consecutive failures", cb.State(), 3)
	}

	_, err := cb.Execute(func() (interface{}, error) { return "ok", nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() on open circuit error = %v, want ErrCircuitOpen", err)
	}
}

func TestExecuteResetsConsecutiveFailuresOnSuccess(t *testing.T) {
	cb := New(Config{Name: "test", FailureThreshold: 3})
	boom := errors.New("boom")

	_, _ = cb.Execute(func() (interface{}, error) { return nil, boom })
	_, _ = cb.Execute(func() (interface{}, error) { return nil, boom })
	_, _ = cb.Execute(func() (interface{}, error) { return "ok", nil })
	_, _ = cb.Execute(func() (interface{}, error) { return nil, boom })
	_, _ = cb.Execute(func() (interface{}, error) { return nil, boom })

	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want closed since failures never ran 3 in a row", cb.State())
	}
}

func TestOpenCircuitTransitionsToHalfOpenAfterTimeout(t *testing.T) {
	cb := New(Config{Name: "test", FailureThreshold: 1, Timeout: 10 * time.Millisecond})
	_, _ = cb.Execute(func() (interface{}, error) { return nil, errors.New("boom") })
	if cb.State() != StateOpen {
		t.Fatalf("State() = %v, want open", cb.State())
	}

	time.Sleep(20 * time.Millisecond)
	if cb.State() != StateHalfOpen {
		t.Errorf("State() = %v, want half-open once the timeout elapses", cb.State())
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	cb := New(Config{Name: "test", FailureThreshold: 1, Timeout: 10 * time.Millisecond})
	_, _ = cb.Execute(func() (interface{}, error) { return nil, errors.New("boom") })
	time.Sleep(20 * time.Millisecond)
	if cb.State() != StateHalfOpen {
		t.Fatalf("State() = %v, want half-open", cb.State())
	}

	_, _ = cb.Execute(func() (interface{}, error) { return nil, errors.New("boom again") })
	if cb.State() != StateOpen {
		t.Errorf("State() = %v, want open after a half-open probe fails", cb.State())
	}
}

func TestHalfOpenSuccessCloses(t *testing.T) {
	cb := New(Config{Name: "test", FailureThreshold: 1, Timeout: 10 * time.Millisecond, SuccessThreshold: 1})
	_, _ = cb.Execute(func() (interface{}, error) { return nil, errors.New("boom") })
	time.Sleep(20 * time.Millisecond)
	if cb.State() != StateHalfOpen {
		t.Fatalf("State() = %v, want half-open", cb.State())
	}

	_, _ = cb.Execute(func() (interface{}, error) { return "ok", nil })
	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want closed after enough half-open successes", cb.State())
	}
}

func TestManagerGetReturnsSameBreakerForSameName(t *testing.T) {
	m := NewManager(Config{})
	a := m.Get("api.example.com")
	b := m.Get("api.example.com")
	if a != b {
		t.Error("Get() should return the same *CircuitBreaker for the same name")
	}
}

func TestManagerGetReturnsDistinctBreakersPerName(t *testing.T) {
	m := NewManager(Config{})
	a := m.Get("host-a")
	b := m.Get("host-b")
	if a == b {
		t.Error("Get() should return distinct breakers for distinct names")
	}
}

func TestManagerStatesReflectsPerHostBreakers(t *testing.T) {
	m := NewManager(Config{FailureThreshold: 1})
	_, _ = m.Execute("flaky-host", func() (interface{}, error) { return nil, errors.New("boom") })
	_, _ = m.Execute("healthy-host", func() (interface{}, error) { return "ok", nil })

	states := m.States()
	if states["flaky-host"] != StateOpen {
		t.Errorf("flaky-host state = %v, want open", states["flaky-host"])
	}
	if states["healthy-host"] != StateClosed {
		t.Errorf("healthy-host state = %v, want closed", states["healthy-host"])
	}
}

func TestExecutePanicCountsAsFailure(t *testing.T) {
	cb := New(Config{Name: "test", FailureThreshold: 1})

	func() {
		defer func() { _ = recover() }()
		_, _ = cb.Execute(func() (interface{}, error) {
			panic("kaboom")
		})
	}()

	if cb.State() != StateOpen {
		t.Errorf("State() = %v, want open after a panicking request", cb.State())
	}
}
