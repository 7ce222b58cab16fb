package statemachine

import (
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/specflow/domain/intent"
	"github.com/felixgeelhaar/specflow/domain/operation"
	"github.com/felixgeelhaar/specflow/domain/suggestion"
)

func pendingSuggestion() *suggestion.Suggestion {
	p := intent.NewPattern(intent.TypeErrorSpike, "errors").ForOperation(operation.NewCoordinate("orders.create", 3))
	return &suggestion.Suggestion{
		ID:         suggestion.NewID(),
		Intent:     *p,
		Proposal:   suggestion.Proposal{Summary: "Stabilize orders.create", ChangeType: suggestion.ChangeTypePolicyUpdate},
		Confidence: 0.9,
		Priority:   suggestion.PriorityHigh,
		CreatedAt:  time.Now(),
		CreatedBy:  "test",
		Status:     suggestion.StatusPending,
	}
}

func newLifecycle(t *testing.T, s *suggestion.Suggestion) *Lifecycle {
	t.Helper()
	machine, err := NewLifecycleMachine()
	if err != nil {
		t.Fatalf("NewLifecycleMachine() error = %v", err)
	}
	l, err := NewLifecycle(machine, s)
	if err != nil {
		t.Fatalf("NewLifecycle() error = %v", err)
	}
	t.Cleanup(l.Stop)
	return l
}

func TestNewLifecycleMachine(t *testing.T) {
	t.Parallel()

	machine, err := NewLifecycleMachine()
	if err != nil {
		t.Fatalf("NewLifecycleMachine() error = %v", err)
	}
	if machine == nil {
		t.Fatal("NewLifecycleMachine() returned nil machine")
	}
}

func TestEventForStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status suggestion.Status
		want   string
		ok     bool
	}{
		{suggestion.StatusApproved, "APPROVE", true},
		{suggestion.StatusRejected, "REJECT", true},
		{suggestion.StatusPending, "", false},
		{suggestion.Status("archived"), "", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			t.Parallel()
			got, ok := EventForStatus(tt.status)
			if string(got) != tt.want || ok != tt.ok {
				t.Errorf("EventForStatus(%s) = %s, %v; want %s, %v", tt.status, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestLifecycle_Decide(t *testing.T) {
	t.Parallel()

	for _, status := range []suggestion.Status{suggestion.StatusApproved, suggestion.StatusRejected} {
		t.Run(string(status), func(t *testing.T) {
			t.Parallel()

			s := pendingSuggestion()
			l := newLifecycle(t, s)
			if l.Status() != suggestion.StatusPending || l.IsTerminal() {
				t.Fatalf("initial status = %s", l.Status())
			}
			if !l.CanDecide(status) {
				t.Fatal("pending suggestion should accept a decision")
			}

			at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
			if err := l.Decide(status, suggestion.Decision{Reviewer: "alice", Notes: "looks right", DecidedAt: at}); err != nil {
				t.Fatalf("Decide() error = %v", err)
			}

			if l.Status() != status || !l.IsTerminal() {
				t.Errorf("status = %s, want terminal %s", l.Status(), status)
			}
			if s.Status != status || s.Approvals == nil || s.Approvals.Reviewer != "alice" || !s.Approvals.DecidedAt.Equal(at) {
				t.Errorf("suggestion not stamped: %+v", s.Approvals)
			}

			history := l.History()
			if len(history) != 1 || history[0].From != suggestion.StatusPending || history[0].To != status {
				t.Errorf("History() = %+v", history)
			}
		})
	}
}

func TestLifecycle_TerminalRejectsDecisions(t *testing.T) {
	t.Parallel()

	s := pendingSuggestion()
	l := newLifecycle(t, s)
	if err := l.Decide(suggestion.StatusRejected, suggestion.Decision{Reviewer: "bob"}); err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	stamped := *s.Approvals

	err := l.Decide(suggestion.StatusApproved, suggestion.Decision{Reviewer: "alice"})
	if !errors.Is(err, suggestion.ErrInvalidStatusTransition) {
		t.Errorf("error = %v, want ErrInvalidStatusTransition", err)
	}
	if s.Status != suggestion.StatusRejected || s.Approvals.Reviewer != stamped.Reviewer {
		t.Error("failed decision must not modify the suggestion")
	}
	if l.CanDecide(suggestion.StatusApproved) {
		t.Error("terminal lifecycle should not accept decisions")
	}
}

func TestLifecycle_ResumesTerminalStatus(t *testing.T) {
	t.Parallel()

	s := pendingSuggestion()
	s.Status = suggestion.StatusApproved
	s.Approvals = &suggestion.Approval{Reviewer: "auto-approval"}

	l := newLifecycle(t, s)
	if l.Status() != suggestion.StatusApproved || !l.IsTerminal() {
		t.Fatalf("status = %s, want approved", l.Status())
	}

	err := l.Decide(suggestion.StatusRejected, suggestion.Decision{Reviewer: "carol"})
	if !errors.Is(err, suggestion.ErrInvalidStatusTransition) {
		t.Errorf("error = %v, want ErrInvalidStatusTransition", err)
	}
	if s.Approvals.Reviewer != "auto-approval" {
		t.Error("approval record must not change")
	}
}

func TestLifecycle_InvalidInput(t *testing.T) {
	t.Parallel()

	machine, err := NewLifecycleMachine()
	if err != nil {
		t.Fatalf("NewLifecycleMachine() error = %v", err)
	}

	if _, err := NewLifecycle(machine, nil); !errors.Is(err, suggestion.ErrInvalidSuggestion) {
		t.Errorf("nil suggestion error = %v", err)
	}

	bad := pendingSuggestion()
	bad.Status = "archived"
	if _, err := NewLifecycle(machine, bad); !errors.Is(err, suggestion.ErrInvalidStatus) {
		t.Errorf("unknown status error = %v", err)
	}

	l, err := NewLifecycle(machine, pendingSuggestion())
	if err != nil {
		t.Fatalf("NewLifecycle() error = %v", err)
	}
	defer l.Stop()
	if err := l.Decide(suggestion.StatusPending, suggestion.Decision{}); !errors.Is(err, suggestion.ErrInvalidStatus) {
		t.Errorf("pending decision error = %v, want ErrInvalidStatus", err)
	}
	if l.Status() != suggestion.StatusPending {
		t.Error("invalid decision must not move the lifecycle")
	}
}
