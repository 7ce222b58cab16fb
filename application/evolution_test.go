package application_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/specflow/application"
	"github.com/felixgeelhaar/specflow/domain/approval"
	"github.com/felixgeelhaar/specflow/domain/intent"
	"github.com/felixgeelhaar/specflow/domain/operation"
	"github.com/felixgeelhaar/specflow/domain/suggestion"
	"github.com/felixgeelhaar/specflow/infrastructure/storage/memory"
)

// recordingWriter implements suggestion.Writer for testing.
type recordingWriter struct {
	mu      sync.Mutex
	written []*suggestion.Suggestion
	err     error
}

func (w *recordingWriter) Write(_ context.Context, s *suggestion.Suggestion) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return "", w.err
	}
	w.written = append(w.written, s.Clone())
	return "mem://" + s.ID, nil
}

// recordingRequester implements approval.Requester for testing.
type recordingRequester struct {
	requests []approval.Request
	err      error
}

func (r *recordingRequester) RequestApproval(_ context.Context, req approval.Request) error {
	r.requests = append(r.requests, req)
	return r.err
}

var decidedAt = time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC)

func newPending(id string) *suggestion.Suggestion {
	p := intent.NewPattern(intent.TypeErrorSpike, "errors").ForOperation(operation.NewCoordinate("orders.create", 3))
	return &suggestion.Suggestion{
		ID:         id,
		Intent:     *p,
		Proposal:   suggestion.Proposal{Summary: "Stabilize orders.create", ChangeType: suggestion.ChangeTypePolicyUpdate},
		Confidence: 0.9,
		Priority:   suggestion.PriorityHigh,
		CreatedAt:  time.Now(),
		CreatedBy:  "test",
		Status:     suggestion.StatusPending,
	}
}

func newService(t *testing.T, opts ...application.ServiceOption) (*application.EvolutionService, *memory.SuggestionRepository) {
	t.Helper()
	repo := memory.NewSuggestionRepository()
	opts = append([]application.ServiceOption{application.WithServiceClock(func() time.Time { return decidedAt })}, opts...)
	svc, err := application.NewEvolutionService(repo, opts...)
	if err != nil {
		t.Fatalf("NewEvolutionService() error = %v", err)
	}
	return svc, repo
}

func TestNewEvolutionService_RequiresRepository(t *testing.T) {
	t.Parallel()

	if _, err := application.NewEvolutionService(nil); !errors.Is(err, application.ErrRepositoryNotConfigured) {
		t.Errorf("error = %v, want ErrRepositoryNotConfigured", err)
	}
}

func TestEvolutionService_Submit(t *testing.T) {
	t.Parallel()

	t.Run("requests approval with default reason", func(t *testing.T) {
		t.Parallel()

		requester := &recordingRequester{}
		svc, repo := newService(t, application.WithApprovalRequester(requester))
		ctx := context.Background()

		s := newPending("s-1")
		got, err := svc.Submit(ctx, s, &approval.Session{ID: "session-1", AgentID: "ci", TenantID: "acme"}, "")
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		if got != s || got.Status != suggestion.StatusPending {
			t.Error("Submit() must return the suggestion unchanged")
		}
		if _, err := repo.GetByID(ctx, "s-1"); err != nil {
			t.Errorf("suggestion not persisted: %v", err)
		}

		if len(requester.requests) != 1 {
			t.Fatalf("approval requests = %d, want 1", len(requester.requests))
		}
		req := requester.requests[0]
		if req.SessionID != "session-1" || req.AgentID != "ci" || req.TenantID != "acme" {
			t.Errorf("session fields = %+v", req)
		}
		if req.ToolCallID != "s-1" || req.ToolArgs["suggestionId"] != "s-1" {
			t.Errorf("request does not carry the suggestion id: %+v", req)
		}
		if req.Reason != "Stabilize orders.create" {
			t.Errorf("Reason = %q, want proposal summary", req.Reason)
		}
	})

	t.Run("explicit reason", func(t *testing.T) {
		t.Parallel()

		requester := &recordingRequester{}
		svc, _ := newService(t, application.WithApprovalRequester(requester))

		if _, err := svc.Submit(context.Background(), newPending("s-1"), &approval.Session{ID: "x"}, "weekly review"); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		if requester.requests[0].Reason != "weekly review" {
			t.Errorf("Reason = %q", requester.requests[0].Reason)
		}
	})

	t.Run("no session no request", func(t *testing.T) {
		t.Parallel()

		requester := &recordingRequester{}
		svc, _ := newService(t, application.WithApprovalRequester(requester))

		if _, err := svc.Submit(context.Background(), newPending("s-1"), nil, ""); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		if len(requester.requests) != 0 {
			t.Errorf("approval requests = %d, want 0", len(requester.requests))
		}
	})

	t.Run("auto-approved skips request and materializes", func(t *testing.T) {
		t.Parallel()

		requester := &recordingRequester{}
		writer := &recordingWriter{}
		svc, _ := newService(t, application.WithApprovalRequester(requester), application.WithWriter(writer))

		s := newPending("s-1")
		if err := s.Decide(suggestion.StatusApproved, suggestion.Decision{Reviewer: "auto-approval"}); err != nil {
			t.Fatalf("Decide() error = %v", err)
		}
		if _, err := svc.Submit(context.Background(), s, &approval.Session{ID: "x"}, ""); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		if len(requester.requests) != 0 {
			t.Errorf("approval requests = %d, want 0", len(requester.requests))
		}
		if len(writer.written) != 1 {
			t.Errorf("writes = %d, want 1", len(writer.written))
		}
	})

	t.Run("delivery failure keeps suggestion", func(t *testing.T) {
		t.Parallel()

		requester := &recordingRequester{err: approval.ErrDeliveryFailed}
		svc, repo := newService(t, application.WithApprovalRequester(requester))

		_, err := svc.Submit(context.Background(), newPending("s-1"), &approval.Session{ID: "x"}, "")
		if !errors.Is(err, approval.ErrDeliveryFailed) {
			t.Fatalf("error = %v, want ErrDeliveryFailed", err)
		}
		if _, err := repo.GetByID(context.Background(), "s-1"); err != nil {
			t.Errorf("suggestion should stay persisted: %v", err)
		}

		requester.err = nil
		if err := svc.RequestApproval(context.Background(), "s-1", approval.Session{ID: "x"}, "retry"); err != nil {
			t.Errorf("RequestApproval() error = %v", err)
		}
	})

	t.Run("duplicate", func(t *testing.T) {
		t.Parallel()

		svc, _ := newService(t)
		if _, err := svc.Submit(context.Background(), newPending("s-1"), nil, ""); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		if _, err := svc.Submit(context.Background(), newPending("s-1"), nil, ""); !errors.Is(err, suggestion.ErrSuggestionExists) {
			t.Errorf("error = %v, want ErrSuggestionExists", err)
		}
	})
}

func TestEvolutionService_Approve(t *testing.T) {
	t.Parallel()

	writer := &recordingWriter{}
	svc, repo := newService(t, application.WithWriter(writer))
	ctx := context.Background()

	if _, err := svc.Submit(ctx, newPending("s-1"), nil, ""); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	out, err := svc.Approve(ctx, "s-1", "alice", "ship it")
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if out.Location != "mem://s-1" {
		t.Errorf("Location = %q", out.Location)
	}
	if out.Suggestion.Status != suggestion.StatusApproved || out.Suggestion.Approvals == nil {
		t.Fatalf("suggestion not stamped: %+v", out.Suggestion)
	}
	if a := out.Suggestion.Approvals; a.Reviewer != "alice" || a.Notes != "ship it" || !a.DecidedAt.Equal(decidedAt) {
		t.Errorf("Approvals = %+v", a)
	}

	if len(writer.written) != 1 || writer.written[0].Status != suggestion.StatusApproved || writer.written[0].Approvals == nil {
		t.Errorf("writer received %+v", writer.written)
	}

	stored, err := repo.GetByID(ctx, "s-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if stored.Status != suggestion.StatusApproved {
		t.Errorf("stored status = %s", stored.Status)
	}
}

func TestEvolutionService_Terminality(t *testing.T) {
	t.Parallel()

	writer := &recordingWriter{}
	svc, repo := newService(t, application.WithWriter(writer))
	ctx := context.Background()

	if _, err := svc.Submit(ctx, newPending("s-1"), nil, ""); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if _, err := svc.Approve(ctx, "s-1", "alice", ""); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	first, _ := repo.GetByID(ctx, "s-1")

	if _, err := svc.Approve(ctx, "s-1", "bob", ""); !errors.Is(err, suggestion.ErrInvalidStatusTransition) {
		t.Errorf("second Approve() error = %v, want ErrInvalidStatusTransition", err)
	}
	if _, err := svc.Reject(ctx, "s-1", "bob", ""); !errors.Is(err, suggestion.ErrInvalidStatusTransition) {
		t.Errorf("Reject() after approve error = %v, want ErrInvalidStatusTransition", err)
	}

	after, _ := repo.GetByID(ctx, "s-1")
	if !after.Approvals.DecidedAt.Equal(first.Approvals.DecidedAt) || after.Approvals.Reviewer != "alice" {
		t.Errorf("decision changed: %+v", after.Approvals)
	}
	if len(writer.written) != 1 {
		t.Errorf("writes = %d, want 1", len(writer.written))
	}
}

func TestEvolutionService_Reject(t *testing.T) {
	t.Parallel()

	writer := &recordingWriter{}
	svc, _ := newService(t, application.WithWriter(writer))
	ctx := context.Background()

	if _, err := svc.Submit(ctx, newPending("s-1"), nil, ""); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	got, err := svc.Reject(ctx, "s-1", "bob", "too risky")
	if err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	if got.Status != suggestion.StatusRejected || got.Approvals.Notes != "too risky" {
		t.Errorf("Reject() = %+v", got)
	}
	if len(writer.written) != 0 {
		t.Error("rejection must not invoke the writer")
	}
	if _, err := svc.Materialize(ctx, "s-1"); !errors.Is(err, application.ErrNotApproved) {
		t.Errorf("Materialize() error = %v, want ErrNotApproved", err)
	}
}

func TestEvolutionService_NotFound(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()

	if _, err := svc.Approve(ctx, "missing", "alice", ""); !errors.Is(err, suggestion.ErrSuggestionNotFound) {
		t.Errorf("Approve() error = %v, want ErrSuggestionNotFound", err)
	}
	if _, err := svc.Reject(ctx, "missing", "alice", ""); !errors.Is(err, suggestion.ErrSuggestionNotFound) {
		t.Errorf("Reject() error = %v, want ErrSuggestionNotFound", err)
	}
}

func TestEvolutionService_WriterFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk full")
	writer := &recordingWriter{err: boom}
	svc, repo := newService(t, application.WithWriter(writer))
	ctx := context.Background()

	if _, err := svc.Submit(ctx, newPending("s-1"), nil, ""); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if _, err := svc.Approve(ctx, "s-1", "alice", ""); !errors.Is(err, boom) {
		t.Fatalf("Approve() error = %v, want writer error", err)
	}

	stored, _ := repo.GetByID(ctx, "s-1")
	if stored.Status != suggestion.StatusApproved {
		t.Errorf("approval should persist despite the write failure, status = %s", stored.Status)
	}

	writer.err = nil
	loc, err := svc.Materialize(ctx, "s-1")
	if err != nil || loc != "mem://s-1" {
		t.Errorf("Materialize() = %q, %v", loc, err)
	}
}

func TestEvolutionService_List(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		s := newPending(id)
		if id == "c" {
			target := operation.NewCoordinate("orders.update", 1)
			s.Target = &target
		}
		if _, err := svc.Submit(ctx, s, nil, ""); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}
	if _, err := svc.Reject(ctx, "b", "bob", ""); err != nil {
		t.Fatalf("Reject() error = %v", err)
	}

	tests := []struct {
		name   string
		filter suggestion.ListFilter
		want   int
	}{
		{"all", suggestion.ListFilter{}, 3},
		{"pending", suggestion.ListFilter{Status: suggestion.StatusPending}, 2},
		{"operation", suggestion.ListFilter{OperationName: "orders.update"}, 1},
		{"pending for operation", suggestion.ListFilter{Status: suggestion.StatusPending, OperationName: "orders.create"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := svc.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("List() returned %d, want %d", len(got), tt.want)
			}
		})
	}
}
