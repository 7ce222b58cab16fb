package sqlite_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/specflow/domain/intent"
	"github.com/felixgeelhaar/specflow/domain/operation"
	"github.com/felixgeelhaar/specflow/domain/suggestion"
	"github.com/felixgeelhaar/specflow/infrastructure/storage/sqlite"
)

func newTestRepository(t *testing.T) *sqlite.SuggestionRepository {
	t.Helper()

	cfg := sqlite.DefaultConfig()
	cfg.DSN = "file:" + t.TempDir() + "/specflow.db?mode=rwc"

	repo, err := sqlite.NewSuggestionRepository(cfg)
	if err != nil {
		t.Fatalf("NewSuggestionRepository failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func newSuggestion(id, op string, createdAt time.Time) *suggestion.Suggestion {
	p := intent.NewPattern(intent.TypeErrorSpike, "errors").ForOperation(operation.NewCoordinate(op, 1))
	return &suggestion.Suggestion{
		ID:         id,
		Intent:     *p,
		Proposal:   suggestion.Proposal{Summary: "Stabilize " + op, ChangeType: suggestion.ChangeTypePolicyUpdate},
		Confidence: 0.8,
		Priority:   suggestion.PriorityMedium,
		CreatedAt:  createdAt,
		CreatedBy:  "test",
		Status:     suggestion.StatusPending,
	}
}

func TestSuggestionRepository_CreateAndGet(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	s := newSuggestion("s-1", "orders.create", time.Now())
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := repo.GetByID(ctx, "s-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Proposal.Summary != "Stabilize orders.create" {
		t.Errorf("Summary = %q", got.Proposal.Summary)
	}
	if got.Status != suggestion.StatusPending {
		t.Errorf("Status = %s, want pending", got.Status)
	}

	if err := repo.Create(ctx, s); !errors.Is(err, suggestion.ErrSuggestionExists) {
		t.Errorf("duplicate Create error = %v, want ErrSuggestionExists", err)
	}
	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, suggestion.ErrSuggestionNotFound) {
		t.Errorf("GetByID(missing) error = %v, want ErrSuggestionNotFound", err)
	}
	if err := repo.Create(ctx, &suggestion.Suggestion{}); !errors.Is(err, suggestion.ErrInvalidSuggestion) {
		t.Errorf("Create(empty) error = %v, want ErrInvalidSuggestion", err)
	}
}

func TestSuggestionRepository_UpdateStatus(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	if err := repo.Create(ctx, newSuggestion("s-1", "orders.create", time.Now())); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	if err := repo.UpdateStatus(ctx, "s-1", suggestion.StatusApproved, suggestion.Decision{Reviewer: "alice", Notes: "ship it", DecidedAt: at}); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	got, err := repo.GetByID(ctx, "s-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Status != suggestion.StatusApproved {
		t.Errorf("Status = %s, want approved", got.Status)
	}
	if got.Approvals == nil || got.Approvals.Reviewer != "alice" || !got.Approvals.DecidedAt.Equal(at) {
		t.Errorf("Approvals = %+v", got.Approvals)
	}

	err = repo.UpdateStatus(ctx, "s-1", suggestion.StatusRejected, suggestion.Decision{Reviewer: "bob"})
	if !errors.Is(err, suggestion.ErrInvalidStatusTransition) {
		t.Errorf("second decision error = %v, want ErrInvalidStatusTransition", err)
	}
	err = repo.UpdateStatus(ctx, "missing", suggestion.StatusRejected, suggestion.Decision{})
	if !errors.Is(err, suggestion.ErrSuggestionNotFound) {
		t.Errorf("missing error = %v, want ErrSuggestionNotFound", err)
	}
	err = repo.UpdateStatus(ctx, "s-1", suggestion.StatusPending, suggestion.Decision{})
	if !errors.Is(err, suggestion.ErrInvalidStatus) {
		t.Errorf("pending error = %v, want ErrInvalidStatus", err)
	}
}

func TestSuggestionRepository_ConcurrentDecisions(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	if err := repo.Create(ctx, newSuggestion("s-1", "orders.create", time.Now())); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status := suggestion.StatusApproved
			if i%2 == 1 {
				status = suggestion.StatusRejected
			}
			if err := repo.UpdateStatus(ctx, "s-1", status, suggestion.Decision{Reviewer: "r"}); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("winning decisions = %d, want 1", wins)
	}
}

func TestSuggestionRepository_List(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for _, s := range []*suggestion.Suggestion{
		newSuggestion("c", "orders.create", base.Add(2*time.Minute)),
		newSuggestion("a", "orders.create", base),
		newSuggestion("b", "orders.update", base.Add(time.Minute)),
	} {
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	if err := repo.UpdateStatus(ctx, "c", suggestion.StatusRejected, suggestion.Decision{Reviewer: "bob"}); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	tests := []struct {
		name   string
		filter suggestion.ListFilter
		want   []string
	}{
		{"all oldest first", suggestion.ListFilter{}, []string{"a", "b", "c"}},
		{"by status", suggestion.ListFilter{Status: suggestion.StatusPending}, []string{"a", "b"}},
		{"by operation", suggestion.ListFilter{OperationName: "orders.create"}, []string{"a", "c"}},
		{"both", suggestion.ListFilter{Status: suggestion.StatusRejected, OperationName: "orders.create"}, []string{"c"}},
		{"no match", suggestion.ListFilter{OperationName: "orders.delete"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("List returned %d suggestions, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("List[%d] = %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := sqlite.DefaultConfig()
	sqlite.WithDSN("file::memory:")(&cfg)
	if cfg.DSN != "file::memory:" {
		t.Errorf("DSN = %q, want file::memory:", cfg.DSN)
	}
	if cfg.JournalMode != "WAL" || cfg.BusyTimeout != 5000 || cfg.MaxOpenConns != 1 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if !cfg.AutoMigrate {
		t.Error("AutoMigrate should default to true")
	}
}
