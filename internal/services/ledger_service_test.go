package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/pazaryeri/api/internal/domain"
	"github.com/pazaryeri/api/internal/repositories"
)

type stubLedgerRepository struct {
	insertFunc func(ctx context.Context, entry domain.LedgerEntry) error
	listFunc   func(ctx context.Context, filter repositories.LedgerListFilter) (domain.CursorPage[domain.LedgerEntry], error)
	inserted   []domain.LedgerEntry
}

func (s *stubLedgerRepository) Insert(ctx context.Context, entry domain.LedgerEntry) error {
	s.inserted = append(s.inserted, entry)
	if s.insertFunc == nil {
		return nil
	}
	return s.insertFunc(ctx, entry)
}

func (s *stubLedgerRepository) List(ctx context.Context, filter repositories.LedgerListFilter) (domain.CursorPage[domain.LedgerEntry], error) {
	if s.listFunc == nil {
		return domain.CursorPage[domain.LedgerEntry]{}, errors.New("list not configured")
	}
	return s.listFunc(ctx, filter)
}

func TestRecordExpenseInsertsEntry(t *testing.T) {
	now := time.Date(2025, 8, 20, 9, 0, 0, 0, time.UTC)
	repo := &stubLedgerRepository{}

	svc, err := NewLedgerService(LedgerServiceDeps{
		Ledger:      repo,
		Clock:       func() time.Time { return now },
		IDGenerator: sequentialIDs("exp"),
	})
	if err != nil {
		t.Fatalf("NewLedgerService: %v", err)
	}

	entry, err := svc.RecordExpense(context.Background(), RecordExpenseCommand{
		Amount:      35000,
		Description: "  Courier invoice August  ",
		ActorID:     "admin-2",
	})
	if err != nil {
		t.Fatalf("RecordExpense: %v", err)
	}

	if entry.Type != domain.LedgerEntryExpense {
		t.Fatalf("expected expense type, got %s", entry.Type)
	}
	if entry.Amount != 35000 {
		t.Fatalf("expected amount 35000, got %d", entry.Amount)
	}
	if entry.Description != "Courier invoice August" {
		t.Fatalf("expected trimmed description, got %q", entry.Description)
	}
	if entry.CreatedBy == nil || *entry.CreatedBy != "admin-2" {
		t.Fatalf("expected creator recorded, got %v", entry.CreatedBy)
	}
	if !strings.HasPrefix(entry.ID, "led_") {
		t.Fatalf("unexpected id %q", entry.ID)
	}
	if !entry.CreatedAt.Equal(now) {
		t.Fatalf("expected timestamp %v, got %v", now, entry.CreatedAt)
	}
	if len(repo.inserted) != 1 {
		t.Fatalf("expected 1 insert, got %d", len(repo.inserted))
	}
}

func TestRecordExpenseValidatesInput(t *testing.T) {
	repo := &stubLedgerRepository{}
	svc, err := NewLedgerService(LedgerServiceDeps{Ledger: repo})
	if err != nil {
		t.Fatalf("NewLedgerService: %v", err)
	}

	if _, err := svc.RecordExpense(context.Background(), RecordExpenseCommand{Amount: 0, Description: "rent"}); !errors.Is(err, ErrLedgerInvalidInput) {
		t.Fatalf("expected ErrLedgerInvalidInput for zero amount, got %v", err)
	}
	if _, err := svc.RecordExpense(context.Background(), RecordExpenseCommand{Amount: 100, Description: "  "}); !errors.Is(err, ErrLedgerInvalidInput) {
		t.Fatalf("expected ErrLedgerInvalidInput for empty description, got %v", err)
	}
	if len(repo.inserted) != 0 {
		t.Fatalf("expected no inserts, got %d", len(repo.inserted))
	}
}

func TestListEntriesForwardsFilter(t *testing.T) {
	var captured repositories.LedgerListFilter
	repo := &stubLedgerRepository{
		listFunc: func(ctx context.Context, filter repositories.LedgerListFilter) (domain.CursorPage[domain.LedgerEntry], error) {
			captured = filter
			return domain.CursorPage[domain.LedgerEntry]{
				Items: []domain.LedgerEntry{{ID: "led_1", Type: domain.LedgerEntryIncome, Amount: 5000}},
			}, nil
		},
	}
	svc, err := NewLedgerService(LedgerServiceDeps{Ledger: repo})
	if err != nil {
		t.Fatalf("NewLedgerService: %v", err)
	}

	page, err := svc.ListEntries(context.Background(), LedgerListFilter{
		Types: []domain.LedgerEntryType{domain.LedgerEntryIncome},
	})
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "led_1" {
		t.Fatalf("unexpected page %+v", page)
	}
	if len(captured.Types) != 1 || captured.Types[0] != domain.LedgerEntryIncome {
		t.Fatalf("expected type filter forwarded, got %+v", captured.Types)
	}
}
