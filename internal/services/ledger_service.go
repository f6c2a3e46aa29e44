package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/pazaryeri/api/internal/domain"
	"github.com/pazaryeri/api/internal/repositories"
)

var (
	// ErrLedgerInvalidInput signals the caller provided invalid data.
	ErrLedgerInvalidInput = errors.New("ledger: invalid input")
	// ErrLedgerNotFound indicates the requested entry could not be located.
	ErrLedgerNotFound = errors.New("ledger: not found")
	// ErrLedgerConflict indicates a duplicate entry write.
	ErrLedgerConflict = errors.New("ledger: conflict")
)

// LedgerServiceDeps bundles collaborators required to construct the ledger service.
type LedgerServiceDeps struct {
	Ledger      repositories.LedgerRepository
	Clock       func() time.Time
	IDGenerator func() string
}

type ledgerService struct {
	ledger    repositories.LedgerRepository
	clock     func() time.Time
	newID     func() string
	sanitizer *bluemonday.Policy
}

var _ LedgerService = (*ledgerService)(nil)

// NewLedgerService wires dependencies into a concrete LedgerService implementation.
func NewLedgerService(deps LedgerServiceDeps) (LedgerService, error) {
	if deps.Ledger == nil {
		return nil, errors.New("ledger service: ledger repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	return &ledgerService{
		ledger: deps.Ledger,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:     idGen,
		sanitizer: bluemonday.StrictPolicy(),
	}, nil
}

func (s *ledgerService) ListEntries(ctx context.Context, filter LedgerListFilter) (domain.CursorPage[LedgerEntry], error) {
	page, err := s.ledger.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[LedgerEntry]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// RecordExpense writes a manual expense entry for the finance dashboard. Income
// entries are owned by the order lifecycle and cannot be recorded here.
func (s *ledgerService) RecordExpense(ctx context.Context, cmd RecordExpenseCommand) (LedgerEntry, error) {
	description := strings.TrimSpace(s.sanitizer.Sanitize(cmd.Description))

	if cmd.Amount <= 0 {
		return LedgerEntry{}, fmt.Errorf("%w: amount must be positive", ErrLedgerInvalidInput)
	}
	if description == "" {
		return LedgerEntry{}, fmt.Errorf("%w: description is required", ErrLedgerInvalidInput)
	}

	entry := domain.LedgerEntry{
		ID:          ledgerEntryIDPrefix + s.newID(),
		Type:        domain.LedgerEntryExpense,
		Amount:      cmd.Amount,
		Description: description,
		CreatedAt:   s.clock(),
	}
	if actor := strings.TrimSpace(cmd.ActorID); actor != "" {
		entry.CreatedBy = &actor
	}

	if err := s.ledger.Insert(ctx, entry); err != nil {
		return LedgerEntry{}, s.mapRepositoryError(err)
	}
	return entry, nil
}

func (s *ledgerService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrLedgerNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrLedgerConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("ledger: repository unavailable: %w", err)
		}
	}

	return err
}
