package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/pazaryeri/api/internal/domain"
	pfirestore "github.com/pazaryeri/api/internal/platform/firestore"
	"github.com/pazaryeri/api/internal/platform/pagination"
	"github.com/pazaryeri/api/internal/repositories"
)

// LedgerRepository stores income and expense entries.
type LedgerRepository struct {
	provider *pfirestore.Provider
	entries  *pfirestore.BaseRepository[ledgerDocument]
}

func NewLedgerRepository(provider *pfirestore.Provider) (*LedgerRepository, error) {
	if provider == nil {
		return nil, errors.New("ledger repository requires firestore provider")
	}
	entries := pfirestore.NewBaseRepository[ledgerDocument](provider, ledgerCollection)
	return &LedgerRepository{provider: provider, entries: entries}, nil
}

func (r *LedgerRepository) Insert(ctx context.Context, entry domain.LedgerEntry) error {
	if r == nil || r.entries == nil {
		return errors.New("ledger repository not initialised")
	}
	if strings.TrimSpace(entry.ID) == "" {
		return errors.New("ledger insert: id is required")
	}
	ref, err := r.entries.DocumentRef(ctx, entry.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, newLedgerDocument(entry)); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return repositories.NewOrderError(repositories.OrderErrorLedgerExists,
				fmt.Sprintf("ledger entry %s already exists", entry.ID), err)
		}
		return pfirestore.WrapError("ledger.insert", err)
	}
	return nil
}

func (r *LedgerRepository) FindByOrderID(ctx context.Context, orderID string) (domain.LedgerEntry, error) {
	if r == nil || r.provider == nil {
		return domain.LedgerEntry{}, errors.New("ledger repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.LedgerEntry{}, errors.New("ledger find: order id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.LedgerEntry{}, pfirestore.WrapError("ledger.findByOrder", err)
	}

	iter := client.Collection(ledgerCollection).Query.
		Where("orderRef", "==", orderID).
		Where("type", "==", string(domain.LedgerEntryIncome)).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return domain.LedgerEntry{}, repositories.NewOrderError(repositories.OrderErrorNotFound,
			fmt.Sprintf("no income entry for order %s", orderID), nil)
	}
	if err != nil {
		return domain.LedgerEntry{}, pfirestore.WrapError("ledger.findByOrder", err)
	}

	var doc ledgerDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("decode ledger entry %s: %w", snap.Ref.ID, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

func (r *LedgerRepository) List(ctx context.Context, filter repositories.LedgerListFilter) (domain.CursorPage[domain.LedgerEntry], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.LedgerEntry]{}, errors.New("ledger repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.LedgerEntry]{}, pfirestore.WrapError("ledger.list", err)
	}

	query := client.Collection(ledgerCollection).Query
	if len(filter.Types) == 1 {
		query = query.Where("type", "==", string(filter.Types[0]))
	} else if len(filter.Types) > 1 {
		types := make([]string, 0, len(filter.Types))
		for _, t := range filter.Types {
			types = append(types, string(t))
		}
		query = query.Where("type", "in", types)
	}
	if orderID := strings.TrimSpace(filter.OrderID); orderID != "" {
		query = query.Where("orderRef", "==", orderID)
	}
	if filter.DateRange.From != nil {
		query = query.Where("createdAt", ">=", filter.DateRange.From.UTC())
	}
	if filter.DateRange.To != nil {
		query = query.Where("createdAt", "<=", filter.DateRange.To.UTC())
	}
	query = query.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Asc).Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		var decoded ledgerPageToken
		if err := pagination.DecodeToken(token, &decoded); err != nil {
			return domain.CursorPage[domain.LedgerEntry]{}, pfirestore.WrapError("ledger.list", err)
		}
		query = query.StartAfter(decoded.CreatedAt, decoded.ID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var entries []domain.LedgerEntry
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.LedgerEntry]{}, pfirestore.WrapError("ledger.list", err)
		}
		var doc ledgerDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.LedgerEntry]{}, fmt.Errorf("decode ledger entry %s: %w", snap.Ref.ID, err)
		}
		entries = append(entries, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(entries) > pageSize
	if hasMore {
		entries = entries[:pageSize]
	}
	var nextToken string
	if hasMore && len(entries) > 0 {
		last := entries[len(entries)-1]
		encoded, err := pagination.EncodeToken(ledgerPageToken{ID: last.ID, CreatedAt: last.CreatedAt})
		if err != nil {
			return domain.CursorPage[domain.LedgerEntry]{}, pfirestore.WrapError("ledger.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.LedgerEntry]{Items: entries, NextPageToken: nextToken}, nil
}

type ledgerDocument struct {
	Type        string    `firestore:"type"`
	Amount      int64     `firestore:"amount"`
	Description string    `firestore:"description,omitempty"`
	OrderRef    *string   `firestore:"orderRef,omitempty"`
	CreatedBy   *string   `firestore:"createdBy,omitempty"`
	CreatedAt   time.Time `firestore:"createdAt"`
}

func newLedgerDocument(entry domain.LedgerEntry) ledgerDocument {
	return ledgerDocument{
		Type:        string(entry.Type),
		Amount:      entry.Amount,
		Description: strings.TrimSpace(entry.Description),
		OrderRef:    entry.OrderRef,
		CreatedBy:   entry.CreatedBy,
		CreatedAt:   entry.CreatedAt.UTC(),
	}
}

func (d ledgerDocument) toDomain(id string) domain.LedgerEntry {
	return domain.LedgerEntry{
		ID:          id,
		Type:        domain.LedgerEntryType(d.Type),
		Amount:      d.Amount,
		Description: d.Description,
		OrderRef:    d.OrderRef,
		CreatedBy:   d.CreatedBy,
		CreatedAt:   d.CreatedAt,
	}
}

type ledgerPageToken struct {
	ID        string
	CreatedAt time.Time
}

