package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/pazaryeri/api/internal/domain"
	pfirestore "github.com/pazaryeri/api/internal/platform/firestore"
	"github.com/pazaryeri/api/internal/platform/pagination"
)

const notificationsCollection = "notifications"

// NotificationRepository appends storefront notifications. The admin API never
// updates or deletes existing notifications.
type NotificationRepository struct {
	provider      *pfirestore.Provider
	notifications *pfirestore.BaseRepository[notificationDocument]
}

func NewNotificationRepository(provider *pfirestore.Provider) (*NotificationRepository, error) {
	if provider == nil {
		return nil, errors.New("notification repository requires firestore provider")
	}
	notifications := pfirestore.NewBaseRepository[notificationDocument](provider, notificationsCollection)
	return &NotificationRepository{provider: provider, notifications: notifications}, nil
}

func (r *NotificationRepository) Insert(ctx context.Context, notification domain.Notification) error {
	if r == nil || r.notifications == nil {
		return errors.New("notification repository not initialised")
	}
	if strings.TrimSpace(notification.ID) == "" {
		return errors.New("notification insert: id is required")
	}
	if strings.TrimSpace(notification.UserID) == "" {
		return errors.New("notification insert: user id is required")
	}
	ref, err := r.notifications.DocumentRef(ctx, notification.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, newNotificationDocument(notification)); err != nil {
		return pfirestore.WrapError("notifications.insert", err)
	}
	return nil
}

func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Notification], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Notification]{}, errors.New("notification repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.CursorPage[domain.Notification]{}, errors.New("notification list: user id is required")
	}

	pageSize := pager.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Notification]{}, pfirestore.WrapError("notifications.list", err)
	}

	query := client.Collection(notificationsCollection).Query.
		Where("userRef", "==", userID).
		OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Limit(pageSize + 1)

	if token := strings.TrimSpace(pager.PageToken); token != "" {
		var decoded notificationPageToken
		if err := pagination.DecodeToken(token, &decoded); err != nil {
			return domain.CursorPage[domain.Notification]{}, pfirestore.WrapError("notifications.list", err)
		}
		query = query.StartAfter(decoded.CreatedAt, decoded.ID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var notifications []domain.Notification
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Notification]{}, pfirestore.WrapError("notifications.list", err)
		}
		var doc notificationDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Notification]{}, fmt.Errorf("decode notification %s: %w", snap.Ref.ID, err)
		}
		notifications = append(notifications, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(notifications) > pageSize
	if hasMore {
		notifications = notifications[:pageSize]
	}
	var nextToken string
	if hasMore && len(notifications) > 0 {
		last := notifications[len(notifications)-1]
		encoded, err := pagination.EncodeToken(notificationPageToken{ID: last.ID, CreatedAt: last.CreatedAt})
		if err != nil {
			return domain.CursorPage[domain.Notification]{}, pfirestore.WrapError("notifications.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Notification]{Items: notifications, NextPageToken: nextToken}, nil
}

type notificationDocument struct {
	UserRef   string     `firestore:"userRef"`
	Title     string     `firestore:"title"`
	Body      string     `firestore:"body"`
	OrderRef  *string    `firestore:"orderRef,omitempty"`
	ReadAt    *time.Time `firestore:"readAt,omitempty"`
	CreatedAt time.Time  `firestore:"createdAt"`
}

func newNotificationDocument(notification domain.Notification) notificationDocument {
	return notificationDocument{
		UserRef:   strings.TrimSpace(notification.UserID),
		Title:     strings.TrimSpace(notification.Title),
		Body:      strings.TrimSpace(notification.Body),
		OrderRef:  notification.OrderRef,
		ReadAt:    notification.ReadAt,
		CreatedAt: notification.CreatedAt.UTC(),
	}
}

func (d notificationDocument) toDomain(id string) domain.Notification {
	return domain.Notification{
		ID:        id,
		UserID:    d.UserRef,
		Title:     d.Title,
		Body:      d.Body,
		OrderRef:  d.OrderRef,
		ReadAt:    d.ReadAt,
		CreatedAt: d.CreatedAt,
	}
}

type notificationPageToken struct {
	ID        string
	CreatedAt time.Time
}

