package pagination

import (
	"errors"
	"testing"
	"time"
)

type testCursor struct {
	ID        string
	CreatedAt time.Time
}

func TestEncodeDecodeTokenRoundTrip(t *testing.T) {
	created := time.Date(2025, 8, 14, 10, 30, 0, 0, time.UTC)
	token, err := EncodeToken(testCursor{ID: "order-1", CreatedAt: created})
	if err != nil {
		t.Fatalf("EncodeToken: %v", err)
	}
	if token == "" {
		t.Fatalf("expected non-empty token")
	}

	var decoded testCursor
	if err := DecodeToken(token, &decoded); err != nil {
		t.Fatalf("DecodeToken: %v", err)
	}
	if decoded.ID != "order-1" || !decoded.CreatedAt.Equal(created) {
		t.Fatalf("unexpected cursor %+v", decoded)
	}
}

func TestDecodeTokenRejectsGarbage(t *testing.T) {
	var decoded testCursor
	if err := DecodeToken("not-base64!!", &decoded); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken, got %v", err)
	}
	if err := DecodeToken("   ", &decoded); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken for blank token, got %v", err)
	}
}
