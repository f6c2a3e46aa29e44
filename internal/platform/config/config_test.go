package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithEnvMap(map[string]string{
			"API_FIREBASE_PROJECT_ID": "pazaryeri-test",
		}),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Fatalf("unexpected read timeout %v", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "pazaryeri-test" {
		t.Fatalf("expected firestore project to fall back to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.PubSub.ProjectID != "pazaryeri-test" {
		t.Fatalf("expected pubsub project to fall back to firebase project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.PubSub.OrderEventsTopic != "order-events" {
		t.Fatalf("unexpected topic %s", cfg.PubSub.OrderEventsTopic)
	}
	if cfg.Inventory.LowStockThreshold != 5 {
		t.Fatalf("unexpected low stock threshold %d", cfg.Inventory.LowStockThreshold)
	}
	if !cfg.Features.EnableOrderEvents {
		t.Fatal("expected order events enabled by default")
	}
	if cfg.Idempotency.Header != "Idempotency-Key" {
		t.Fatalf("unexpected idempotency header %s", cfg.Idempotency.Header)
	}
}

func TestLoadValidatesRequiredFields(t *testing.T) {
	_, err := Load(
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithEnvMap(map[string]string{}),
	)
	if err == nil {
		t.Fatal("expected validation error for missing firebase project")
	}

	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	fields := validationErr.Fields()
	found := false
	for _, field := range fields {
		if field == "Firebase.ProjectID" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected Firebase.ProjectID in %v", fields)
	}
}

func TestLoadPrecedenceEnvMapOverDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	contents := "API_FIREBASE_PROJECT_ID=from-dotenv\nAPI_SERVER_PORT=9090\nAPI_FEATURE_ORDER_EVENTS=off\n"
	if err := os.WriteFile(envFile, []byte(contents), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(
		WithoutSystemEnv(),
		WithEnvFile(envFile),
		WithEnvMap(map[string]string{
			"API_SERVER_PORT": "7070",
		}),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Firebase.ProjectID != "from-dotenv" {
		t.Fatalf("expected project from dotenv, got %s", cfg.Firebase.ProjectID)
	}
	if cfg.Server.Port != "7070" {
		t.Fatalf("expected env map to win, got %s", cfg.Server.Port)
	}
	if cfg.Features.EnableOrderEvents {
		t.Fatal("expected order events disabled via dotenv")
	}
}

func TestLoadParsesDurationsAndNumbers(t *testing.T) {
	cfg, err := Load(
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithEnvMap(map[string]string{
			"API_FIREBASE_PROJECT_ID":           "pazaryeri-test",
			"API_SERVER_WRITE_TIMEOUT":          "45s",
			"API_INVENTORY_LOW_STOCK_THRESHOLD": "12",
			"API_IDEMPOTENCY_TTL":               "2h",
			"API_IDEMPOTENCY_CLEANUP_BATCH":     "50",
			"API_PUBSUB_ORDER_EVENTS_TOPIC":     "orders.lifecycle",
			"API_FEATURE_ORDER_EVENTS":          "no",
		}),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.WriteTimeout != 45*time.Second {
		t.Fatalf("unexpected write timeout %v", cfg.Server.WriteTimeout)
	}
	if cfg.Inventory.LowStockThreshold != 12 {
		t.Fatalf("unexpected low stock threshold %d", cfg.Inventory.LowStockThreshold)
	}
	if cfg.Idempotency.TTL != 2*time.Hour {
		t.Fatalf("unexpected idempotency TTL %v", cfg.Idempotency.TTL)
	}
	if cfg.Idempotency.CleanupBatchSize != 50 {
		t.Fatalf("unexpected cleanup batch %d", cfg.Idempotency.CleanupBatchSize)
	}
	if cfg.PubSub.OrderEventsTopic != "orders.lifecycle" {
		t.Fatalf("unexpected topic %s", cfg.PubSub.OrderEventsTopic)
	}
	if cfg.Features.EnableOrderEvents {
		t.Fatal("expected order events disabled")
	}
}
