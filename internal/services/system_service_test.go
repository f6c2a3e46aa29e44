package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/pazaryeri/api/internal/domain"
)

type stubHealthRepository struct {
	report domain.SystemHealthReport
	err    error
	calls  int
}

func (s *stubHealthRepository) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	s.calls++
	return s.report, s.err
}

func newSystemServiceForTest(t *testing.T, repo *stubHealthRepository, deps SystemServiceDeps) SystemService {
	t.Helper()
	deps.HealthRepository = repo
	svc, err := NewSystemService(deps)
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}
	return svc
}

func TestSystemServiceHealthReportEnrichesMetadata(t *testing.T) {
	start := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(5 * time.Minute)
	repo := &stubHealthRepository{
		report: domain.SystemHealthReport{
			Checks: map[string]domain.SystemHealthCheck{
				"firestore": {Status: domain.HealthStatusOK},
			},
		},
	}

	svc := newSystemServiceForTest(t, repo, SystemServiceDeps{
		Clock: func() time.Time { return now },
		Build: BuildInfo{
			Version:     "1.2.3",
			CommitSHA:   "abc123",
			Environment: "prod",
			StartedAt:   start,
		},
	})

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if repo.calls != 1 {
		t.Fatalf("Collect calls = %d, want 1", repo.calls)
	}

	if report.Status != domain.HealthStatusOK {
		t.Errorf("Status = %s, want ok", report.Status)
	}
	if report.Version != "1.2.3" || report.CommitSHA != "abc123" || report.Environment != "prod" {
		t.Errorf("build metadata = %s/%s/%s", report.Version, report.CommitSHA, report.Environment)
	}
	if report.Uptime != now.Sub(start) {
		t.Errorf("Uptime = %s, want %s", report.Uptime, now.Sub(start))
	}
	if !report.GeneratedAt.Equal(now) {
		t.Errorf("GeneratedAt = %s, want %s", report.GeneratedAt, now)
	}
}

func TestSystemServiceHealthReportErrors(t *testing.T) {
	expected := errors.New("collect failed")
	svc := newSystemServiceForTest(t, &stubHealthRepository{err: expected}, SystemServiceDeps{})

	if _, err := svc.HealthReport(context.Background()); !errors.Is(err, expected) {
		t.Fatalf("HealthReport error = %v, want %v", err, expected)
	}
}

func TestNewSystemServiceRequiresRepository(t *testing.T) {
	if _, err := NewSystemService(SystemServiceDeps{}); err == nil {
		t.Fatal("expected error when repository missing")
	}
}

func TestSystemServiceDerivesStatusWhenMissing(t *testing.T) {
	repo := &stubHealthRepository{
		report: domain.SystemHealthReport{
			Checks: map[string]domain.SystemHealthCheck{
				"pubsub":        {Status: domain.HealthStatusDegraded},
				"firestore":     {Status: domain.HealthStatusOK},
				"firebase_auth": {Status: domain.HealthStatusOK},
			},
		},
	}
	svc := newSystemServiceForTest(t, repo, SystemServiceDeps{})

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("Status = %s, want degraded", report.Status)
	}
}
