package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pazaryeri/api/internal/platform/config"
	"github.com/pazaryeri/api/internal/repositories"
	"github.com/pazaryeri/api/internal/services"
)

// Repositories bundles the persistence contracts the service layer depends on.
// Production wiring supplies Firestore-backed implementations; tests can
// substitute in-memory stubs.
type Repositories struct {
	Orders        repositories.OrderRepository
	Stocks        repositories.StockRepository
	Ledger        repositories.LedgerRepository
	Notifications repositories.NotificationRepository
	Health        repositories.HealthRepository
}

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Orders    services.OrderService
	Ledger    services.LedgerService
	Inventory services.InventoryService
	System    services.SystemService
}

// ContainerDeps carries everything NewContainer needs to assemble the runtime graph.
type ContainerDeps struct {
	Config       config.Config
	Repositories Repositories
	Events       services.OrderEventPublisher
	Build        services.BuildInfo
	Logger       *zap.Logger
	Clock        func() time.Time
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories Repositories
	Services     Services
}

// NewContainer constructs the runtime dependency graph from concrete repositories.
func NewContainer(deps ContainerDeps) (*Container, error) {
	svc, err := buildServices(deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       deps.Config,
		Repositories: deps.Repositories,
		Services:     svc,
	}, nil
}

func buildServices(deps ContainerDeps) (Services, error) {
	var svc Services

	repos := deps.Repositories
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if repos.Orders == nil {
		return Services{}, errors.New("di: order repository is required")
	}
	if repos.Notifications == nil {
		return Services{}, errors.New("di: notification repository is required")
	}
	if repos.Stocks == nil {
		return Services{}, errors.New("di: stock repository is required")
	}
	if repos.Ledger == nil {
		return Services{}, errors.New("di: ledger repository is required")
	}

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:        repos.Orders,
		Notifications: repos.Notifications,
		Clock:         clock,
		Events:        deps.Events,
		Logger:        zapEventLogger(logger.Named("orders")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	ledgerSvc, err := services.NewLedgerService(services.LedgerServiceDeps{
		Ledger: repos.Ledger,
		Clock:  clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build ledger service: %w", err)
	}
	svc.Ledger = ledgerSvc

	inventorySvc, err := services.NewInventoryService(services.InventoryServiceDeps{
		Stocks:                   repos.Stocks,
		DefaultLowStockThreshold: deps.Config.Inventory.LowStockThreshold,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build inventory service: %w", err)
	}
	svc.Inventory = inventorySvc

	if repos.Health != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: repos.Health,
			Clock:            clock,
			Build:            deps.Build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}

func zapEventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug("order log", zFields...)
	}
}
