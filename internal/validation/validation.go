package validation

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/geoaware/backend/internal/cache"
	"github.com/geoaware/backend/internal/config"
	"github.com/geoaware/backend/internal/database"
	"github.com/geoaware/backend/internal/logger"
	"github.com/geoaware/backend/internal/telemetry"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// CheckFunc probes one dependency
type CheckFunc func(ctx context.Context) error

// ServiceValidator checks that the services listed in REQUIRED_SERVICES
// answer before the server accepts traffic
type ServiceValidator struct {
	requiredServices []string
	checks           map[string]CheckFunc
	timeout          time.Duration
}

// NewServiceValidator creates a validator for cfg.RequiredServices
func NewServiceValidator(cfg *config.Config) *ServiceValidator {
	return &ServiceValidator{
		requiredServices: cfg.RequiredServices,
		checks: map[string]CheckFunc{
			config.ServicePostgres:    validatePostgres,
			config.ServiceRedis:       redisCheck(cfg.Redis),
			config.ServiceContentRepo: ContentRepoCheck(cfg.ContentRepoURL),
		},
		timeout: 10 * time.Second,
	}
}

// SetCheck replaces the probe for a service
func (sv *ServiceValidator) SetCheck(service string, check CheckFunc) {
	sv.checks[service] = check
}

// ValidateServices runs every required check and fails on the first error
func (sv *ServiceValidator) ValidateServices(ctx context.Context) error {
	if len(sv.requiredServices) == 0 {
		logger.Log.Info("No required services configured for validation")
		return nil
	}

	logger.Log.Info("Validating required services", zap.Strings("services", sv.requiredServices))

	for _, name := range sv.requiredServices {
		check, ok := sv.checks[name]
		if !ok {
			logger.Log.Warn("Unknown service type in validation", zap.String("service", name))
			continue
		}

		timeoutCtx, cancel := context.WithTimeout(ctx, sv.timeout)
		err := check(timeoutCtx)
		cancel()
		if err != nil {
			logger.Log.Error("Required service validation failed", zap.String("service", name), zap.Error(err))
			return fmt.Errorf("required service '%s' validation failed: %w", name, err)
		}

		logger.Log.Info("Service validated successfully", zap.String("service", name))
	}

	logger.Log.Info("All required services validated successfully")
	return nil
}

func validatePostgres(_ context.Context) error {
	return database.Health()
}

func redisCheck(cfg config.RedisConfig) CheckFunc {
	return func(ctx context.Context) error {
		rc, err := cache.NewRedisClient(cfg.Host, cfg.Port, cfg.Password)
		if err != nil {
			return err
		}
		defer rc.Close()
		return rc.Ping(ctx)
	}
}

// ContentRepoCheck expects 200 from the blob service health endpoint
func ContentRepoCheck(baseURL string) CheckFunc {
	client := resty.NewWithClient(telemetry.NewInstrumentedHTTPClient("content-repo", 5*time.Second)).
		SetBaseURL(strings.TrimSuffix(baseURL, "/"))
	return func(ctx context.Context) error {
		resp, err := client.R().SetContext(ctx).Get("/health")
		if err != nil {
			return fmt.Errorf("failed to connect to content repository at %s: %w", baseURL, err)
		}
		if resp.StatusCode() != http.StatusOK {
			return fmt.Errorf("content repository returned status %d", resp.StatusCode())
		}
		return nil
	}
}
