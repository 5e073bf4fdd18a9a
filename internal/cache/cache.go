package cache

import (
	"context"
	"time"

	"github.com/YAOSTEPHANE/batim-sub000/internal/domain"
)

type ReportCache interface {
	Get(ctx context.Context, key string) (*domain.CreditReport, bool, error)
	Set(ctx context.Context, key string, value *domain.CreditReport, ttl time.Duration) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) (*domain.CreditReport, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ *domain.CreditReport, _ time.Duration) error {
	return nil
}
