package kg

import (
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"github.com/aurora-intel/aurora-core/internal/config"
	"github.com/aurora-intel/aurora-core/pkg/canonical"
	"github.com/aurora-intel/aurora-core/pkg/logger"
	"github.com/aurora-intel/aurora-core/pkg/signing"
)

// Limits on neighbor expansion and pagination.
const (
	maxDepth        = 3
	maxLimit        = 1000
	defaultLimit    = 100
	frontierPerHop  = 100
	maxTouchedEdges = 5000
)

// Service ties the temporal store, signing suite, and metrics together.
type Service struct {
	db      bun.IDB
	repo    *Repository
	suite   *signing.Suite
	cfg     *config.Config
	metrics *Metrics
	log     *slog.Logger

	now func() time.Time
}

// NewService creates the KG service.
func NewService(db *bun.DB, repo *Repository, suite *signing.Suite, cfg *config.Config, metrics *Metrics, log *slog.Logger) *Service {
	return &Service{
		db:      db,
		repo:    repo,
		suite:   suite,
		cfg:     cfg,
		metrics: metrics,
		log:     log.With(logger.Scope("kg.service")),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// canonicalProps encodes a property map into its canonical storage form.
func canonicalProps(props map[string]any) (string, error) {
	if props == nil {
		return "{}", nil
	}
	return canonical.MarshalString(props)
}

func clampLimit(limit int) int {
	if limit < 1 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
