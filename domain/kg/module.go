package kg

import (
	"log/slog"

	"github.com/uptrace/bun"
	"go.uber.org/fx"

	"github.com/aurora-intel/aurora-core/internal/config"
	"github.com/aurora-intel/aurora-core/pkg/signing"
)

// Module provides KG domain dependencies.
var Module = fx.Module("kg",
	fx.Provide(provideRepository),
	fx.Provide(NewMetrics),
	fx.Provide(provideSigningSuite),
	fx.Provide(NewService),
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)

func provideRepository(db *bun.DB, log *slog.Logger) *Repository {
	return NewRepository(db, log)
}

func provideSigningSuite(cfg *config.Config) (*signing.Suite, error) {
	hmac := signing.NewHMACSigner(cfg.Signing.HMACSecret)
	sigstore := signing.NewSigstoreSigner(signing.SigstoreConfig{
		Env:               cfg.Signing.SigstoreEnv,
		VerifyIdentity:    cfg.Signing.SigstoreVerifyIdentity,
		VerifyIssuer:      cfg.Signing.SigstoreVerifyIssuer,
		AllowUnsafePolicy: cfg.Signing.SigstoreAllowUnsafePolicy,
		OfflineFallback:   cfg.Signing.SigstoreOfflineFallback,
		IdentityToken:     cfg.Signing.SigstoreIdentityToken,
	})
	return signing.NewSuite(cfg.Signing.Backend, hmac, sigstore)
}
