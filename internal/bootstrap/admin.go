package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/config"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/domain"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/password"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/repository"
)

// EnsureAdmin creates the configured admin account on start-up if missing.
func EnsureAdmin(lc fx.Lifecycle, cfg config.Config, users repository.UserRepository, node *snowflake.Node, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return ensureAdmin(ctx, cfg, users, node, logger)
		},
	})
}

func ensureAdmin(ctx context.Context, cfg config.Config, users repository.UserRepository, node *snowflake.Node, logger *zap.Logger) error {
	email := domain.NormalizeEmail(cfg.AdminEmail)
	if email == "" || cfg.AdminPassword == "" {
		return nil
	}

	existing, err := users.GetByEmail(ctx, email)
	if err == nil {
		if !existing.IsAdmin() && logger != nil {
			logger.Warn("bootstrap admin email belongs to a non-admin user", zap.Int64("user_id", existing.ID))
		}
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("bootstrap lookup user: %w", err)
	}

	hashed, err := password.Hash(cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("bootstrap hash password: %w", err)
	}

	created, err := users.Create(ctx, domain.User{
		ID:            node.Generate().Int64(),
		Email:         email,
		Username:      "admin",
		Role:          domain.RoleAdmin,
		PasswordHash:  hashed,
		EmailVerified: true,
	})
	if err != nil {
		return fmt.Errorf("bootstrap create user: %w", err)
	}

	if logger != nil {
		logger.Info("bootstrap admin user created",
			zap.String("email", created.Email),
			zap.Int64("user_id", created.ID),
		)
	}
	return nil
}
