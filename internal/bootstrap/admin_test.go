package bootstrap

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/config"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/domain"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/password"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/repository"
)

func TestEnsureAdminCreatesOnce(t *testing.T) {
	ctx := context.Background()
	users := repository.NewMemoryStore().Users()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	cfg := config.Config{AdminEmail: " Admin@Shop.com ", AdminPassword: "Adm1n!pass"}

	require.NoError(t, ensureAdmin(ctx, cfg, users, node, zap.NewNop()))
	require.NoError(t, ensureAdmin(ctx, cfg, users, node, zap.NewNop()))

	admin, err := users.GetByEmail(ctx, "admin@shop.com")
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, admin.Role)
	require.True(t, admin.EmailVerified)
	ok, err := password.Verify("Adm1n!pass", admin.PasswordHash)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEnsureAdminSkipsWithoutConfig(t *testing.T) {
	users := repository.NewMemoryStore().Users()
	require.NoError(t, ensureAdmin(context.Background(), config.Config{}, users, nil, nil))
}
