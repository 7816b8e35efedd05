package auth

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"dataset-platform/core/models"
	"dataset-platform/core/repository"
)

// SeedUsers creates the default development accounts if they do not exist.
// Every seed account uses the password "pass"; real deployments replace them
// during provisioning.
func SeedUsers(ctx context.Context, users repository.Users) error {
	seeds := []struct {
		username string
		role     models.Role
	}{
		{"customer1", models.RoleCustomer},
		{"labeler1", models.RoleLabeler},
		{"admin1", models.RoleAdmin},
		{"universal1", models.RoleUniversal},
	}

	for _, seed := range seeds {
		existing, err := users.GetByUsername(ctx, seed.username)
		if err != nil {
			return eris.Wrapf(err, "auth: look up seed user %s", seed.username)
		}
		if existing != nil {
			continue
		}

		hash, err := HashPassword("pass")
		if err != nil {
			return err
		}
		user := &models.User{
			Username:     seed.username,
			PasswordHash: hash,
			Role:         seed.role,
			Active:       true,
		}
		if err := users.Create(ctx, user); err != nil {
			return eris.Wrapf(err, "auth: create seed user %s", seed.username)
		}
		zap.L().Info("seeded user",
			zap.String("username", seed.username),
			zap.String("role", string(seed.role)),
		)
	}
	return nil
}
