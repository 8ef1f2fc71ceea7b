// Package app contains bootstrap helpers shared by the CLI and tests.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskdeck/internal/config"
	"taskdeck/internal/domain"
	"taskdeck/internal/repo"
)

// Seed creates the seed organization and users from config. It is a
// no-op when any user already exists, so repeated runs are safe.
func Seed(ctx context.Context, r repo.Repo, cfg *config.Config) ([]domain.User, error) {
	count, err := r.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, nil
	}
	orgName := cfg.Seed.Organization
	if orgName == "" {
		orgName = "Seed Organization"
	}
	now := time.Now().UTC().Format(time.RFC3339)
	org := domain.Organization{
		ID:        uuid.New().String(),
		Name:      orgName,
		CreatedAt: now,
	}
	if err := r.InsertOrganization(ctx, org); err != nil {
		return nil, fmt.Errorf("insert organization: %w", err)
	}
	users := make([]domain.User, 0, len(cfg.Seed.Users))
	for _, su := range cfg.Seed.Users {
		u := domain.User{
			ID:           uuid.New().String(),
			Email:        su.Email,
			PasswordHash: repo.HashSecret(su.Password),
			Role:         su.Role,
			OrgID:        &org.ID,
			CreatedAt:    now,
		}
		if err := r.InsertUser(ctx, u); err != nil {
			return nil, fmt.Errorf("insert user %s: %w", su.Email, err)
		}
		users = append(users, u)
	}
	return users, nil
}

// ResolvePrincipal loads a user by email and returns its principal.
// Used by CLI commands acting on behalf of a user.
func ResolvePrincipal(ctx context.Context, r repo.Repo, email string) (domain.Principal, error) {
	if email == "" {
		return domain.Principal{}, errors.New("acting user email required; use --as")
	}
	u, err := r.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Principal{}, fmt.Errorf("user %s not found", email)
		}
		return domain.Principal{}, err
	}
	return u.Principal(), nil
}
