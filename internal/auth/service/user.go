package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quayside/supplygate/internal/auth/domain"
	"github.com/quayside/supplygate/internal/auth/store"
	"github.com/quayside/supplygate/pkg/cryptox"
	"github.com/quayside/supplygate/pkg/idx"
	"github.com/quayside/supplygate/pkg/slogx"
)

// UserService handles staff username/password authentication. Staff logins
// share the lockout policy with supplier credentials but their attempts are
// always attributable, so every mismatch counts.
type UserService struct {
	Store  store.Store
	Tokens *TokenService

	Threshold    int
	LockDuration time.Duration
}

// LoggedInUser is a successful login outcome.
type LoggedInUser struct {
	User   domain.User
	Tokens *domain.TokenPair
}

// Login verifies a username/password pair and issues tokens. Unknown
// usernames and wrong passwords both return ErrInvalidCredentials. A locked
// account fails with ErrLocked even on a correct password.
func (s *UserService) Login(ctx context.Context, username, password string) (*LoggedInUser, error) {
	l := slogx.FromContext(ctx)

	user, err := s.Store.Users().GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Burn a hash comparison anyway so unknown usernames cost
			// the same as wrong passwords.
			_ = cryptox.Verify(password, dummyHash)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := cryptox.Verify(password, user.PasswordHash); err != nil {
		if !errors.Is(err, cryptox.ErrMismatch) {
			l.Error("user hash unverifiable", "user_id", user.ID, "err", err)
		}
		var updated domain.User
		recErr := withConflictRetry(ctx, func() error {
			var err error
			updated, err = s.Store.Users().RecordFailure(
				ctx, user.ID, s.Threshold, time.Now().Add(s.LockDuration))
			return err
		})
		if recErr != nil {
			return nil, fmt.Errorf("recording login failure: %w", recErr)
		}
		if updated.LockedUntil != nil && updated.FailureCount == s.Threshold {
			l.Warn("user locked after repeated failures",
				"user_id", user.ID, "failure_count", updated.FailureCount)
		}
		return nil, ErrInvalidCredentials
	}

	if user.Locked(time.Now()) {
		l.Info("login rejected: account locked", "user_id", user.ID)
		return nil, ErrLocked
	}

	if err := withConflictRetry(ctx, func() error {
		return s.Store.Users().RecordSuccess(ctx, user.ID)
	}); err != nil {
		return nil, fmt.Errorf("recording login success: %w", err)
	}

	tokens, err := s.Tokens.IssuePair(user.ID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("issuing tokens: %w", err)
	}

	l.Info("user logged in", "user_id", user.ID)
	return &LoggedInUser{User: user, Tokens: tokens}, nil
}

// Bootstrap seeds an initial admin user when the users table is empty.
// No-op when users already exist or when either value is unset, so it is
// safe to call on every startup.
func (s *UserService) Bootstrap(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return nil
	}

	empty, err := s.Store.Users().IsEmpty(ctx)
	if err != nil {
		return fmt.Errorf("checking users table: %w", err)
	}
	if !empty {
		return nil
	}

	hash, err := cryptox.Hash(password)
	if err != nil {
		return fmt.Errorf("hashing bootstrap password: %w", err)
	}

	now := time.Now()
	user := domain.User{
		ID:           idx.New().String(),
		Username:     username,
		PasswordHash: hash,
		Admin:        true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Store.Users().CreateUser(ctx, user); err != nil {
		// Lost a race with another instance bootstrapping; fine.
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil
		}
		return fmt.Errorf("creating bootstrap user: %w", err)
	}

	slogx.FromContext(ctx).Info("bootstrap admin created", "username", username)
	return nil
}

// dummyHash is a valid argon2id hash of random data, used to equalize the
// timing of unknown-username and wrong-password failures.
const dummyHash = "$argon2id$v=19$m=19456,t=2,p=1$AAAAAAAAAAAAAAAAAAAAAA$y8RDwb6cY8nW1ulstJGXTmM3EsUvYDAG6GyGqVJxUys"
