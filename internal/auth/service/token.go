package service

import (
	"context"
	"errors"
	"time"

	"github.com/quayside/supplygate/internal/auth/domain"
	"github.com/quayside/supplygate/internal/auth/store"
	"github.com/quayside/supplygate/pkg/jwtx"
	"github.com/quayside/supplygate/pkg/slogx"
)

// TokenService mints and refreshes the bearer token pairs consumed by every
// protected endpoint. Lifetimes come from configuration exactly once; there
// is no second default set anywhere in the process.
type TokenService struct {
	Signer     *jwtx.Signer
	Verifier   *jwtx.Verifier
	Store      store.Store
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// IssuePair mints an access+refresh pair for a verified account.
func (s *TokenService) IssuePair(subject, name string) (*domain.TokenPair, error) {
	now := time.Now()

	access, err := s.Signer.Sign(jwtx.NewClaims(subject, jwtx.KindAccess, name, s.AccessTTL, s.Issuer, now))
	if err != nil {
		return nil, err
	}

	refresh, err := s.Signer.Sign(jwtx.NewClaims(subject, jwtx.KindRefresh, name, s.RefreshTTL, s.Issuer, now))
	if err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    s.AccessTTL,
	}, nil
}

// Refresh validates a refresh token (kind enforced, so an access token can
// never be replayed here) and mints a new pair. The account must still exist
// and must not be locked.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	l := slogx.FromContext(ctx)

	claims, err := s.Verifier.Verify(refreshToken, jwtx.KindRefresh)
	if err != nil {
		l.Info("refresh token rejected", "err", err)
		return nil, ErrInvalidRefresh
	}

	now := time.Now()

	// The subject is either a supplier (PIN flow) or a user (password flow).
	cred, err := s.Store.Credentials().GetCredential(ctx, claims.Subject)
	switch {
	case err == nil:
		if cred.Locked(now) {
			return nil, ErrLocked
		}
		supplier, err := s.Store.Suppliers().GetSupplierByID(ctx, claims.Subject)
		if err != nil {
			return nil, ErrInvalidRefresh
		}
		return s.IssuePair(supplier.ID, supplier.Name)

	case errors.Is(err, store.ErrNotFound):
		u, err := s.Store.Users().GetUserByID(ctx, claims.Subject)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, ErrInvalidRefresh
			}
			return nil, err
		}
		if u.Locked(now) {
			return nil, ErrLocked
		}
		return s.IssuePair(u.ID, u.Username)

	default:
		return nil, err
	}
}
