package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUserLogin(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := &UserService{
		Store:        st,
		Tokens:       newTestTokens(st),
		Threshold:    3,
		LockDuration: 15 * time.Minute,
	}

	require.NoError(t, svc.Bootstrap(ctx, "admin", "hunter2hunter2"))

	t.Run("correct password issues tokens", func(t *testing.T) {
		res, err := svc.Login(ctx, "admin", "hunter2hunter2")
		require.NoError(t, err)
		require.Equal(t, "admin", res.User.Username)
		require.True(t, res.User.Admin)
		require.NotEmpty(t, res.Tokens.AccessToken)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Login(ctx, "admin", "wrong")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown username is indistinguishable", func(t *testing.T) {
		_, err := svc.Login(ctx, "nobody", "hunter2hunter2")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("repeated failures lock the account", func(t *testing.T) {
		// One failure already recorded above.
		for range 2 {
			_, err := svc.Login(ctx, "admin", "wrong")
			require.ErrorIs(t, err, ErrInvalidCredentials)
		}

		_, err := svc.Login(ctx, "admin", "hunter2hunter2")
		require.ErrorIs(t, err, ErrLocked)
	})
}

func TestUserLoginRelocksAfterExpiry(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := &UserService{
		Store:        st,
		Tokens:       newTestTokens(st),
		Threshold:    3,
		LockDuration: 40 * time.Millisecond,
	}

	require.NoError(t, svc.Bootstrap(ctx, "admin", "hunter2hunter2"))

	// Trip the lock.
	for range 3 {
		_, err := svc.Login(ctx, "admin", "wrong")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, err := svc.Login(ctx, "admin", "hunter2hunter2")
	require.ErrorIs(t, err, ErrLocked)

	time.Sleep(60 * time.Millisecond)

	// Fresh window after expiry: one failure does not lock.
	_, err = svc.Login(ctx, "admin", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	res, err := svc.Login(ctx, "admin", "hunter2hunter2")
	require.NoError(t, err)
	require.Equal(t, "admin", res.User.Username)

	// And the lock re-arms after threshold failures in the new window.
	for range 3 {
		_, err := svc.Login(ctx, "admin", "wrong")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, err = svc.Login(ctx, "admin", "hunter2hunter2")
	require.ErrorIs(t, err, ErrLocked)
}

func TestBootstrap(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := &UserService{Store: st, Tokens: newTestTokens(st), Threshold: 3, LockDuration: 15 * time.Minute}

	t.Run("no-op without credentials configured", func(t *testing.T) {
		require.NoError(t, svc.Bootstrap(ctx, "", ""))

		empty, err := st.Users().IsEmpty(ctx)
		require.NoError(t, err)
		require.True(t, empty)
	})

	t.Run("seeds the first admin", func(t *testing.T) {
		require.NoError(t, svc.Bootstrap(ctx, "admin", "hunter2hunter2"))

		u, err := st.Users().GetUserByUsername(ctx, "admin")
		require.NoError(t, err)
		require.True(t, u.Admin)
	})

	t.Run("no-op once users exist", func(t *testing.T) {
		require.NoError(t, svc.Bootstrap(ctx, "second", "another password"))

		_, err := st.Users().GetUserByUsername(ctx, "second")
		require.Error(t, err)
	})
}
