package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestVerifyPINByScan(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	tokens := newTestTokens(st)

	acme := provision(t, st, "Acme Fasteners", "4471")
	provision(t, st, "Borealis Timber", "2208")

	svc := &VerifyService{
		Store:        st,
		Tokens:       tokens,
		Threshold:    3,
		LockDuration: 15 * time.Minute,
	}

	t.Run("correct pin resolves the right supplier", func(t *testing.T) {
		res, err := svc.VerifyPIN(ctx, "4471", "")
		require.NoError(t, err)
		require.Equal(t, acme.Supplier.ID, res.Supplier.ID)
		require.Equal(t, "Acme Fasteners", res.Supplier.Name)
		require.NotEmpty(t, res.Tokens.AccessToken)
		require.NotEmpty(t, res.Tokens.RefreshToken)
	})

	t.Run("unknown pin is rejected", func(t *testing.T) {
		_, err := svc.VerifyPIN(ctx, "0000", "")
		require.ErrorIs(t, err, ErrInvalidPIN)
	})

	t.Run("similar pins resolve to distinct suppliers", func(t *testing.T) {
		one := provision(t, st, "Supplier One", "1111")
		two := provision(t, st, "Supplier Two", "2222")

		res, err := svc.VerifyPIN(ctx, "1111", "")
		require.NoError(t, err)
		require.Equal(t, one.Supplier.ID, res.Supplier.ID)

		res, err = svc.VerifyPIN(ctx, "2222", "")
		require.NoError(t, err)
		require.Equal(t, two.Supplier.ID, res.Supplier.ID)
	})

	t.Run("unattributed miss touches no counters", func(t *testing.T) {
		_, err := svc.VerifyPIN(ctx, "9999", "")
		require.ErrorIs(t, err, ErrInvalidPIN)

		cred, err := st.Credentials().GetCredential(ctx, acme.Supplier.ID)
		require.NoError(t, err)
		require.Zero(t, cred.FailureCount)
	})
}

func TestVerifyPINAttributedLockout(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	tokens := newTestTokens(st)

	res := provision(t, st, "Acme Fasteners", "4471")
	supplierID := res.Supplier.ID

	svc := &VerifyService{
		Store:        st,
		Tokens:       tokens,
		Threshold:    3,
		LockDuration: 15 * time.Minute,
	}

	t.Run("failures below threshold stay unlocked", func(t *testing.T) {
		for range 2 {
			_, err := svc.VerifyPIN(ctx, "0000", supplierID)
			require.ErrorIs(t, err, ErrInvalidPIN)
		}

		cred, err := st.Credentials().GetCredential(ctx, supplierID)
		require.NoError(t, err)
		require.Equal(t, 2, cred.FailureCount)
		require.False(t, cred.Locked(time.Now()))
	})

	t.Run("third failure trips the lock", func(t *testing.T) {
		_, err := svc.VerifyPIN(ctx, "0000", supplierID)
		require.ErrorIs(t, err, ErrInvalidPIN)

		cred, err := st.Credentials().GetCredential(ctx, supplierID)
		require.NoError(t, err)
		require.Equal(t, 3, cred.FailureCount)
		require.True(t, cred.Locked(time.Now()))
	})

	t.Run("locked account rejects the correct pin", func(t *testing.T) {
		_, err := svc.VerifyPIN(ctx, "4471", supplierID)
		require.ErrorIs(t, err, ErrLocked)

		// Scan path sees the same lock.
		_, err = svc.VerifyPIN(ctx, "4471", "")
		require.ErrorIs(t, err, ErrLocked)
	})

	t.Run("expired lock clears on next success", func(t *testing.T) {
		past := time.Now().Add(-time.Minute)
		other := provision(t, st, "Expired Lock Co", "8642")
		_, err := st.Credentials().RecordFailure(ctx, other.Supplier.ID, 1, past)
		require.NoError(t, err)

		res, err := svc.VerifyPIN(ctx, "8642", other.Supplier.ID)
		require.NoError(t, err)
		require.Equal(t, other.Supplier.ID, res.Supplier.ID)

		cred, err := st.Credentials().GetCredential(ctx, other.Supplier.ID)
		require.NoError(t, err)
		require.Zero(t, cred.FailureCount)
		require.Nil(t, cred.LockedUntil)
	})

	t.Run("success resets the counter", func(t *testing.T) {
		fresh := provision(t, st, "Fresh Supplies", "7350")

		_, err := svc.VerifyPIN(ctx, "0000", fresh.Supplier.ID)
		require.ErrorIs(t, err, ErrInvalidPIN)

		_, err = svc.VerifyPIN(ctx, "7350", fresh.Supplier.ID)
		require.NoError(t, err)

		cred, err := st.Credentials().GetCredential(ctx, fresh.Supplier.ID)
		require.NoError(t, err)
		require.Zero(t, cred.FailureCount)
	})

	t.Run("unknown supplier hint looks like a wrong pin", func(t *testing.T) {
		_, err := svc.VerifyPIN(ctx, "4471", "01ARZ3NDEKTSV4RRFFQ69G5FAV")
		require.ErrorIs(t, err, ErrInvalidPIN)
	})
}

func TestVerifyPINRelocksAfterExpiry(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	tokens := newTestTokens(st)

	res := provision(t, st, "Acme Fasteners", "4471")
	supplierID := res.Supplier.ID

	svc := &VerifyService{
		Store:        st,
		Tokens:       tokens,
		Threshold:    3,
		LockDuration: 40 * time.Millisecond,
	}

	// Trip the lock.
	for range 3 {
		_, err := svc.VerifyPIN(ctx, "0000", supplierID)
		require.ErrorIs(t, err, ErrInvalidPIN)
	}
	_, err := svc.VerifyPIN(ctx, "4471", supplierID)
	require.ErrorIs(t, err, ErrLocked)

	// Let the lock lapse. The first failure afterwards starts a fresh
	// window rather than riding the old counter.
	time.Sleep(60 * time.Millisecond)

	_, err = svc.VerifyPIN(ctx, "0000", supplierID)
	require.ErrorIs(t, err, ErrInvalidPIN)

	cred, err := st.Credentials().GetCredential(ctx, supplierID)
	require.NoError(t, err)
	require.Equal(t, 1, cred.FailureCount)
	require.False(t, cred.Locked(time.Now()))

	// Two more wrong attempts and the lock must re-arm.
	for range 2 {
		_, err := svc.VerifyPIN(ctx, "0000", supplierID)
		require.ErrorIs(t, err, ErrInvalidPIN)
	}

	cred, err = st.Credentials().GetCredential(ctx, supplierID)
	require.NoError(t, err)
	require.Equal(t, 3, cred.FailureCount)
	require.True(t, cred.Locked(time.Now()))

	_, err = svc.VerifyPIN(ctx, "4471", supplierID)
	require.ErrorIs(t, err, ErrLocked)
}

func TestVerifyPINConcurrentFailures(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	tokens := newTestTokens(st)

	res := provision(t, st, "Concurrent Co", "5050")
	supplierID := res.Supplier.ID

	svc := &VerifyService{
		Store:        st,
		Tokens:       tokens,
		Threshold:    3,
		LockDuration: 15 * time.Minute,
	}

	const attempts = 8

	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.VerifyPIN(ctx, "0000", supplierID)
		}()
	}
	wg.Wait()

	// Every attempt resolves to invalid-pin or locked; none errors out.
	for _, err := range errs {
		if !errors.Is(err, ErrInvalidPIN) && !errors.Is(err, ErrLocked) {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// All attempts that recorded a failure are counted exactly once, and
	// the credential ends up locked.
	cred, err := st.Credentials().GetCredential(ctx, supplierID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, cred.FailureCount, 3)
	require.LessOrEqual(t, cred.FailureCount, attempts)
	require.True(t, cred.Locked(time.Now()))
}
