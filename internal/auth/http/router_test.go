package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quayside/supplygate/internal/auth/service"
	"github.com/quayside/supplygate/internal/auth/store"
	"github.com/quayside/supplygate/internal/auth/store/drivers/sqlite"
	"github.com/quayside/supplygate/pkg/cryptox"
	"github.com/quayside/supplygate/pkg/jwtx"
	"github.com/quayside/supplygate/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	pepperPath := filepath.Join(os.TempDir(), "supplygate-http-test-pepper")
	cryptox.SetPepperPath(pepperPath)

	os.Remove(pepperPath)
	defer os.Remove(pepperPath)

	os.Exit(m.Run())
}

type testEnv struct {
	router *Router
	store  store.Store
	creds  *service.CredentialService
	users  *service.UserService

	// reqSeq gives every test request a distinct client IP so the IP rate
	// limiter stays out of these tests. Limiter behaviour is covered in
	// pkg/httpx.
	reqSeq atomic.Int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	secret := []byte("router-test-secret")
	signer := jwtx.NewSigner(secret)
	verifier := jwtx.NewVerifier(secret, "test-issuer", jwtx.DefaultLeeway)

	tokens := &service.TokenService{
		Signer:     signer,
		Verifier:   verifier,
		Store:      st,
		Issuer:     "test-issuer",
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	}
	creds := &service.CredentialService{Store: st}
	users := &service.UserService{Store: st, Tokens: tokens, Threshold: 3, LockDuration: 15 * time.Minute}

	logger := slogx.New(slogx.Config{Service: "auth-test", Level: "error", Format: "text"})

	router := NewRouter(verifier, "test", st, logger)
	router.VerifyService = &service.VerifyService{
		Store:        st,
		Tokens:       tokens,
		Threshold:    3,
		LockDuration: 15 * time.Minute,
	}
	router.TokenService = tokens
	router.UserService = users
	router.CredentialService = creds
	router.ApplyRoutes()

	return &testEnv{router: router, store: st, creds: creds, users: users}
}

func (e *testEnv) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	n := e.reqSeq.Add(1)
	req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", n%250))

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

// adminToken bootstraps an admin user and logs in, returning the access token.
func (e *testEnv) adminToken(t *testing.T) string {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, e.users.Bootstrap(ctx, "admin", "sturdy admin password"))
	res, err := e.users.Login(ctx, "admin", "sturdy admin password")
	require.NoError(t, err)
	return res.Tokens.AccessToken
}

func TestVerifyPINEndpoint(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.creds.ProvisionSupplier(context.Background(), "Acme Fasteners", "4471")
	require.NoError(t, err)

	t.Run("valid pin returns tokens and identity", func(t *testing.T) {
		rec := env.do(t, "POST", "/v1/verify-pin", "", map[string]string{"pin_code": "4471"})
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeBody[verifyPINResponse](t, rec)
		require.Equal(t, res.Supplier.ID, body.SupplierID)
		require.Equal(t, "Acme Fasteners", body.SupplierName)
		require.NotEmpty(t, body.AccessToken)
		require.NotEmpty(t, body.RefreshToken)
		require.Equal(t, "Bearer", body.TokenType)
		require.Equal(t, 60, body.ExpiresIn)
	})

	t.Run("wrong pin is a 401", func(t *testing.T) {
		rec := env.do(t, "POST", "/v1/verify-pin", "", map[string]string{"pin_code": "0000"})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing pin is a 400", func(t *testing.T) {
		rec := env.do(t, "POST", "/v1/verify-pin", "", map[string]string{})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body is a 400", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/v1/verify-pin", bytes.NewBufferString("{not json"))
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("locked account is a 403 even with the right pin", func(t *testing.T) {
		require.NoError(t, env.creds.SetLock(context.Background(), res.Supplier.ID, true))
		t.Cleanup(func() {
			require.NoError(t, env.creds.SetLock(context.Background(), res.Supplier.ID, false))
		})

		rec := env.do(t, "POST", "/v1/verify-pin", "", map[string]string{"pin_code": "4471"})
		require.Equal(t, http.StatusForbidden, rec.Code)

		body := decodeBody[map[string]string](t, rec)
		require.Equal(t, "account_locked", body["error"])
	})
}

func TestRefreshEndpoint(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.creds.ProvisionSupplier(context.Background(), "Acme Fasteners", "4471")
	require.NoError(t, err)

	rec := env.do(t, "POST", "/v1/verify-pin", "", map[string]string{"pin_code": "4471"})
	require.Equal(t, http.StatusOK, rec.Code)
	pair := decodeBody[verifyPINResponse](t, rec)

	t.Run("refresh token yields a new pair", func(t *testing.T) {
		rec := env.do(t, "POST", "/v1/token/refresh", "", map[string]string{"refresh_token": pair.RefreshToken})
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeBody[tokenResponse](t, rec)
		require.NotEmpty(t, body.AccessToken)
	})

	t.Run("access token is rejected", func(t *testing.T) {
		rec := env.do(t, "POST", "/v1/token/refresh", "", map[string]string{"refresh_token": pair.AccessToken})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing token is a 400", func(t *testing.T) {
		rec := env.do(t, "POST", "/v1/token/refresh", "", map[string]string{})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestWhoamiEndpoint(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.creds.ProvisionSupplier(context.Background(), "Acme Fasteners", "4471")
	require.NoError(t, err)

	rec := env.do(t, "POST", "/v1/verify-pin", "", map[string]string{"pin_code": "4471"})
	require.Equal(t, http.StatusOK, rec.Code)
	pair := decodeBody[verifyPINResponse](t, rec)

	t.Run("access token identifies the supplier", func(t *testing.T) {
		rec := env.do(t, "GET", "/v1/whoami", pair.AccessToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeBody[whoamiResponse](t, rec)
		require.Equal(t, res.Supplier.ID, body.AccountID)
		require.Equal(t, "Acme Fasteners", body.Name)
	})

	t.Run("no token is a 401", func(t *testing.T) {
		rec := env.do(t, "GET", "/v1/whoami", "", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token")
	})

	t.Run("refresh token is not an access token", func(t *testing.T) {
		rec := env.do(t, "GET", "/v1/whoami", pair.RefreshToken, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestSupplierAdminEndpoints(t *testing.T) {
	env := newTestEnv(t)
	admin := env.adminToken(t)

	var supplierID string

	t.Run("create supplier returns the pin once", func(t *testing.T) {
		rec := env.do(t, "POST", "/v1/suppliers", admin, map[string]string{"name": "Borealis Timber", "pin_code": "2208"})
		require.Equal(t, http.StatusCreated, rec.Code)

		body := decodeBody[createSupplierResponse](t, rec)
		require.NotEmpty(t, body.SupplierID)
		require.Equal(t, "2208", body.PINCode)
		supplierID = body.SupplierID
	})

	t.Run("duplicate pin is a 409", func(t *testing.T) {
		rec := env.do(t, "POST", "/v1/suppliers", admin, map[string]string{"name": "Copycat Co", "pin_code": "2208"})
		require.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("non-numeric pin is a 400", func(t *testing.T) {
		rec := env.do(t, "POST", "/v1/suppliers", admin, map[string]string{"name": "Bad Pin Co", "pin_code": "12ab"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("generated pin when omitted", func(t *testing.T) {
		rec := env.do(t, "POST", "/v1/suppliers", admin, map[string]string{"name": "Generated Co"})
		require.Equal(t, http.StatusCreated, rec.Code)

		body := decodeBody[createSupplierResponse](t, rec)
		require.Len(t, body.PINCode, service.DefaultPINLength)
	})

	t.Run("reset pin", func(t *testing.T) {
		rec := env.do(t, "PUT", "/v1/suppliers/"+supplierID+"/pin", admin, map[string]string{"pin_code": "9913"})
		require.Equal(t, http.StatusOK, rec.Code)

		verify := env.do(t, "POST", "/v1/verify-pin", "", map[string]string{"pin_code": "9913"})
		require.Equal(t, http.StatusOK, verify.Code)
	})

	t.Run("lock and unlock", func(t *testing.T) {
		rec := env.do(t, "POST", "/v1/suppliers/"+supplierID+"/lock", admin, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		verify := env.do(t, "POST", "/v1/verify-pin", "", map[string]string{"pin_code": "9913"})
		require.Equal(t, http.StatusForbidden, verify.Code)

		rec = env.do(t, "POST", "/v1/suppliers/"+supplierID+"/unlock", admin, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		verify = env.do(t, "POST", "/v1/verify-pin", "", map[string]string{"pin_code": "9913"})
		require.Equal(t, http.StatusOK, verify.Code)
	})

	t.Run("unknown supplier is a 404", func(t *testing.T) {
		rec := env.do(t, "POST", "/v1/suppliers/01ARZ3NDEKTSV4RRFFQ69G5FAV/lock", admin, nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("supplier token cannot manage suppliers", func(t *testing.T) {
		verify := env.do(t, "POST", "/v1/verify-pin", "", map[string]string{"pin_code": "9913"})
		require.Equal(t, http.StatusOK, verify.Code)
		pair := decodeBody[verifyPINResponse](t, verify)

		rec := env.do(t, "POST", "/v1/suppliers", pair.AccessToken, map[string]string{"name": "Sneaky Co"})
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("anonymous cannot manage suppliers", func(t *testing.T) {
		rec := env.do(t, "POST", "/v1/suppliers", "", map[string]string{"name": "Anon Co"})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestLoginEndpoint(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.users.Bootstrap(context.Background(), "admin", "sturdy admin password"))

	t.Run("valid credentials", func(t *testing.T) {
		rec := env.do(t, "POST", "/v1/user/login", "", map[string]string{"username": "admin", "password": "sturdy admin password"})
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeBody[loginResponse](t, rec)
		require.Equal(t, "admin", body.Username)
		require.True(t, body.Admin)
		require.NotEmpty(t, body.AccessToken)
	})

	t.Run("wrong password is a 401", func(t *testing.T) {
		rec := env.do(t, "POST", "/v1/user/login", "", map[string]string{"username": "admin", "password": "nope"})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing fields is a 400", func(t *testing.T) {
		rec := env.do(t, "POST", "/v1/user/login", "", map[string]string{"username": "admin"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "GET", "/livez", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[healthResponse](t, rec)
	require.Equal(t, "ok", body.Status)

	rec = env.do(t, "GET", "/readyz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	ready := decodeBody[healthResponse](t, rec)
	require.Equal(t, "ok", ready.Status)
	require.Equal(t, "ok", ready.Checks.Database)
}
