package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/quayside/supplygate/internal/auth/service"
	"github.com/quayside/supplygate/internal/auth/store"
	"github.com/quayside/supplygate/pkg/httpx"
	"github.com/quayside/supplygate/pkg/jwtx"
	"github.com/quayside/supplygate/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier     *jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store             store.Store
	VerifyService     *service.VerifyService
	TokenService      *service.TokenService
	UserService       *service.UserService
	CredentialService *service.CredentialService
}

func NewRouter(
	verifier *jwtx.Verifier,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerVerification()
	r.registerTokens()
	r.registerUsers()
	r.registerSuppliers()
	r.registerSystem()
}

// ServeHTTP implements http.Handler and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerVerification() {
	h := &VerifyPINHandler{VerifyService: r.VerifyService}

	// Strict limit: this is the brute-force surface. Unattributed attempts
	// never touch failure counters, so the IP limit is the only brake on
	// PIN guessing without a supplier hint.
	r.Mux.Handle("POST /v1/verify-pin",
		httpx.Chain(h,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerTokens() {
	h := &RefreshHandler{TokenService: r.TokenService}

	r.Mux.Handle("POST /v1/token/refresh",
		httpx.Chain(h,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerUsers() {
	login := &LoginHandler{UserService: r.UserService}
	r.Mux.Handle("POST /v1/user/login",
		httpx.Chain(login,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	whoami := &WhoamiHandler{}
	r.Mux.Handle("GET /v1/whoami",
		httpx.Chain(whoami,
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByAccount(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerSuppliers() {
	h := &SuppliersHandler{
		CredentialService: r.CredentialService,
		UserService:       r.UserService,
	}

	// Admin-only management surface.
	secured := func(handler http.Handler) http.Handler {
		return httpx.Chain(handler,
			httpx.AuthnMiddleware(r.verifier),
			RequireAdmin(r.store),
			httpx.RateLimitByAccount(httpx.ModerateLimit),
		)
	}

	r.Mux.Handle("POST /v1/suppliers", secured(http.HandlerFunc(h.HandleCreate)))
	r.Mux.Handle("PUT /v1/suppliers/{id}/pin", secured(http.HandlerFunc(h.HandleResetPIN)))
	r.Mux.Handle("POST /v1/suppliers/{id}/lock", secured(http.HandlerFunc(h.HandleLock)))
	r.Mux.Handle("POST /v1/suppliers/{id}/unlock", secured(http.HandlerFunc(h.HandleUnlock)))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store))
}
