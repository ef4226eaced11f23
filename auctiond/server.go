// Package auctiond implements the auction platform daemon: an in-process
// host ledger running the auction programs, a wallet keystore naming the
// acting accounts, an auction index, and an HTTP surface (plus an optional
// vsock surface) exposing the whole lifecycle. One registrar is deployed at
// startup under the daemon's operator account; every auction the daemon
// creates goes through it.
package auctiond

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oysterpack/oysterpack-smart/api"
	"github.com/oysterpack/oysterpack-smart/client"
	"github.com/oysterpack/oysterpack-smart/data"
	"github.com/oysterpack/oysterpack-smart/ledger"
	"github.com/oysterpack/oysterpack-smart/wallet"
)

// operatorAccount is the keystore account the daemon runs the registrar
// under. It is created on first start and reused afterwards.
const operatorAccount = "operator"

// Server wires the ledger, keystore, index store, and registrar together
// behind the HTTP and vsock surfaces.
type Server struct {
	cfg        Config
	passphrase string

	ledger   *ledger.Ledger
	store    data.Store
	keys     *wallet.Keystore
	operator wallet.Account
	manager  *client.ManagerClient

	metrics *serverMetrics
	limiter *clientLimiter
	router  chi.Router
}

// NewServer boots a daemon: opens the keystore, unlocks or creates the
// operator account, deploys the registrar, and opens the index store.
func NewServer(cfg Config) (*Server, error) {
	return newServer(cfg)
}

// newServer takes ledger options so tests can inject a clock and drive the
// bidding window.
func newServer(cfg Config, lopts ...ledger.Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	passphrase := os.Getenv(cfg.WalletPassphraseEnv)
	if passphrase == "" {
		return nil, fmt.Errorf("wallet passphrase environment variable %s is not set", cfg.WalletPassphraseEnv)
	}

	keys, err := wallet.OpenKeystore(cfg.WalletDir)
	if err != nil {
		return nil, err
	}

	operator, err := keys.Unlock(operatorAccount, passphrase)
	if errors.Is(err, ledger.ErrNotFound) {
		var key ed25519.PrivateKey
		if _, key, err = ed25519.GenerateKey(nil); err != nil {
			return nil, fmt.Errorf("generate operator key: %w", err)
		}
		operator, err = keys.Create(operatorAccount, key, passphrase)
	}
	if err != nil {
		return nil, fmt.Errorf("unlock operator account: %w", err)
	}

	l := ledger.New(lopts...)
	l.Fund(operator.Address, ledger.MicroAlgos(cfg.FaucetAmount))

	manager, err := client.DeployManager(l, operator.Address)
	if err != nil {
		return nil, fmt.Errorf("deploy auction registrar: %w", err)
	}
	log.Printf("INFO: auction registrar deployed at app %d by operator %s", manager.AppID(), operator.Address)

	var store data.Store
	if cfg.PostgresDSN != "" {
		store, err = data.NewPostgresStore(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres index: %w", err)
		}
		log.Printf("INFO: auction index backed by postgres")
	} else {
		store = data.NewInMemoryStore()
		log.Printf("INFO: auction index backed by memory (no postgres DSN configured)")
	}

	s := &Server{
		cfg:        cfg,
		passphrase: passphrase,
		ledger:     l,
		store:      store,
		keys:       keys,
		operator:   operator,
		manager:    manager,
		metrics:    newServerMetrics(),
		limiter:    newClientLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the daemon's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the index store.
func (s *Server) Close() error {
	return s.store.Close()
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(s.rateLimit)
	r.Use(s.instrument)

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Route("/accounts", func(r chi.Router) {
			r.Post("/", s.handleCreateAccount)
			r.Get("/", s.handleListAccounts)
			r.Post("/fund", s.handleFundAccount)
		})

		r.Route("/assets", func(r chi.Router) {
			r.Post("/", s.handleCreateAsset)
			r.Post("/optin", s.handleOptInAsset)
		})

		r.Route("/manager", func(r chi.Router) {
			r.Get("/fees", s.handleCreationFees)
			r.Get("/treasury", s.handleTreasury)
			r.Post("/withdraw", s.handleWithdrawTreasury)
		})

		r.Route("/auctions", func(r chi.Router) {
			r.Post("/", s.handleCreateAuction)
			r.Get("/", s.handleSearchAuctions)

			r.Route("/{appID}", func(r chi.Router) {
				r.Get("/", s.handleGetAuction)
				r.Delete("/", s.handleDeleteAuction)
				r.Post("/bid-asset", s.handleSetBidAsset)
				r.Post("/optin", s.handleAuctionOptIn)
				r.Post("/optout", s.handleAuctionOptOut)
				r.Post("/deposit", s.handleDeposit)
				r.Post("/withdraw", s.handleWithdrawAsset)
				r.Post("/commit", s.handleCommit)
				r.Post("/bid", s.handleBid)
				r.Post("/accept-bid", s.handleAcceptBid)
				r.Post("/cancel", s.handleCancel)
				r.Post("/finalize", s.handleFinalize)
			})
		})
	})

	return r
}

type ctxKey int

const requestIDKey ctxKey = iota

// requestID tags every request with an ID, honoring one supplied by the
// caller.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return "-"
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Printf("INFO: [%s] %s %s %d %dB %s",
			requestIDFrom(r.Context()), r.Method, r.URL.Path, ww.Status(), ww.BytesWritten(), time.Since(start))
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(r.RemoteAddr, time.Now()) {
			log.Printf("WARNING: [%s] rate limit exceeded for %s", requestIDFrom(r.Context()), r.RemoteAddr)
			api.WriteJSON(w, http.StatusTooManyRequests, api.ErrorResponse{
				Kind:  "rate_limited",
				Error: "request rate limit exceeded",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.requests.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()
		s.metrics.duration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
