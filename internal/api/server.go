// Package api exposes the ledger operations over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"dynamic-pricing-ledger/internal/auth"
	"dynamic-pricing-ledger/internal/domain"
	"dynamic-pricing-ledger/internal/observability"
	"dynamic-pricing-ledger/internal/protocol"
)

// HeaderRequestID is echoed on every response.
const HeaderRequestID = "X-Request-ID"

// Settlement exposes the transfer outbox to settlers.
type Settlement interface {
	Pending(ctx context.Context) ([]*domain.Transfer, error)
	Get(ctx context.Context, transferID string) (*domain.Transfer, error)
	Resolve(ctx context.Context, transferID string, settled bool) (*domain.Transfer, error)
}

// Chain reports progress of the chain that settles native transfers.
type Chain interface {
	GetSlot(ctx context.Context) (int64, error)
	GetBalance(ctx context.Context, address string) (uint64, error)
}

// Config holds the dependencies of the HTTP surface.
type Config struct {
	Protocol   *protocol.Protocol // required
	Verifier   *auth.Verifier     // required
	Settlement Settlement         // optional; transfer routes are not mounted when nil
	Chain      Chain              // optional; reported on /status
	Logger     *log.Logger
	Clock      func() time.Time
}

const chainStatusTimeout = 3 * time.Second

// Server serves the ledger API.
type Server struct {
	protocol   *protocol.Protocol
	verifier   *auth.Verifier
	settlement Settlement
	chain      Chain
	logger     *log.Logger
	now        func() time.Time
	started    time.Time
	router     chi.Router
}

// New builds the router.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	s := &Server{
		protocol:   cfg.Protocol,
		verifier:   cfg.Verifier,
		settlement: cfg.Settlement,
		chain:      cfg.Chain,
		logger:     cfg.Logger,
		now:        cfg.Clock,
		started:    cfg.Clock(),
	}
	s.router = s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", observability.Handler())
	r.Get("/status", s.handleStatus)

	r.Route("/v1", func(r chi.Router) {
		// Reads
		r.Get("/price", s.handle("price", s.getPrice))
		r.Get("/fees", s.handle("fee_for", s.getFee))
		r.Get("/positions", s.handle("positions", s.listPositions))
		r.Get("/positions/{owner}", s.handle("position", s.getPosition))
		r.Get("/governance/proposal", s.handle("proposal", s.getProposal))
		r.Get("/governance/balances/{owner}", s.handle("governance_balance", s.getGovernanceBalance))
		r.Get("/insurance", s.handle("insurance_pool", s.getInsurancePool))
		r.Get("/referrals/{user}", s.handle("profile", s.getProfile))
		r.Get("/events", s.handle("events", s.listEvents))

		// Signed operations
		r.Group(func(r chi.Router) {
			r.Use(s.signed)

			r.Post("/price/initialize", s.handle("initialize", s.initialize))
			r.Post("/price/set", s.handle("set_price", s.setPrice))
			r.Post("/price/oracle", s.handle("import_oracle_price", s.importOraclePrice))
			r.Post("/price/adjust", s.handle("adjust_by_supply_demand", s.adjustPrice))
			r.Post("/price/smooth", s.handle("smooth", s.smooth))
			r.Post("/buy", s.handle("record_buy", s.recordBuy))

			r.Post("/liquidity/contribute", s.handle("contribute", s.contribute))
			r.Post("/liquidity/claim", s.handle("vest_and_claim", s.vestAndClaim))
			r.Post("/liquidity/slash", s.handle("slash_inactive", s.slashInactive))

			r.Post("/revenue/distribute", s.handle("distribute", s.distribute))
			r.Post("/revenue/distribute-all", s.handle("distribute_all", s.distributeAll))

			r.Post("/governance/tokens", s.handle("distribute_governance_tokens", s.distributeGovernanceTokens))
			r.Post("/governance/propose", s.handle("propose_fee_change", s.proposeFeeChange))
			r.Post("/governance/vote", s.handle("vote", s.vote))

			r.Post("/insurance/initialize", s.handle("initialize_insurance_pool", s.initializeInsurance))
			r.Post("/insurance/contribute", s.handle("contribute_insurance", s.contributeInsurance))
			r.Post("/insurance/claim", s.handle("claim_insurance", s.claimInsurance))

			r.Post("/referrals/register", s.handle("register_referral", s.registerReferral))
			r.Post("/referrals/reward", s.handle("reward_referrer", s.rewardReferrer))
		})

		if s.settlement != nil {
			r.Get("/transfers/pending", s.handle("pending_transfers", s.pendingTransfers))
			r.Get("/transfers/{id}", s.handle("transfer", s.getTransfer))
			r.With(s.signed).Post("/transfers/{id}/resolve", s.handle("resolve_transfer", s.resolveTransfer))
		}
	})

	return r
}

// handlerFunc returns the response value or an error to map.
type handlerFunc func(r *http.Request) (any, error)

// handle wraps fn with metrics and JSON encoding.
func (s *Server) handle(op string, fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp, err := fn(r)
		observability.RecordOperation(op, codeFor(err), time.Since(start).Seconds())
		if err != nil {
			s.writeError(w, r, op, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// signed authenticates the request and stores the signer in its context.
func (s *Server) signed(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signer, err := s.verifier.Verify(r)
		if err != nil {
			s.writeError(w, r, "auth", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithSigner(r.Context(), signer)))
	})
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Printf("%s %s (%s): %v", r.Method, r.URL.Path, op, err)
	}
	writeJSON(w, status, ErrorResponse{Error: ErrorBody{Code: codeFor(err), Message: err.Error()}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body into v. An empty body leaves v at its zero value.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func identityParam(r *http.Request, name string) (domain.Identity, error) {
	id, err := domain.ParseIdentity(chi.URLParam(r, name))
	if err != nil {
		return domain.ZeroIdentity, fmt.Errorf("%w: %s: %v", errBadRequest, name, err)
	}
	return id, nil
}

func uintQuery(r *http.Request, name string, required bool) (uint64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		if required {
			return 0, fmt.Errorf("%w: missing %s", errBadRequest, name)
		}
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", errBadRequest, name, err)
	}
	return v, nil
}

func intQuery(r *http.Request, name string, fallback int64) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", errBadRequest, name, err)
	}
	return v, nil
}

// handleStatus returns server status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:     "running",
		Asset:      s.protocol.Params().Asset,
		Uptime:     s.now().Sub(s.started).Truncate(time.Second).String(),
		Started:    s.started.Unix(),
		Settlement: "direct",
	}
	if s.settlement != nil {
		resp.Settlement = "outbox"
	}
	if price, err := s.protocol.Price(r.Context()); err == nil {
		resp.Price = price
	} else if !errors.Is(err, protocol.ErrNotInitialized) {
		s.writeError(w, r, "status", err)
		return
	}
	if pool, err := s.protocol.InsurancePool(r.Context()); err == nil {
		resp.Insurance = pool
	} else if !errors.Is(err, protocol.ErrPoolNotFound) {
		s.writeError(w, r, "status", err)
		return
	}
	if s.chain != nil {
		resp.Chain = s.chainStatus(r.Context())
		if resp.Chain.Error != "" {
			resp.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// chainStatus reads the current slot and the treasury's lamports. An RPC
// failure is reported in the body rather than failing /status.
func (s *Server) chainStatus(ctx context.Context) *ChainStatus {
	ctx, cancel := context.WithTimeout(ctx, chainStatusTimeout)
	defer cancel()

	status := &ChainStatus{}
	slot, err := s.chain.GetSlot(ctx)
	if err != nil {
		s.logger.Printf("status: chain slot: %v", err)
		status.Error = err.Error()
		return status
	}
	status.Slot = slot

	treasury := s.protocol.Params().Treasury
	if treasury.IsZero() {
		return status
	}
	lamports, err := s.chain.GetBalance(ctx, treasury.String())
	if err != nil {
		s.logger.Printf("status: treasury balance: %v", err)
		status.Error = err.Error()
		return status
	}
	status.TreasuryLamports = &lamports
	return status
}
