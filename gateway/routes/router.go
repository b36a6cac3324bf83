package routes

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"p2pescrow/core/events"
	"p2pescrow/core/types"
	"p2pescrow/gateway/middleware"
	"p2pescrow/native/escrow"
	"p2pescrow/native/reputation"
	"p2pescrow/native/rewards"
	"p2pescrow/storage/eventlog"
)

// Rate limit keys looked up in the limiter configuration.
const (
	RateLimitMutations = "mutations"
	RateLimitReads     = "reads"
)

// AccountReader exposes committed account balances.
type AccountReader interface {
	Account(addr [20]byte) (*types.Account, error)
}

// EventQuerier lists persisted engine events.
type EventQuerier interface {
	List(ctx context.Context, f eventlog.Filter) ([]eventlog.Record, error)
}

type Config struct {
	Escrow        *escrow.Engine
	Reputation    *reputation.Engine
	Rewards       *rewards.Engine
	Accounts      AccountReader
	Stream        *events.Broadcaster
	EventLog      EventQuerier
	Authenticator *middleware.Authenticator
	AdminScope    string
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          middleware.CORSConfig
	// StreamOrigins lists the origin patterns accepted for websocket
	// upgrades. Empty allows only same-origin requests.
	StreamOrigins []string
	Logger        *slog.Logger
}

type api struct {
	escrow     *escrow.Engine
	reputation *reputation.Engine
	rewards    *rewards.Engine
	accounts   AccountReader
	stream     *events.Broadcaster
	eventLog   EventQuerier
	origins    []string
	logger     *slog.Logger
}

// New builds the gateway router. Reads are public; every mutation requires an
// authenticated caller and admin actions additionally require AdminScope.
func New(cfg Config) (http.Handler, error) {
	if cfg.Escrow == nil {
		return nil, errors.New("routes: escrow engine required")
	}
	if cfg.Authenticator == nil {
		return nil, errors.New("routes: authenticator required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	a := &api{
		escrow:     cfg.Escrow,
		reputation: cfg.Reputation,
		rewards:    cfg.Rewards,
		accounts:   cfg.Accounts,
		stream:     cfg.Stream,
		eventLog:   cfg.EventLog,
		origins:    cfg.StreamOrigins,
		logger:     logger.With(slog.String("component", "gateway.routes")),
	}

	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.CORS))

	obs := cfg.Observability
	observe := func(name string) func(http.Handler) http.Handler {
		if obs == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return obs.Middleware(name)
	}
	limit := func(key string) func(http.Handler) http.Handler {
		if cfg.RateLimiter == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return cfg.RateLimiter.Middleware(key)
	}
	authenticate := cfg.Authenticator.Middleware()
	admin := cfg.Authenticator.Middleware(cfg.AdminScope)
	if cfg.AdminScope == "" {
		admin = authenticate
	}

	r.With(observe("healthz")).Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/v1", func(v1 chi.Router) {
		v1.Group(func(read chi.Router) {
			read.Use(limit(RateLimitReads))
			read.With(observe("offers.get")).Get("/offers/{offerID}", a.getOffer)
			read.With(observe("disputes.get")).Get("/disputes/{disputeID}", a.getDispute)
			read.With(observe("disputes.vote")).Get("/disputes/{disputeID}/votes/{juror}", a.getVote)
			read.With(observe("accounts.get")).Get("/accounts/{address}", a.getAccount)
			read.With(observe("accounts.offers")).Get("/accounts/{address}/offers", a.listOffers)
			read.With(observe("accounts.disputes")).Get("/accounts/{address}/disputes", a.listJurorDisputes)
			read.With(observe("accounts.reputation")).Get("/accounts/{address}/reputation", a.getReputation)
			read.With(observe("accounts.rewards")).Get("/accounts/{address}/rewards", a.getRewards)
			read.With(observe("rewards.token")).Get("/rewards/token", a.getRewardToken)
			read.With(observe("events.list")).Get("/events", a.listEvents)
			// The websocket handler needs the raw writer for the upgrade.
			read.Get("/events/stream", a.streamEvents)
		})

		v1.Group(func(write chi.Router) {
			write.Use(authenticate)
			write.Use(limit(RateLimitMutations))
			write.With(observe("offers.create")).Post("/offers", a.createOffer)
			write.With(observe("offers.list")).Post("/offers/{offerID}/list", a.listOffer)
			write.With(observe("offers.accept")).Post("/offers/{offerID}/accept", a.acceptOffer)
			write.With(observe("offers.fiat_sent")).Post("/offers/{offerID}/fiat-sent", a.markFiatSent)
			write.With(observe("offers.fiat_received")).Post("/offers/{offerID}/fiat-received", a.confirmFiatReceipt)
			write.With(observe("offers.release")).Post("/offers/{offerID}/release", a.releaseFunds)
			write.With(observe("offers.cancel")).Post("/offers/{offerID}/cancel", a.cancelOffer)
			write.With(observe("disputes.open")).Post("/offers/{offerID}/dispute", a.openDispute)
			write.With(observe("disputes.evidence")).Post("/disputes/{disputeID}/evidence", a.submitEvidence)
			write.With(observe("disputes.vote")).Post("/disputes/{disputeID}/votes", a.castVote)
			write.With(observe("rewards.claim")).Post("/rewards/claim", a.claimRewards)
		})

		v1.Group(func(adm chi.Router) {
			adm.Use(admin)
			adm.Use(limit(RateLimitMutations))
			adm.With(observe("disputes.jurors")).Post("/disputes/{disputeID}/jurors", a.assignJurors)
			adm.With(observe("disputes.verdict")).Post("/disputes/{disputeID}/verdict", a.executeVerdict)
			adm.With(observe("rewards.params")).Post("/rewards/params", a.updateRewardParams)
		})
	})

	if obs != nil {
		r.Handle("/metrics", obs.MetricsHandler())
	}
	return r, nil
}

// caller returns the authenticated caller or writes a 401.
func caller(w http.ResponseWriter, r *http.Request) ([20]byte, bool) {
	addr, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		writeUnauthenticated(w)
		return [20]byte{}, false
	}
	return addr, true
}

func pathHash(w http.ResponseWriter, r *http.Request, param string) ([32]byte, bool) {
	id, err := parseHash(chi.URLParam(r, param))
	if err != nil {
		writeBadRequest(w, err)
		return id, false
	}
	return id, true
}

func pathAddress(w http.ResponseWriter, r *http.Request, param string) ([20]byte, bool) {
	addr, err := parseAddress(chi.URLParam(r, param))
	if err != nil {
		writeBadRequest(w, err)
		return addr, false
	}
	return addr, true
}
