package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/highstakes/highstakes/server/internal/alerts"
	"github.com/highstakes/highstakes/server/internal/leaderboard"
	"github.com/highstakes/highstakes/server/internal/metrics"
	"github.com/highstakes/highstakes/server/internal/session"
)

// maxStakeBody bounds the stake request body; an int needs far less.
const maxStakeBody = 64

// Streamer is the live leaderboard feed. *ws.Hub satisfies it.
type Streamer interface {
	http.Handler
	Notify(offerID int)
	Count() int
}

// Options carries the optional collaborators of the handler. Nil fields are
// simply not wired.
type Options struct {
	Stream    Streamer
	Alerts    *alerts.Engine
	Metrics   *metrics.Metrics
	Limiter   *rate.Limiter
	AdminAuth func(http.Handler) http.Handler
}

// Handler serves the request layer and admin API.
type Handler struct {
	sessions *session.Registry
	boards   *leaderboard.Store
	opts     Options
	router   chi.Router
}

// New creates a Handler wired to the session registry and leaderboard store
// and registers all routes.
func New(sessions *session.Registry, boards *leaderboard.Store, opts Options) http.Handler {
	h := &Handler{
		sessions: sessions,
		boards:   boards,
		opts:     opts,
		router:   chi.NewRouter(),
	}

	adminAuth := opts.AdminAuth
	if adminAuth == nil {
		adminAuth = func(next http.Handler) http.Handler { return next }
	}

	r := h.router
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/{id}/session", h.getSession)
	r.With(h.rateLimit).Post("/{id}/stake", h.postStake)
	r.Get("/{id}/highstakes", h.getHighStakes)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(adminAuth)
		r.Get("/health", h.health)
		r.Get("/offers/{id}/leaderboard", h.getLeaderboard)
		r.Get("/alerts", h.listAlerts)
	})

	if opts.Metrics != nil {
		r.With(adminAuth).Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}
	if opts.Stream != nil {
		r.Get("/ws/offers/{offerID}", opts.Stream.ServeHTTP)
	}

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// --- request layer ----------------------------------------------------------

// getSession returns GET /{customerID}/session with the customer's token.
func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	customerID, err := intParam(r, "id")
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "customer id must be an integer")
		return
	}

	token, created := h.sessions.GetOrCreate(customerID)
	if created {
		if h.opts.Metrics != nil {
			h.opts.Metrics.SessionCreated()
		}
		slog.Debug("api: session created", "customer_id", customerID)
	}
	textResp(w, http.StatusOK, token)
}

// postStake handles POST /{offerID}/stake?sessionkey=KEY with the stake as body.
func (h *Handler) postStake(w http.ResponseWriter, r *http.Request) {
	offerID, err := intParam(r, "id")
	if err != nil {
		h.reject(w, http.StatusBadRequest, metrics.ReasonBadRequest, "offer id must be an integer")
		return
	}

	key := r.URL.Query().Get("sessionkey")
	if key == "" {
		h.reject(w, http.StatusBadRequest, metrics.ReasonBadRequest, "sessionkey is required")
		return
	}

	stake, err := readStake(r)
	if err != nil {
		h.reject(w, http.StatusBadRequest, metrics.ReasonBadRequest, err.Error())
		return
	}

	customerID, err := h.sessions.Resolve(key)
	if err != nil {
		h.reject(w, http.StatusUnauthorized, metrics.ReasonUnknownSession, "invalid session key")
		return
	}

	res := h.boards.Submit(offerID, customerID, stake)
	slog.Debug("api: stake accepted",
		"offer_id", offerID,
		"customer_id", customerID,
		"stake", stake,
		"rank", res.Rank,
	)

	if h.opts.Metrics != nil {
		h.opts.Metrics.StakeSubmitted()
	}
	if h.opts.Stream != nil {
		h.opts.Stream.Notify(offerID)
	}
	if h.opts.Alerts != nil {
		h.opts.Alerts.Evaluate(alerts.Event{
			OfferID:    offerID,
			CustomerID: customerID,
			Stake:      stake,
			Rank:       res.Rank,
			Entries:    res.Size,
		})
	}

	w.WriteHeader(http.StatusOK)
}

// getHighStakes returns GET /{offerID}/highstakes as "c=s,c=s", highest first.
func (h *Handler) getHighStakes(w http.ResponseWriter, r *http.Request) {
	offerID, err := intParam(r, "id")
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "offer id must be an integer")
		return
	}
	textResp(w, http.StatusOK, formatHighStakes(h.boards.Snapshot(offerID)))
}

// --- admin API --------------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	offers := h.boards.Offers()
	resp := HealthResponse{
		Status:     "ok",
		Offers:     len(offers),
		OfferIDs:   offers,
		Sessions:   h.sessions.Count(),
		Capacity:   h.boards.Capacity(),
		SessionTTL: h.sessions.TTL().String(),
	}
	if h.opts.Stream != nil {
		resp.StreamClients = h.opts.Stream.Count()
	}
	jsonResp(w, http.StatusOK, resp)
}

// getLeaderboard returns GET /api/v1/offers/{offerID}/leaderboard.
func (h *Handler) getLeaderboard(w http.ResponseWriter, r *http.Request) {
	offerID, err := intParam(r, "id")
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "offer id must be an integer")
		return
	}
	jsonResp(w, http.StatusOK, LeaderboardResponse{
		OfferID:     offerID,
		Capacity:    h.boards.Capacity(),
		Standings:   leaderboard.Standings(h.boards.Snapshot(offerID)),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// listAlerts returns GET /api/v1/alerts: firing and recently resolved alerts.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	if h.opts.Alerts == nil {
		jsonResp(w, http.StatusOK, []struct{}{})
		return
	}
	jsonResp(w, http.StatusOK, h.opts.Alerts.Active())
}

// --- middleware -------------------------------------------------------------

// rateLimit rejects requests with 429 once the shared token bucket is empty.
func (h *Handler) rateLimit(next http.Handler) http.Handler {
	if h.opts.Limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.opts.Limiter.Allow() {
			h.reject(w, http.StatusTooManyRequests, metrics.ReasonRateLimited, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one line per request at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// --- helpers ----------------------------------------------------------------

func (h *Handler) reject(w http.ResponseWriter, code int, reason, msg string) {
	if h.opts.Metrics != nil {
		h.opts.Metrics.StakeRejected(reason)
	}
	jsonErr(w, code, msg)
}

func intParam(r *http.Request, name string) (int, error) {
	return strconv.Atoi(chi.URLParam(r, name))
}

// readStake parses the request body as a single integer.
func readStake(r *http.Request) (int, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxStakeBody+1))
	if err != nil {
		return 0, errors.New("read stake body")
	}
	if len(body) > maxStakeBody {
		return 0, errors.New("stake body too large")
	}
	s := strings.TrimSpace(string(body))
	if s == "" {
		return 0, errors.New("stake is required")
	}
	stake, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.New("stake must be an integer")
	}
	return stake, nil
}

// formatHighStakes renders entries as "customer=stake" pairs joined by commas.
func formatHighStakes(entries []leaderboard.Entry) string {
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(e.String())
	}
	return b.String()
}

func textResp(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	io.WriteString(w, body) //nolint:errcheck
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
