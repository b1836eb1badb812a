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

	"cosmiccafe/internal/config"
	"cosmiccafe/internal/game"
	"cosmiccafe/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

const defaultRecent = 20

type Server struct {
	cfg     config.APIConfig
	log     *slog.Logger
	game    *game.Session
	archive store.Archive
	limiter *rateLimiter
	mux     *chi.Mux
}

// New wires the HTTP surface over one session. archive may be nil, in which
// case POST /v1/export answers 503.
func New(cfg config.APIConfig, logger *slog.Logger, session *game.Session, archive store.Archive) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:     cfg,
		log:     logger,
		game:    session,
		archive: archive,
		limiter: newRateLimiter(cfg.RatePerMinute, cfg.RateBurst),
		mux:     chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "session_id": s.game.ID()})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/lenders", s.handleLenders)
		r.Get("/lenders/{lender}/history", s.handleLenderHistory)
		r.Get("/actions", s.handleActions)
		r.Get("/actions/summary", s.handleSummary)
		r.Get("/export", s.handleExport)

		r.Group(func(r chi.Router) {
			r.Use(s.limiter.middleware)
			r.Post("/loans/request", s.handleLoanRequest)
			r.Post("/loans/accept", s.handleLoanAccept)
			r.Post("/loans/decline", s.handleLoanDecline)
			r.Post("/debts/{lender}/repay", s.handleRepay)
			r.Post("/sales", s.handleSale)
			r.Post("/shop/{lender}/buy", s.handleBuyStock)
			r.Post("/purchases", s.handlePurchase)
			r.Post("/stock/spend", s.handleSpendStock)
			r.Post("/clock/advance", s.handleAdvance)
			r.Post("/export", s.handleArchiveExport)
			r.Get("/archive", s.handleArchiveList)
		})
	})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.game.State())
}

func (s *Server) handleLenders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"lenders": s.game.Lenders()})
}

func (s *Server) handleLenderHistory(w http.ResponseWriter, r *http.Request) {
	lender, err := game.ParseLenderID(chi.URLParam(r, "lender"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	records, err := s.game.HistoryFor(lender)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lender": lender, "actions": records})
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("recent"))
	if raw == "all" {
		records := s.game.History()
		writeJSON(w, http.StatusOK, map[string]any{"actions": records, "count": len(records)})
		return
	}
	n := defaultRecent
	if raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, "recent must be a non-negative integer or \"all\"")
			return
		}
		n = v
	}
	records := s.game.Recent(n)
	writeJSON(w, http.StatusOK, map[string]any{"actions": records, "count": len(records)})
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.game.Summary())
}

func (s *Server) handleExport(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.game.Export())
}

func (s *Server) handleLoanRequest(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Lender string           `json:"lender"`
		Amount *decimal.Decimal `json:"amount"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	lender, err := game.ParseLenderID(in.Lender)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	req := game.LoanRequestInput{Lender: lender, IdempotencyKey: idempotencyKey(r)}
	if in.Amount != nil {
		if !in.Amount.IsPositive() {
			writeDomainError(w, game.ErrInvalidAmount)
			return
		}
		req.Amount = *in.Amount
	}
	result, err := s.game.RequestLoan(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleLoanAccept(w http.ResponseWriter, r *http.Request) {
	result, err := s.game.AcceptLoan(idempotencyKey(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleLoanDecline(w http.ResponseWriter, _ *http.Request) {
	result, err := s.game.DeclineLoan()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRepay(w http.ResponseWriter, r *http.Request) {
	lender, err := game.ParseLenderID(chi.URLParam(r, "lender"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var in struct {
		Amount *decimal.Decimal `json:"amount"`
	}
	if err := decodeOptionalJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req := game.RepayInput{Lender: lender, IdempotencyKey: idempotencyKey(r)}
	if in.Amount != nil {
		if !in.Amount.IsPositive() {
			writeDomainError(w, game.ErrInvalidAmount)
			return
		}
		req.Amount = *in.Amount
	}
	result, err := s.game.Repay(req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSale(w http.ResponseWriter, r *http.Request) {
	result, err := s.game.GenerateSale(idempotencyKey(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleBuyStock(w http.ResponseWriter, r *http.Request) {
	lender, err := game.ParseLenderID(chi.URLParam(r, "lender"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	result, err := s.game.BuyStock(lender, idempotencyKey(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Item string          `json:"item"`
		Cost decimal.Decimal `json:"cost"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	item := strings.TrimSpace(in.Item)
	if item == "" {
		writeError(w, http.StatusBadRequest, "item is required")
		return
	}
	state, err := s.game.Purchase(in.Cost, item, idempotencyKey(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleSpendStock(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Amount decimal.Decimal `json:"amount"`
		Reason string          `json:"reason"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.Amount.IsNegative() {
		writeDomainError(w, game.ErrInvalidAmount)
		return
	}
	state, err := s.game.SpendStock(in.Amount, in.Reason, idempotencyKey(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Seconds float64 `json:"seconds"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.Seconds <= 0 || in.Seconds > 24*60*60 {
		writeError(w, http.StatusBadRequest, "seconds must be in (0, 86400]")
		return
	}
	result, err := s.game.Advance(time.Duration(in.Seconds * float64(time.Second)))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleArchiveExport(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "no archive configured")
		return
	}
	doc := s.game.Export()
	id, err := s.archive.SaveExport(r.Context(), doc)
	if err != nil {
		s.log.Error("archive export failed", "err", err)
		writeDomainError(w, err)
		return
	}
	s.log.Info("export archived", "session_id", id, "actions", len(doc.Actions))
	writeJSON(w, http.StatusCreated, map[string]any{"session_id": id, "actions": len(doc.Actions), "summary": doc.Summary})
}

func (s *Server) handleArchiveList(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "no archive configured")
		return
	}
	entries, err := s.archive.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"exports": entries})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrDuplicateIdempotency):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, game.ErrInvalidTransition), errors.Is(err, game.ErrAccrualRunning):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, game.ErrInsufficientFunds), errors.Is(err, game.ErrInsufficientStock):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, game.ErrInvalidAmount), errors.Is(err, game.ErrNothingForSale):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, game.ErrUnknownLender), errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

// decodeOptionalJSON is decodeJSON for routes whose body may be empty.
func decodeOptionalJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return nil
	}
	if err := decodeJSON(r, out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func idempotencyKey(r *http.Request) string {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" {
		return key
	}
	return uuid.NewString()
}
