package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_loyalty/internal/coins"
	"github.com/fjod/go_loyalty/internal/domain"
	"github.com/fjod/go_loyalty/internal/ledger"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultHistoryLimit = 20

type CardService interface {
	Cards(ctx context.Context, userID string) ([]domain.Instrument, error)
	Claim(ctx context.Context, userID, cardNumber string) (domain.Instrument, error)
	Issue(ctx context.Context, inst domain.Instrument) (domain.Instrument, error)
}

type CoinService interface {
	Balance(ctx context.Context, userID string) (int64, error)
	History(ctx context.Context, userID string, limit int) ([]domain.CoinTransaction, error)
	Transfer(ctx context.Context, fromUserID, toUserID string, amount int64) (coins.TransferResult, error)
	RedeemForDiscount(ctx context.Context, userID string, amount int64) (decimal.Decimal, error)
	ActivateStamp(ctx context.Context, userID, cardID, proofCode string) (*domain.StampCard, error)
	Grant(ctx context.Context, userID string, amount int64, description string) (int64, error)
	CoinValue(amount int64) decimal.Decimal
}

type LoyaltyHandler struct {
	cards   CardService
	coins   CoinService
	timeout time.Duration
	log     *zap.Logger
}

func NewLoyaltyHandler(cards CardService, coinService CoinService, timeout time.Duration, log *zap.Logger) *LoyaltyHandler {
	return &LoyaltyHandler{
		cards:   cards,
		coins:   coinService,
		timeout: timeout,
		log:     log,
	}
}

type ClaimCardRequestDTO struct {
	CardNumber string `json:"card_number"`
}

type ActivateStampRequestDTO struct {
	ProofCode string `json:"proof_code"`
}

type TransferRequestDTO struct {
	ToUserID string `json:"to_user_id"`
	Amount   int64  `json:"amount"`
}

type RedeemRequestDTO struct {
	Amount int64 `json:"amount"`
}

type IssueCardRequestDTO struct {
	CardNumber    string           `json:"card_number"`
	StampCapacity int              `json:"stamp_capacity"`
	CurrentStamps int              `json:"current_stamps"`
	RewardStages  []rewardStageDTO `json:"reward_stages"`
	MonetaryValue string           `json:"monetary_value"`
	ExpiryDate    string           `json:"expiry_date"`
}

type GrantRequestDTO struct {
	UserID      string `json:"user_id"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

type coinsResponse struct {
	Balance      int64                `json:"balance"`
	Value        string               `json:"value"`
	Transactions []coinTransactionDTO `json:"transactions"`
}

func (h *LoyaltyHandler) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "missing user authentication")
		return "", false
	}
	return userID, true
}

func (h *LoyaltyHandler) ListCards(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	list, err := h.cards.Cards(ctx, userID)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	out := make([]instrumentResponse, 0, len(list))
	for _, inst := range list {
		out = append(out, toInstrumentResponse(inst))
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *LoyaltyHandler) ClaimCard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var req ClaimCardRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	inst, err := h.cards.Claim(ctx, userID, req.CardNumber)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, toInstrumentResponse(inst))
}

func (h *LoyaltyHandler) ActivateStamp(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var req ActivateStampRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	card, err := h.coins.ActivateStamp(ctx, userID, chi.URLParam(r, "cardID"), req.ProofCode)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, toInstrumentResponse(card))
}

// GetCoins returns the balance and the latest transactions; ?limit= caps
// the history.
func (h *LoyaltyHandler) GetCoins(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	balance, err := h.coins.Balance(ctx, userID)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	history, err := h.coins.History(ctx, userID, limit)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, coinsResponse{
		Balance:      balance,
		Value:        money(h.coins.CoinValue(balance)),
		Transactions: toCoinTransactions(history),
	})
}

func (h *LoyaltyHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var req TransferRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.coins.Transfer(ctx, userID, req.ToUserID, req.Amount)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *LoyaltyHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var req RedeemRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	discount, err := h.coins.RedeemForDiscount(ctx, userID, req.Amount)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	balance, err := h.coins.Balance(ctx, userID)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"discount": money(discount),
		"balance":  balance,
	})
}

// AdminIssueCard issues an unowned card; the number prefix picks the kind.
func (h *LoyaltyHandler) AdminIssueCard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req IssueCardRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	kind, number, err := ledger.VerifyCardNumber(req.CardNumber)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	var inst domain.Instrument
	base := domain.InstrumentBase{CardNumber: number}
	switch kind {
	case domain.InstrumentKindStampCard:
		card := &domain.StampCard{
			InstrumentBase: base,
			CurrentStamps:  req.CurrentStamps,
			StampCapacity:  req.StampCapacity,
		}
		for _, s := range req.RewardStages {
			card.RewardStages = append(card.RewardStages, domain.RewardStage(s))
		}
		inst = card
	case domain.InstrumentKindGiftCard:
		value, err := decimal.NewFromString(req.MonetaryValue)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_amount", "monetary_value must be a decimal number")
			return
		}
		expiry, err := time.Parse(time.DateOnly, req.ExpiryDate)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_expiry_date", "expiry_date must be YYYY-MM-DD")
			return
		}
		inst = &domain.GiftCard{
			InstrumentBase: base,
			MonetaryValue:  value,
			ExpiryDate:     expiry,
		}
	}

	issued, err := h.cards.Issue(ctx, inst)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	resp := toInstrumentResponse(issued)
	resp.CardNumber = issued.Base().CardNumber
	respondJSON(w, http.StatusCreated, resp)
}

func (h *LoyaltyHandler) AdminGrantCoins(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req GrantRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Description == "" {
		req.Description = "granted by store"
	}

	balance, err := h.coins.Grant(ctx, req.UserID, req.Amount, req.Description)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"user_id": req.UserID,
		"balance": balance,
	})
}
