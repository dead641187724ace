package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"stock-trading-sim-go/internal/auth"
	"stock-trading-sim-go/internal/models"
	"stock-trading-sim-go/internal/portfolio"
	"stock-trading-sim-go/internal/quotes"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// handlers holds dependencies for the API endpoints.
type handlers struct {
	logger *zap.Logger
	auth   *auth.Service
	engine *portfolio.Engine
	quotes quotes.ClientInterface
	db     *gorm.DB
}

type contextKey string

const userIDKey contextKey = "userID"

func (h *handlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// writeError maps engine and auth errors onto HTTP statuses. Anything not in
// the taxonomy is a 500 and the details stay in the log.
func (h *handlers) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, portfolio.ErrValidation), errors.Is(err, auth.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, portfolio.ErrInsufficientShares):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, portfolio.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, auth.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, auth.ErrUserExists):
		status = http.StatusConflict
	case errors.Is(err, quotes.ErrUnavailable):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.Error(err))
		h.writeJSON(w, status, map[string]string{"error": "internal error"})
		return
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// requireAuth resolves the bearer token to a user ID and stores it on the
// request context.
func (h *handlers) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		userID, ok := h.auth.Authenticate(token)
		if !ok {
			h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

func requestUserID(r *http.Request) uint {
	id, _ := r.Context().Value(userIDKey).(uint)
	return id
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	user, err := h.auth.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, user)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	token, user, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"token": token, "user": user})
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	h.auth.Logout(token)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) getQuote(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	quote, err := h.quotes.GetQuote(r.Context(), symbol)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, quote)
}

func (h *handlers) searchSymbols(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query parameter q is required"})
		return
	}
	matches, err := h.quotes.SearchSymbols(r.Context(), query)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, matches)
}

func (h *handlers) listWatchlist(w http.ResponseWriter, r *http.Request) {
	var items []models.WatchlistItem
	if err := h.db.WithContext(r.Context()).
		Where("user_id = ?", requestUserID(r)).
		Order("symbol asc").Find(&items).Error; err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, items)
}

func (h *handlers) addWatchlistItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbol string `json:"symbol"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "symbol is required"})
		return
	}

	item := models.WatchlistItem{UserID: requestUserID(r), Symbol: symbol}
	if err := h.db.WithContext(r.Context()).
		Where(&models.WatchlistItem{UserID: item.UserID, Symbol: symbol}).
		FirstOrCreate(&item).Error; err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, item)
}

func (h *handlers) removeWatchlistItem(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	res := h.db.WithContext(r.Context()).
		Where("user_id = ? AND symbol = ?", requestUserID(r), symbol).
		Delete(&models.WatchlistItem{})
	if res.Error != nil {
		h.writeError(w, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "symbol not on watchlist"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type tradeRequest struct {
	Symbol   string  `json:"symbol"`
	Action   string  `json:"action"`
	Quantity int64   `json:"quantity"`
	Price    float64 `json:"price"`
}

func (h *handlers) createTrade(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	userID := requestUserID(r)
	var trade *models.Trade
	var err error
	switch strings.ToUpper(req.Action) {
	case models.ActionBuy:
		trade, err = h.engine.RecordBuy(r.Context(), userID, req.Symbol, req.Quantity, req.Price)
	case models.ActionSell:
		trade, err = h.engine.RecordSell(r.Context(), userID, req.Symbol, req.Quantity, req.Price)
	default:
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "action must be BUY or SELL"})
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, trade)
}

func (h *handlers) listTrades(w http.ResponseWriter, r *http.Request) {
	var trades []models.Trade
	q := h.db.WithContext(r.Context()).Where("user_id = ?", requestUserID(r))
	if symbol := strings.ToUpper(r.URL.Query().Get("symbol")); symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	if err := q.Order("trade_date desc, id desc").Find(&trades).Error; err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, trades)
}

func (h *handlers) deleteTrade(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid trade id"})
		return
	}
	if err := h.engine.DeleteTrade(r.Context(), requestUserID(r), uint(id)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) getPortfolio(w http.ResponseWriter, r *http.Request) {
	holdings, err := h.engine.ComputeHoldings(r.Context(), requestUserID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, holdings)
}

func (h *handlers) getPerformance(w http.ResponseWriter, r *http.Request) {
	window, err := portfolio.ParseWindow(r.URL.Query().Get("window"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	snapshot, err := h.engine.ComputeMetrics(r.Context(), requestUserID(r), window)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snapshot)
}
