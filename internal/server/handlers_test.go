package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"stock-trading-sim-go/internal/auth"
	"stock-trading-sim-go/internal/models"
	"stock-trading-sim-go/internal/portfolio"
	"stock-trading-sim-go/internal/quotes"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// MockQuoteClient is a mock implementation of quotes.ClientInterface.
type MockQuoteClient struct {
	mock.Mock
}

func (m *MockQuoteClient) GetQuote(ctx context.Context, symbol string) (*quotes.Quote, error) {
	args := m.Called(symbol)
	if q := args.Get(0); q != nil {
		return q.(*quotes.Quote), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockQuoteClient) SearchSymbols(ctx context.Context, query string) ([]quotes.SymbolMatch, error) {
	args := m.Called(query)
	if r := args.Get(0); r != nil {
		return r.([]quotes.SymbolMatch), args.Error(1)
	}
	return nil, args.Error(1)
}

// setupAPI builds the full stack over a fresh database and returns a test
// server plus a valid session token. The database lives in a temp file
// because each HTTP request may hit a different pooled connection, and an
// in-memory sqlite is private to the connection that opened it.
func setupAPI(t *testing.T) (*httptest.Server, *MockQuoteClient, string) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&models.User{}, &models.Trade{}, &models.WatchlistItem{}))

	mockQuotes := new(MockQuoteClient)
	authService := auth.NewService(db, time.Hour, zap.NewNop())
	engine := portfolio.NewEngine(portfolio.NewGormTradeStore(db), mockQuotes, zap.NewNop())

	srv := New(0, Deps{Auth: authService, Engine: engine, Quotes: mockQuotes, DB: db}, zap.NewNop())
	ts := httptest.NewServer(srv.server.Handler)
	t.Cleanup(ts.Close)

	ctx := context.Background()
	_, err = authService.Register(ctx, "alice", "alice@example.com", "s3cretpass")
	assert.NoError(t, err)
	token, _, err := authService.Login(ctx, "alice", "s3cretpass")
	assert.NoError(t, err)

	return ts, mockQuotes, token
}

func doRequest(t *testing.T, method, url, token string, body interface{}) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		assert.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	assert.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	assert.NoError(t, err)
	return resp
}

func TestAuthRequired(t *testing.T) {
	ts, _, _ := setupAPI(t)

	resp := doRequest(t, "GET", ts.URL+"/api/portfolio", "", nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRegisterEndpoint(t *testing.T) {
	ts, _, _ := setupAPI(t)

	resp := doRequest(t, "POST", ts.URL+"/api/register", "", map[string]string{
		"username": "bob", "email": "bob@example.com", "password": "longenough",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	// Duplicate registration conflicts.
	resp2 := doRequest(t, "POST", ts.URL+"/api/register", "", map[string]string{
		"username": "bob", "email": "bob@example.com", "password": "longenough",
	})
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusConflict, resp2.StatusCode)
}

func TestTradeLifecycle(t *testing.T) {
	ts, _, token := setupAPI(t)

	// Buy 10@10, buy 10@20, sell 15@30.
	for _, order := range []map[string]interface{}{
		{"symbol": "AAPL", "action": "BUY", "quantity": 10, "price": 10},
		{"symbol": "AAPL", "action": "BUY", "quantity": 10, "price": 20},
	} {
		resp := doRequest(t, "POST", ts.URL+"/api/trades", token, order)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	}

	resp := doRequest(t, "POST", ts.URL+"/api/trades", token, map[string]interface{}{
		"symbol": "AAPL", "action": "SELL", "quantity": 15, "price": 30,
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var sell models.Trade
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&sell))
	assert.InDelta(t, (30-200.0/15.0)*15, sell.ProfitLoss, 1e-6)

	listResp := doRequest(t, "GET", ts.URL+"/api/trades?symbol=AAPL", token, nil)
	defer listResp.Body.Close()
	var trades []models.Trade
	assert.NoError(t, json.NewDecoder(listResp.Body).Decode(&trades))
	assert.Len(t, trades, 3)
}

func TestSellWithoutShares(t *testing.T) {
	ts, _, token := setupAPI(t)

	resp := doRequest(t, "POST", ts.URL+"/api/trades", token, map[string]interface{}{
		"symbol": "AAPL", "action": "SELL", "quantity": 5, "price": 30,
	})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestTradeValidation(t *testing.T) {
	ts, _, token := setupAPI(t)

	resp := doRequest(t, "POST", ts.URL+"/api/trades", token, map[string]interface{}{
		"symbol": "AAPL", "action": "BUY", "quantity": -1, "price": 30,
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp2 := doRequest(t, "POST", ts.URL+"/api/trades", token, map[string]interface{}{
		"symbol": "AAPL", "action": "HOLD", "quantity": 1, "price": 30,
	})
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestDeleteTradeEndpoint(t *testing.T) {
	ts, _, token := setupAPI(t)

	resp := doRequest(t, "POST", ts.URL+"/api/trades", token, map[string]interface{}{
		"symbol": "AAPL", "action": "BUY", "quantity": 10, "price": 10,
	})
	var buy models.Trade
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&buy))
	resp.Body.Close()

	del := doRequest(t, "DELETE", fmt.Sprintf("%s/api/trades/%d", ts.URL, buy.ID), token, nil)
	defer del.Body.Close()
	assert.Equal(t, http.StatusNoContent, del.StatusCode)

	missing := doRequest(t, "DELETE", fmt.Sprintf("%s/api/trades/%d", ts.URL, buy.ID), token, nil)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestPortfolioEndpoint(t *testing.T) {
	ts, mockQuotes, token := setupAPI(t)

	resp := doRequest(t, "POST", ts.URL+"/api/trades", token, map[string]interface{}{
		"symbol": "AAPL", "action": "BUY", "quantity": 5, "price": 20,
	})
	resp.Body.Close()

	mockQuotes.On("GetQuote", "AAPL").Return(&quotes.Quote{Symbol: "AAPL", CurrentPrice: 25}, nil)

	pf := doRequest(t, "GET", ts.URL+"/api/portfolio", token, nil)
	defer pf.Body.Close()
	assert.Equal(t, http.StatusOK, pf.StatusCode)

	var holdings []portfolio.Holding
	assert.NoError(t, json.NewDecoder(pf.Body).Decode(&holdings))
	assert.Len(t, holdings, 1)
	assert.InDelta(t, 25.0, holdings[0].UnrealizedPL, 1e-9)
}

func TestPerformanceEndpoint(t *testing.T) {
	ts, _, token := setupAPI(t)

	resp := doRequest(t, "GET", ts.URL+"/api/performance?window=week", token, nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var snap portfolio.PerformanceSnapshot
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, portfolio.WindowWeek, snap.Window)
	assert.Equal(t, 0.0, snap.WinRate)

	bad := doRequest(t, "GET", ts.URL+"/api/performance?window=fortnight", token, nil)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestQuoteEndpoint(t *testing.T) {
	ts, mockQuotes, token := setupAPI(t)

	mockQuotes.On("GetQuote", "AAPL").Return(&quotes.Quote{Symbol: "AAPL", CurrentPrice: 182.5}, nil)
	mockQuotes.On("GetQuote", "NOSUCH").Return(nil, quotes.ErrUnavailable)

	ok := doRequest(t, "GET", ts.URL+"/api/quote/aapl", token, nil)
	defer ok.Body.Close()
	assert.Equal(t, http.StatusOK, ok.StatusCode)

	bad := doRequest(t, "GET", ts.URL+"/api/quote/nosuch", token, nil)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusBadGateway, bad.StatusCode)
}

func TestWatchlistEndpoints(t *testing.T) {
	ts, _, token := setupAPI(t)

	add := doRequest(t, "POST", ts.URL+"/api/watchlist", token, map[string]string{"symbol": "aapl"})
	defer add.Body.Close()
	assert.Equal(t, http.StatusCreated, add.StatusCode)

	list := doRequest(t, "GET", ts.URL+"/api/watchlist", token, nil)
	defer list.Body.Close()
	var items []models.WatchlistItem
	assert.NoError(t, json.NewDecoder(list.Body).Decode(&items))
	assert.Len(t, items, 1)
	assert.Equal(t, "AAPL", items[0].Symbol)

	del := doRequest(t, "DELETE", ts.URL+"/api/watchlist/AAPL", token, nil)
	defer del.Body.Close()
	assert.Equal(t, http.StatusNoContent, del.StatusCode)

	missing := doRequest(t, "DELETE", ts.URL+"/api/watchlist/AAPL", token, nil)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}
