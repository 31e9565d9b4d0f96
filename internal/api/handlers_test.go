package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"order-matcher/internal/engine"
	"order-matcher/internal/sequencer"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	decimal.MarshalJSONWithoutQuotes = true
	os.Exit(m.Run())
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	seq := sequencer.New(engine.NewMatchingEngine(), sequencer.Config{InboxSize: 16, VerifyInvariants: true}, quietLogger(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	go seq.Run(ctx)
	t.Cleanup(cancel)

	return NewServer(seq, Options{PriceScale: 2, QuantityScale: 2}, quietLogger())
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) engine.OrderResult {
	t.Helper()
	var result engine.OrderResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	return result
}

func TestPlaceOrder(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, "POST", "/place", `{"side":"SELL","price":100,"quantity":10}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sell := decodeResult(t, rec)
	assert.Equal(t, engine.OPEN, sell.Status)
	assert.Equal(t, "Order added to book", sell.Message)
	assert.NotEmpty(t, sell.OrderID)

	// 100.004 rounds to 100.00 and crosses the resting sell
	rec = do(t, s, "POST", "/api/v1/orders", `{"side":"BUY","price":"100.004","quantity":4}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	buy := decodeResult(t, rec)
	assert.Equal(t, engine.FILLED, buy.Status)
	require.Len(t, buy.Trades, 1)
	assert.True(t, buy.Trades[0].Price.Equal(decimal.NewFromInt(100)))
	assert.True(t, buy.Trades[0].Quantity.Equal(decimal.NewFromInt(4)))
	assert.Equal(t, sell.OrderID, buy.Trades[0].SellOrderID)

	rec = do(t, s, "POST", "/place", `{"side":"BUY","price":100,"quantity":10}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	partial := decodeResult(t, rec)
	assert.Equal(t, engine.PARTIALLY_FILLED, partial.Status)
	assert.True(t, partial.FilledQuantity.Equal(decimal.NewFromInt(6)))
	assert.True(t, partial.RemainingQuantity.Equal(decimal.NewFromInt(4)))
}

func TestPlaceOrderRendersNumbers(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, "POST", "/place", `{"side":"BUY","price":"99.5","quantity":"1.25"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1.25, body["remainingQuantity"])
	assert.Equal(t, float64(0), body["filledQuantity"])
	assert.Equal(t, []interface{}{}, body["trades"])
}

func TestPlaceOrderValidation(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing side", `{"price":1,"quantity":1}`, "side"},
		{"lowercase side", `{"side":"buy","price":1,"quantity":1}`, "side"},
		{"missing price", `{"side":"BUY","quantity":1}`, "price"},
		{"negative price", `{"side":"BUY","price":-5,"quantity":1}`, "price"},
		{"price rounds to zero", `{"side":"BUY","price":0.001,"quantity":1}`, "price"},
		{"non numeric quantity", `{"side":"SELL","price":1,"quantity":"abc"}`, "quantity"},
		{"boolean quantity", `{"side":"SELL","price":1,"quantity":true}`, "quantity"},
		{"numeric user id", `{"side":"SELL","price":1,"quantity":1,"userId":7}`, "userId"},
		{"invalid json", `not json`, "body"},
		{"empty body", ``, "body"},
	}

	s := newTestServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, "POST", "/place", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var body struct {
				Error   string       `json:"error"`
				Details []FieldError `json:"details"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "Validation failed", body.Error)
			require.NotEmpty(t, body.Details)
			assert.Equal(t, tt.field, body.Details[0].Field)
		})
	}

	books := do(t, s, "GET", "/books", "")
	var snap engine.BooksSnapshot
	require.NoError(t, json.Unmarshal(books.Body.Bytes(), &snap))
	assert.Empty(t, snap.Buys)
	assert.Empty(t, snap.Sells)
}

func TestPlaceOrderReportsEveryField(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, "POST", "/place", `{"side":"HOLD","price":0,"quantity":-1}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Details []FieldError `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	fields := make([]string, 0, len(body.Details))
	for _, d := range body.Details {
		fields = append(fields, d.Field)
	}
	assert.ElementsMatch(t, []string{"side", "price", "quantity"}, fields)
}

func TestGetBooks(t *testing.T) {
	s := newTestServer(t)
	for _, body := range []string{
		`{"side":"BUY","price":99,"quantity":1}`,
		`{"side":"BUY","price":98,"quantity":2}`,
		`{"side":"BUY","price":99,"quantity":3}`,
		`{"side":"SELL","price":101,"quantity":1}`,
	} {
		require.Equal(t, http.StatusCreated, do(t, s, "POST", "/place", body).Code)
	}

	rec := do(t, s, "GET", "/books", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap engine.BooksSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))

	require.Len(t, snap.Buys, 2)
	assert.True(t, snap.Buys[0].Price.Equal(decimal.NewFromInt(99)))
	assert.True(t, snap.Buys[0].AggregateVolume.Equal(decimal.NewFromInt(4)))
	assert.Equal(t, 2, snap.Buys[0].OrderCount)
	require.Len(t, snap.Sells, 1)
	assert.Equal(t, 3, snap.Summary.TotalBuyOrders)
	assert.Equal(t, 1, snap.Summary.TotalSellOrders)

	rec = do(t, s, "GET", "/books?depth=1", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Len(t, snap.Buys, 1)
	assert.Equal(t, 2, snap.Summary.BuyLevels)

	rec = do(t, s, "GET", "/books?depth=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetTradesAndOrder(t *testing.T) {
	s := newTestServer(t)

	sell := decodeResult(t, do(t, s, "POST", "/place", `{"side":"SELL","price":10,"quantity":5}`))
	buy := decodeResult(t, do(t, s, "POST", "/place", `{"side":"BUY","price":11,"quantity":2}`))

	rec := do(t, s, "GET", "/trades", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var trades []engine.Trade
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trades))
	require.Len(t, trades, 1)
	assert.Equal(t, buy.OrderID, trades[0].BuyOrderID)
	assert.True(t, trades[0].Price.Equal(decimal.NewFromInt(10)))

	rec = do(t, s, "GET", "/api/v1/orders/"+sell.OrderID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var order engine.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	assert.Equal(t, engine.PARTIALLY_FILLED, order.Status)
	assert.True(t, order.FilledQuantity.Equal(decimal.NewFromInt(2)))

	rec = do(t, s, "GET", "/api/v1/orders/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, "GET", "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Welcome")

	do(t, s, "POST", "/place", `{"side":"SELL","price":10,"quantity":5}`)
	do(t, s, "POST", "/place", `{"side":"BUY","price":10,"quantity":2}`)
	do(t, s, "POST", "/place", `{"side":"BUY"}`)

	rec = do(t, s, "GET", "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, float64(2), health["orders_processed"])

	rec = do(t, s, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var metrics map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &metrics))
	assert.Equal(t, float64(2), metrics["orders_received"])
	assert.Equal(t, float64(1), metrics["orders_matched"])
	assert.Equal(t, float64(1), metrics["orders_resting"])
	assert.Equal(t, float64(1), metrics["trades_executed"])
	assert.Equal(t, float64(1), metrics["validation_errors"])
}

type panicService struct{ OrderService }

func (panicService) Trades(context.Context) ([]engine.Trade, error) {
	panic("boom")
}

func TestRecoverPanics(t *testing.T) {
	s := NewServer(panicService{}, Options{PriceScale: 2, QuantityScale: 2}, quietLogger())

	rec := do(t, s, "GET", "/trades", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal Server Error"}`, rec.Body.String())
}

func TestStoppedEngineIsUnavailable(t *testing.T) {
	seq := sequencer.New(engine.NewMatchingEngine(), sequencer.Config{InboxSize: 1}, quietLogger(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		seq.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	s := NewServer(seq, Options{PriceScale: 2, QuantityScale: 2}, quietLogger())
	rec := do(t, s, "POST", "/place", `{"side":"BUY","price":1,"quantity":1}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTradeStreamRoute(t *testing.T) {
	stream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	s := NewServer(panicService{}, Options{TradeStream: stream}, quietLogger())

	assert.Equal(t, http.StatusTeapot, do(t, s, "GET", "/ws/trades", "").Code)
}

func TestPlaceOrderBodyLimit(t *testing.T) {
	s := newTestServer(t)

	padding := strings.Repeat("a", maxOrderBodyBytes)
	rec := do(t, s, "POST", "/place", `{"side":"BUY","price":1,"quantity":1,"userId":"`+padding+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.JSONEq(t, `{"error":"request body too large"}`, rec.Body.String())

	rec = do(t, s, "POST", "/api/v1/orders", `{"side":"BUY","price":1e5000000,"quantity":1}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Number must be less than 1e18")

	rec = do(t, s, "GET", "/metrics", "")
	var metrics map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &metrics))
	assert.Equal(t, float64(0), metrics["orders_received"])
	assert.Equal(t, float64(2), metrics["validation_errors"])
}
