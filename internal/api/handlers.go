package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"order-matcher/internal/engine"
	"order-matcher/internal/sequencer"

	"github.com/gorilla/mux"
)

const maxOrderBodyBytes = 1 << 16

// OrderService is the serialized view of the matching engine the handlers need
type OrderService interface {
	Submit(ctx context.Context, req engine.NewOrderRequest) (*engine.OrderResult, error)
	Books(ctx context.Context, depth int) (engine.BooksSnapshot, error)
	Trades(ctx context.Context) ([]engine.Trade, error)
	Order(ctx context.Context, id string) (engine.Order, bool, error)
}

// Options configures a Server
type Options struct {
	PriceScale    int32
	QuantityScale int32
	// TradeStream serves /ws/trades when set
	TradeStream http.Handler
}

// Server holds the HTTP router in front of the order service
type Server struct {
	svc       OrderService
	router    *mux.Router
	validator Validator
	log       *slog.Logger
	startTime time.Time

	ordersReceived   atomic.Int64
	ordersMatched    atomic.Int64
	tradesExecuted   atomic.Int64
	validationErrors atomic.Int64
}

// NewServer creates a new API server
func NewServer(svc OrderService, opts Options, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		svc:    svc,
		router: mux.NewRouter(),
		validator: Validator{
			PriceScale:    opts.PriceScale,
			QuantityScale: opts.QuantityScale,
		},
		log:       log,
		startTime: time.Now(),
	}

	s.registerRoutes(opts.TradeStream)

	return s
}

// registerRoutes sets up all API endpoints
func (s *Server) registerRoutes(tradeStream http.Handler) {
	s.router.Use(s.logRequests, s.recoverPanics)

	s.router.HandleFunc("/", s.handleWelcome).Methods("GET")
	s.router.HandleFunc("/place", s.handlePlaceOrder).Methods("POST")
	s.router.HandleFunc("/books", s.handleGetBooks).Methods("GET")
	s.router.HandleFunc("/trades", s.handleGetTrades).Methods("GET")

	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/orders", s.handlePlaceOrder).Methods("POST")
	api.HandleFunc("/orders/{order_id}", s.handleGetOrder).Methods("GET")

	// Health and metrics
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/metrics", s.handleMetrics).Methods("GET")

	if tradeStream != nil {
		s.router.Handle("/ws/trades", tradeStream).Methods("GET")
	}
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleWelcome(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"message": "Welcome to the order matcher API",
	})
}

// handlePlaceOrder handles POST /place and POST /api/v1/orders
func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxOrderBodyBytes)

	req, err := s.validator.Parse(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.validationErrors.Add(1)
			respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		var verr *ValidationError
		if errors.As(err, &verr) {
			s.validationErrors.Add(1)
			respondJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error":   "Validation failed",
				"details": verr.Details,
			})
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.svc.Submit(r.Context(), req)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	// Update metrics
	s.ordersReceived.Add(1)
	if len(result.Trades) > 0 {
		s.ordersMatched.Add(1)
		s.tradesExecuted.Add(int64(len(result.Trades)))
	}

	// Response status code
	statusCode := http.StatusCreated
	switch result.Status {
	case engine.FILLED:
		statusCode = http.StatusOK
	case engine.PARTIALLY_FILLED:
		statusCode = http.StatusAccepted
	}

	respondJSON(w, statusCode, result)
}

// handleGetOrder handles GET /api/v1/orders/{order_id}
func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["order_id"]

	order, found, err := s.svc.Order(r.Context(), orderID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, "order not found")
		return
	}

	respondJSON(w, http.StatusOK, order)
}

// handleGetBooks handles GET /books
func (s *Server) handleGetBooks(w http.ResponseWriter, r *http.Request) {
	// depth 0 returns every level
	depth := 0
	if depthStr := r.URL.Query().Get("depth"); depthStr != "" {
		d, err := strconv.Atoi(depthStr)
		if err != nil || d < 0 {
			respondError(w, http.StatusBadRequest, "depth must be a non-negative integer")
			return
		}
		depth = d
	}

	snapshot, err := s.svc.Books(r.Context(), depth)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, snapshot)
}

// handleGetTrades handles GET /trades
func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.svc.Trades(r.Context())
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, trades)
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(s.startTime).Seconds()

	response := map[string]interface{}{
		"status":           "healthy",
		"uptime_seconds":   int64(uptime),
		"orders_processed": s.ordersReceived.Load(),
	}

	respondJSON(w, http.StatusOK, response)
}

// handleMetrics handles GET /metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	books, err := s.svc.Books(r.Context(), 1)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	response := map[string]interface{}{
		"orders_received":   s.ordersReceived.Load(),
		"orders_matched":    s.ordersMatched.Load(),
		"orders_resting":    books.Summary.TotalBuyOrders + books.Summary.TotalSellOrders,
		"trades_executed":   s.tradesExecuted.Load(),
		"validation_errors": s.validationErrors.Load(),
		"buy_levels":        books.Summary.BuyLevels,
		"sell_levels":       books.Summary.SellLevels,
	}

	respondJSON(w, http.StatusOK, response)
}

func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrInvalidOrder), errors.Is(err, engine.ErrDuplicateOrder):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, sequencer.ErrStopped),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusServiceUnavailable, "matching engine unavailable")
	default:
		s.log.Error("request failed", slog.Any("error", err))
		respondError(w, http.StatusInternalServerError, "Internal Server Error")
	}
}
