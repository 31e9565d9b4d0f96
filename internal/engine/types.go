package engine

import (
	"github.com/shopspring/decimal"
)

// Side represents buy or sell
type Side string

const (
	BUY  Side = "BUY"
	SELL Side = "SELL"
)

// Opposite returns the side an order of this side trades against
func (s Side) Opposite() Side {
	if s == BUY {
		return SELL
	}
	return BUY
}

// Valid reports whether s is BUY or SELL
func (s Side) Valid() bool {
	return s == BUY || s == SELL
}

// OrderStatus represents order state
type OrderStatus string

const (
	OPEN             OrderStatus = "OPEN"
	PARTIALLY_FILLED OrderStatus = "PARTIALLY_FILLED"
	FILLED           OrderStatus = "FILLED"
	// CANCELLED is never produced by matching.
	CANCELLED OrderStatus = "CANCELLED"
)

// NewOrderRequest is a validated order as handed over by the ingestion boundary
type NewOrderRequest struct {
	Side     Side
	Price    decimal.Decimal
	Quantity decimal.Decimal
	UserID   string
}

// Order represents a single order and its fill state
type Order struct {
	ID             string          `json:"id"`
	UserID         string          `json:"userId"`
	Side           Side            `json:"side"`
	Price          decimal.Decimal `json:"price"`
	Quantity       decimal.Decimal `json:"quantity"`
	FilledQuantity decimal.Decimal `json:"filledQuantity"`
	Status         OrderStatus     `json:"status"`
	Timestamp      int64           `json:"timestamp"` // Unix milliseconds
}

// NewOrder builds an OPEN order from a validated request
func NewOrder(req NewOrderRequest, id string, timestamp int64) *Order {
	return &Order{
		ID:             id,
		UserID:         req.UserID,
		Side:           req.Side,
		Price:          req.Price,
		Quantity:       req.Quantity,
		FilledQuantity: decimal.Zero,
		Status:         OPEN,
		Timestamp:      timestamp,
	}
}

// Remaining returns the quantity still open
func (o *Order) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQuantity)
}

// fill records a match of qty and moves the status forward.
// qty never exceeds Remaining().
func (o *Order) fill(qty decimal.Decimal) {
	o.FilledQuantity = o.FilledQuantity.Add(qty)
	if o.FilledQuantity.Equal(o.Quantity) {
		o.Status = FILLED
	} else {
		o.Status = PARTIALLY_FILLED
	}
}

// Trade represents an executed trade
type Trade struct {
	ID          string          `json:"tradeId"`
	BuyOrderID  string          `json:"buyOrderId"`
	SellOrderID string          `json:"sellOrderId"`
	Price       decimal.Decimal `json:"price"`
	Quantity    decimal.Decimal `json:"quantity"`
	Timestamp   int64           `json:"timestamp"`
}

// OrderResult is what a submission reports back to the caller
type OrderResult struct {
	OrderID           string          `json:"orderId"`
	Status            OrderStatus     `json:"status"`
	FilledQuantity    decimal.Decimal `json:"filledQuantity"`
	RemainingQuantity decimal.Decimal `json:"remainingQuantity"`
	Trades            []Trade         `json:"trades"`
	Message           string          `json:"message,omitempty"`
	Order             Order           `json:"-"`
}
