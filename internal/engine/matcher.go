package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MatchingEngine owns both books and the trade log of a single instrument.
// It is not safe for concurrent use: callers must serialize Submit and every read.
type MatchingEngine struct {
	bids   *OrderBook
	asks   *OrderBook
	trades *TradeLog
	orders map[string]*Order // every order ever accepted, by id

	now     func() time.Time
	tradeID func() string
}

// Option configures a MatchingEngine
type Option func(*MatchingEngine)

// WithClock sets the time source used to stamp trades
func WithClock(now func() time.Time) Option {
	return func(me *MatchingEngine) {
		me.now = now
	}
}

// WithTradeIDs sets the trade id generator
func WithTradeIDs(next func() string) Option {
	return func(me *MatchingEngine) {
		me.tradeID = next
	}
}

// NewMatchingEngine creates a matching engine with empty books
func NewMatchingEngine(opts ...Option) *MatchingEngine {
	me := &MatchingEngine{
		bids:    NewOrderBook(BUY),
		asks:    NewOrderBook(SELL),
		trades:  NewTradeLog(),
		orders:  make(map[string]*Order),
		now:     time.Now,
		tradeID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(me)
	}
	return me
}

// Book returns the book holding resting orders of side
func (me *MatchingEngine) Book(side Side) *OrderBook {
	if side == BUY {
		return me.bids
	}
	return me.asks
}

// TradeLog returns the engine's trade log
func (me *MatchingEngine) TradeLog() *TradeLog {
	return me.trades
}

// Submit matches an incoming order against the opposite book and rests any remainder
func (me *MatchingEngine) Submit(order *Order) (*OrderResult, error) {
	if err := me.accept(order); err != nil {
		return nil, err
	}

	me.orders[order.ID] = order
	trades := me.match(order)

	// Anything not fully filled rests on its own side
	if order.Status != FILLED {
		me.Book(order.Side).Insert(order)
	}

	result := &OrderResult{
		OrderID:           order.ID,
		Status:            order.Status,
		FilledQuantity:    order.FilledQuantity,
		RemainingQuantity: order.Remaining(),
		Trades:            trades,
		Order:             *order,
	}
	switch order.Status {
	case FILLED:
		result.Message = "Order fully filled"
	case PARTIALLY_FILLED:
		result.Message = "Order partially filled and added to book"
	default:
		result.Message = "Order added to book"
	}
	return result, nil
}

func (me *MatchingEngine) accept(order *Order) error {
	if order == nil {
		return fmt.Errorf("%w: nil order", ErrInvalidOrder)
	}
	if order.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidOrder)
	}
	if !order.Side.Valid() {
		return fmt.Errorf("%w: unknown side %q", ErrInvalidOrder, order.Side)
	}
	if !order.Price.IsPositive() || !order.Quantity.IsPositive() {
		return fmt.Errorf("%w: price and quantity must be positive", ErrInvalidOrder)
	}
	if order.Status != OPEN || !order.FilledQuantity.IsZero() {
		return fmt.Errorf("%w: order %s is not new", ErrInvalidOrder, order.ID)
	}
	if _, exists := me.orders[order.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateOrder, order.ID)
	}
	return nil
}

// match walks the opposite book from the best price outward.
// It stops at the first level that does not cross or once the incoming order is filled.
func (me *MatchingEngine) match(incoming *Order) []Trade {
	opposite := me.Book(incoming.Side.Opposite())
	trades := []Trade{}

	for incoming.Remaining().IsPositive() {
		level := opposite.BestLevel()
		if level == nil || !crosses(incoming, level.Price()) {
			break
		}

		// Consume the level in arrival order
		for incoming.Remaining().IsPositive() && level.Len() > 0 {
			resting := level.Head()
			qty := decimal.Min(incoming.Remaining(), resting.Remaining())

			incoming.fill(qty)
			resting.fill(qty)

			trade := me.newTrade(incoming, resting, level.Price(), qty)
			me.trades.Append(trade)
			trades = append(trades, trade)

			if resting.Status == FILLED {
				level.popHead()
			}
		}

		if level.Len() == 0 {
			opposite.RemoveLevel(level.Price())
		}
	}

	return trades
}

// crosses reports whether incoming may trade at a resting price
func crosses(incoming *Order, price decimal.Decimal) bool {
	if incoming.Side == BUY {
		return incoming.Price.GreaterThanOrEqual(price)
	}
	return incoming.Price.LessThanOrEqual(price)
}

func (me *MatchingEngine) newTrade(incoming, resting *Order, price, qty decimal.Decimal) Trade {
	trade := Trade{
		ID:        me.tradeID(),
		Price:     price,
		Quantity:  qty,
		Timestamp: me.now().UnixMilli(),
	}
	if incoming.Side == BUY {
		trade.BuyOrderID, trade.SellOrderID = incoming.ID, resting.ID
	} else {
		trade.BuyOrderID, trade.SellOrderID = resting.ID, incoming.ID
	}
	return trade
}

// Order returns a copy of the order with id
func (me *MatchingEngine) Order(id string) (Order, bool) {
	o, ok := me.orders[id]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// BestBid returns the highest resting buy price
func (me *MatchingEngine) BestBid() (decimal.Decimal, bool) {
	return bestPrice(me.bids)
}

// BestAsk returns the lowest resting sell price
func (me *MatchingEngine) BestAsk() (decimal.Decimal, bool) {
	return bestPrice(me.asks)
}

func bestPrice(book *OrderBook) (decimal.Decimal, bool) {
	level := book.BestLevel()
	if level == nil {
		return decimal.Zero, false
	}
	return level.Price(), true
}

// Trades returns a copy of every trade executed so far
func (me *MatchingEngine) Trades() []Trade {
	return me.trades.All()
}

// BooksSnapshot represents a point-in-time view of both books
type BooksSnapshot struct {
	Buys      []LevelSnapshot `json:"buys"`
	Sells     []LevelSnapshot `json:"sells"`
	Timestamp time.Time       `json:"timestamp"`
	Summary   BookSummary     `json:"summary"`
}

// BookSummary counts levels and resting orders per side
type BookSummary struct {
	BuyLevels       int `json:"buyLevels"`
	SellLevels      int `json:"sellLevels"`
	TotalBuyOrders  int `json:"totalBuyOrders"`
	TotalSellOrders int `json:"totalSellOrders"`
}

// Books returns up to depth levels per side, best price first. depth <= 0 means all levels.
func (me *MatchingEngine) Books(depth int) BooksSnapshot {
	return BooksSnapshot{
		Buys:      me.bids.Snapshot(depth),
		Sells:     me.asks.Snapshot(depth),
		Timestamp: me.now().UTC(),
		Summary: BookSummary{
			BuyLevels:       me.bids.Len(),
			SellLevels:      me.asks.Len(),
			TotalBuyOrders:  me.bids.OrderCount(),
			TotalSellOrders: me.asks.OrderCount(),
		},
	}
}
