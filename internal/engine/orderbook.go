package engine

import (
	"github.com/google/btree"
	"github.com/shopspring/decimal"
)

const btreeDegree = 32

// OrderBook holds the resting orders of one side, indexed by price
type OrderBook struct {
	side   Side
	levels *btree.BTreeG[*PriceLevel]
}

// LevelSnapshot is a read-only copy of one price level
type LevelSnapshot struct {
	Price           decimal.Decimal `json:"price"`
	AggregateVolume decimal.Decimal `json:"aggregateVolume"`
	OrderCount      int             `json:"orderCount"`
	Orders          []OrderSnapshot `json:"orders"`
}

// OrderSnapshot is a resting order as seen in a level snapshot
type OrderSnapshot struct {
	ID             string          `json:"id"`
	Quantity       decimal.Decimal `json:"quantity"`
	FilledQuantity decimal.Decimal `json:"filledQuantity"`
	Timestamp      int64           `json:"timestamp"`
}

func lessByPrice(a, b *PriceLevel) bool {
	return a.price.LessThan(b.price)
}

// NewOrderBook creates an empty book for one side
func NewOrderBook(side Side) *OrderBook {
	return &OrderBook{
		side:   side,
		levels: btree.NewG(btreeDegree, lessByPrice),
	}
}

// Side returns the side of the orders this book holds
func (ob *OrderBook) Side() Side {
	return ob.side
}

// BestLevel returns the most aggressive level: highest price for bids, lowest for asks
func (ob *OrderBook) BestLevel() *PriceLevel {
	var (
		level *PriceLevel
		ok    bool
	)
	if ob.side == BUY {
		level, ok = ob.levels.Max()
	} else {
		level, ok = ob.levels.Min()
	}
	if !ok {
		return nil
	}
	return level
}

// LevelAt returns the level at exactly price, or nil
func (ob *OrderBook) LevelAt(price decimal.Decimal) *PriceLevel {
	level, ok := ob.levels.Get(&PriceLevel{price: price})
	if !ok {
		return nil
	}
	return level
}

// Insert appends order to the level at its price, creating the level if needed
func (ob *OrderBook) Insert(order *Order) {
	if level := ob.LevelAt(order.Price); level != nil {
		level.append(order)
		return
	}
	level := newPriceLevel(order.Price)
	level.append(order)
	ob.levels.ReplaceOrInsert(level)
}

// RemoveLevel deletes the level at price. Absent levels are ignored.
func (ob *OrderBook) RemoveLevel(price decimal.Decimal) {
	ob.levels.Delete(&PriceLevel{price: price})
}

// Len returns the number of price levels
func (ob *OrderBook) Len() int {
	return ob.levels.Len()
}

// Empty reports whether the book has no levels
func (ob *OrderBook) Empty() bool {
	return ob.levels.Len() == 0
}

// OrderCount returns the number of resting orders across all levels
func (ob *OrderBook) OrderCount() int {
	count := 0
	ob.levels.Ascend(func(level *PriceLevel) bool {
		count += level.Len()
		return true
	})
	return count
}

// walk visits levels from the best price outward until fn returns false
func (ob *OrderBook) walk(fn func(*PriceLevel) bool) {
	if ob.side == BUY {
		ob.levels.Descend(fn)
	} else {
		ob.levels.Ascend(fn)
	}
}

// Snapshot copies up to depth levels, best price first. depth <= 0 means all levels.
func (ob *OrderBook) Snapshot(depth int) []LevelSnapshot {
	out := make([]LevelSnapshot, 0, ob.levels.Len())
	ob.walk(func(level *PriceLevel) bool {
		if depth > 0 && len(out) >= depth {
			return false
		}
		snap := LevelSnapshot{
			Price:           level.price,
			AggregateVolume: level.Volume(),
			OrderCount:      level.Len(),
			Orders:          make([]OrderSnapshot, 0, level.Len()),
		}
		for _, o := range level.orders {
			snap.Orders = append(snap.Orders, OrderSnapshot{
				ID:             o.ID,
				Quantity:       o.Quantity,
				FilledQuantity: o.FilledQuantity,
				Timestamp:      o.Timestamp,
			})
		}
		out = append(out, snap)
		return true
	})
	return out
}
