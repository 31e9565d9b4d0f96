package engine

import "github.com/shopspring/decimal"

// PriceLevel represents all resting orders at a specific price, in arrival order
type PriceLevel struct {
	price  decimal.Decimal
	orders []*Order
}

func newPriceLevel(price decimal.Decimal) *PriceLevel {
	return &PriceLevel{price: price}
}

// Price returns the level's price
func (l *PriceLevel) Price() decimal.Decimal {
	return l.price
}

// Len returns the number of resting orders
func (l *PriceLevel) Len() int {
	return len(l.orders)
}

// Head returns the earliest resting order, or nil
func (l *PriceLevel) Head() *Order {
	if len(l.orders) == 0 {
		return nil
	}
	return l.orders[0]
}

// Volume returns the remaining quantity resting at this price
func (l *PriceLevel) Volume() decimal.Decimal {
	total := decimal.Zero
	for _, o := range l.orders {
		total = total.Add(o.Remaining())
	}
	return total
}

// Orders returns the queue in FIFO order. The slice is a copy; the orders are not.
func (l *PriceLevel) Orders() []*Order {
	out := make([]*Order, len(l.orders))
	copy(out, l.orders)
	return out
}

func (l *PriceLevel) append(o *Order) {
	l.orders = append(l.orders, o)
}

func (l *PriceLevel) popHead() *Order {
	if len(l.orders) == 0 {
		return nil
	}
	o := l.orders[0]
	l.orders[0] = nil
	l.orders = l.orders[1:]
	return o
}
