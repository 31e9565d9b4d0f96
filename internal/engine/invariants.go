package engine

import "fmt"

// CheckInvariants verifies the book state matching relies on and the fill state of
// every order the engine has accepted. It returns the first *InvariantViolation found,
// or nil.
func (me *MatchingEngine) CheckInvariants() error {
	if err := me.checkBooks(); err != nil {
		return err
	}
	for _, o := range me.orders {
		if err := checkOrder(o); err != nil {
			return err
		}
	}
	return nil
}

// CheckAfterSubmit is CheckInvariants limited to the orders one submission touched:
// the books plus the incoming order and every counterparty in result's trades.
func (me *MatchingEngine) CheckAfterSubmit(result *OrderResult) error {
	if err := me.checkBooks(); err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	ids := make([]string, 0, 1+2*len(result.Trades))
	ids = append(ids, result.OrderID)
	for _, t := range result.Trades {
		ids = append(ids, t.BuyOrderID, t.SellOrderID)
	}
	for _, id := range ids {
		o, ok := me.orders[id]
		if !ok {
			continue
		}
		if err := checkOrder(o); err != nil {
			return err
		}
	}
	return nil
}

func (me *MatchingEngine) checkBooks() error {
	for _, book := range []*OrderBook{me.bids, me.asks} {
		if err := checkBook(book); err != nil {
			return err
		}
	}

	bid, hasBid := me.BestBid()
	ask, hasAsk := me.BestAsk()
	if hasBid && hasAsk && !bid.LessThan(ask) {
		return &InvariantViolation{
			Rule:   "crossed-book",
			Detail: fmt.Sprintf("best bid %s >= best ask %s", bid, ask),
		}
	}
	return nil
}

func checkBook(book *OrderBook) error {
	var err error
	book.levels.Ascend(func(level *PriceLevel) bool {
		if level.Len() == 0 {
			err = &InvariantViolation{
				Rule:   "empty-level",
				Detail: fmt.Sprintf("%s level at %s has no orders", book.side, level.price),
			}
			return false
		}
		var prev int64
		for i, o := range level.orders {
			switch {
			case o.Side != book.side:
				err = &InvariantViolation{Rule: "wrong-side", Detail: fmt.Sprintf("order %s rests in the %s book", o.ID, book.side)}
			case !o.Price.Equal(level.price):
				err = &InvariantViolation{Rule: "wrong-level", Detail: fmt.Sprintf("order %s priced %s rests at %s", o.ID, o.Price, level.price)}
			case o.Status == FILLED:
				err = &InvariantViolation{Rule: "filled-resting", Detail: fmt.Sprintf("filled order %s still rests at %s", o.ID, level.price)}
			case i > 0 && o.Timestamp < prev:
				err = &InvariantViolation{Rule: "fifo", Detail: fmt.Sprintf("order %s arrived before its predecessor at %s", o.ID, level.price)}
			}
			if err != nil {
				return false
			}
			prev = o.Timestamp
		}
		return true
	})
	return err
}

func checkOrder(o *Order) error {
	if o.FilledQuantity.IsNegative() || o.FilledQuantity.GreaterThan(o.Quantity) {
		return &InvariantViolation{
			Rule:   "fill-bounds",
			Detail: fmt.Sprintf("order %s filled %s of %s", o.ID, o.FilledQuantity, o.Quantity),
		}
	}

	var want OrderStatus
	switch {
	case o.FilledQuantity.Equal(o.Quantity):
		want = FILLED
	case o.FilledQuantity.IsPositive():
		want = PARTIALLY_FILLED
	default:
		want = OPEN
	}
	if o.Status != want {
		return &InvariantViolation{
			Rule:   "status",
			Detail: fmt.Sprintf("order %s is %s with %s of %s filled", o.ID, o.Status, o.FilledQuantity, o.Quantity),
		}
	}
	return nil
}
