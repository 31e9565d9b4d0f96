package engine

// TradeLog is the append-only record of executed trades, in match order
type TradeLog struct {
	trades []Trade
}

// NewTradeLog creates an empty trade log
func NewTradeLog() *TradeLog {
	return &TradeLog{trades: make([]Trade, 0, 256)}
}

// Append records a trade
func (tl *TradeLog) Append(trade Trade) {
	tl.trades = append(tl.trades, trade)
}

// Len returns the number of trades recorded so far
func (tl *TradeLog) Len() int {
	return len(tl.trades)
}

// All returns a copy of every trade recorded so far
func (tl *TradeLog) All() []Trade {
	return tl.Since(0)
}

// Since returns a copy of the trades recorded at or after index n
func (tl *TradeLog) Since(n int) []Trade {
	if n < 0 {
		n = 0
	}
	if n >= len(tl.trades) {
		return []Trade{}
	}
	out := make([]Trade, len(tl.trades)-n)
	copy(out, tl.trades[n:])
	return out
}
