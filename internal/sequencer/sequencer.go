package sequencer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"order-matcher/internal/engine"

	"github.com/google/uuid"
)

// ErrStopped is returned once the event loop is no longer running
var ErrStopped = errors.New("sequencer stopped")

// Config controls the event loop
type Config struct {
	InboxSize int
	// VerifyInvariants checks the books and the orders each submit touched.
	// Cost grows with the number of resting orders.
	VerifyInvariants bool
	DumpPath         string
}

type command struct {
	fn   func(*engine.MatchingEngine)
	done chan struct{}
}

// Sequencer is the only goroutine that touches the matching engine.
// Submissions and reads are queued on the inbox and executed one at a time in arrival order.
type Sequencer struct {
	inbox   chan command
	stopped chan struct{}
	engine  *engine.MatchingEngine
	cfg     Config
	log     *slog.Logger

	// Boundary: receives the trades of every submit, on the loop goroutine
	onTrades func([]engine.Trade)

	verify func(*engine.OrderResult) error
	now    func() time.Time
	lastTS int64

	processed atomic.Uint64
}

// New creates a sequencer owning me. onTrades may be nil.
func New(me *engine.MatchingEngine, cfg Config, log *slog.Logger, onTrades func([]engine.Trade)) *Sequencer {
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sequencer{
		inbox:    make(chan command, cfg.InboxSize),
		stopped:  make(chan struct{}),
		engine:   me,
		cfg:      cfg,
		log:      log,
		onTrades: onTrades,
		verify:   me.CheckAfterSubmit,
		now:      time.Now,
	}
}

// Run processes commands until ctx is cancelled. It MUST be called from a single goroutine.
func (s *Sequencer) Run(ctx context.Context) {
	s.log.Info("sequencer started", slog.Int("inbox_size", cap(s.inbox)))

	defer close(s.stopped)
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("SEQUENCER_HALTED", slog.Any("panic", r))
			if s.cfg.DumpPath != "" {
				s.dumpState(s.cfg.DumpPath)
			}
			panic(fmt.Sprintf("sequencer halted: %v", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sequencer stopping", slog.Uint64("orders_processed", s.processed.Load()))
			return
		case cmd := <-s.inbox:
			cmd.fn(s.engine)
			close(cmd.done)
		}
	}
}

// do queues fn and waits for the loop to run it. Once queued, fn runs to completion
// even if ctx is cancelled in the meantime.
func (s *Sequencer) do(ctx context.Context, fn func(*engine.MatchingEngine)) error {
	cmd := command{fn: fn, done: make(chan struct{})}
	select {
	case <-s.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	case s.inbox <- cmd:
	}

	select {
	case <-cmd.done:
		return nil
	case <-s.stopped:
		select {
		case <-cmd.done:
			return nil
		default:
			return ErrStopped
		}
	}
}

// Submit stamps req with an id and arrival time and matches it
func (s *Sequencer) Submit(ctx context.Context, req engine.NewOrderRequest) (*engine.OrderResult, error) {
	var (
		result *engine.OrderResult
		err    error
	)
	if qerr := s.do(ctx, func(me *engine.MatchingEngine) {
		result, err = s.submit(me, req)
	}); qerr != nil {
		return nil, qerr
	}
	return result, err
}

func (s *Sequencer) submit(me *engine.MatchingEngine, req engine.NewOrderRequest) (*engine.OrderResult, error) {
	if req.UserID == "" {
		req.UserID = uuid.NewString()
	}

	// Arrival times never go backwards, so FIFO order within a level matches timestamps
	ts := s.now().UnixMilli()
	if ts < s.lastTS {
		ts = s.lastTS
	}
	s.lastTS = ts

	order := engine.NewOrder(req, uuid.NewString(), ts)
	result, err := me.Submit(order)
	if err != nil {
		return nil, err
	}
	s.processed.Add(1)

	if s.cfg.VerifyInvariants {
		if verr := s.verify(result); verr != nil {
			s.log.Error("INVARIANT_VIOLATION",
				slog.String("order_id", order.ID),
				slog.Any("error", verr),
			)
			panic(verr)
		}
	}

	s.log.Debug("order processed",
		slog.String("order_id", order.ID),
		slog.String("side", string(order.Side)),
		slog.String("price", order.Price.String()),
		slog.String("quantity", order.Quantity.String()),
		slog.String("status", string(result.Status)),
		slog.Int("trades", len(result.Trades)),
	)

	if len(result.Trades) > 0 && s.onTrades != nil {
		s.onTrades(result.Trades)
	}
	return result, nil
}

// Books returns a consistent snapshot of both books
func (s *Sequencer) Books(ctx context.Context, depth int) (engine.BooksSnapshot, error) {
	var snap engine.BooksSnapshot
	err := s.do(ctx, func(me *engine.MatchingEngine) {
		snap = me.Books(depth)
	})
	return snap, err
}

// Trades returns every trade executed so far
func (s *Sequencer) Trades(ctx context.Context) ([]engine.Trade, error) {
	var trades []engine.Trade
	err := s.do(ctx, func(me *engine.MatchingEngine) {
		trades = me.Trades()
	})
	return trades, err
}

// Order returns the current state of an order
func (s *Sequencer) Order(ctx context.Context, id string) (engine.Order, bool, error) {
	var (
		order engine.Order
		found bool
	)
	err := s.do(ctx, func(me *engine.MatchingEngine) {
		order, found = me.Order(id)
	})
	return order, found, err
}

// Processed returns the number of orders accepted by the engine
func (s *Sequencer) Processed() uint64 {
	return s.processed.Load()
}

// dumpState writes the engine state to filename for post-mortem. Loop goroutine only.
func (s *Sequencer) dumpState(filename string) {
	s.log.Info("dumping engine state", slog.String("file", filename))

	data := struct {
		Processed uint64               `json:"processed"`
		Books     engine.BooksSnapshot `json:"books"`
		Trades    []engine.Trade       `json:"trades"`
	}{
		Processed: s.processed.Load(),
		Books:     s.engine.Books(0),
		Trades:    s.engine.Trades(),
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		s.log.Error("failed to marshal state", slog.Any("error", err))
		return
	}
	if err := os.WriteFile(filename, b, 0644); err != nil {
		s.log.Error("failed to write state dump", slog.Any("error", err))
	}
}
