package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"order-matcher/internal/api"
	"order-matcher/internal/config"
	"order-matcher/internal/engine"
	"order-matcher/internal/feed"
	"order-matcher/internal/logger"
	"order-matcher/internal/sequencer"
	"order-matcher/internal/storage"
	"order-matcher/internal/stream"

	"github.com/shopspring/decimal"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the yaml config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("order matcher stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	// 1. Configuration and logging
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	log, logCloser := logger.New(logger.Options{
		Level:      cfg.Logging.Level,
		Dir:        cfg.Logging.Dir,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	defer logCloser.Close()
	slog.SetDefault(log)

	// Prices and quantities go over the wire as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true

	// 2. Trade sinks
	var (
		sinks   []feed.Sink
		closers []io.Closer
		trades  *stream.TradeStream
	)
	if cfg.Stream.Enabled {
		trades = stream.NewTradeStream(cfg.Stream.Buffer, log)
		sinks = append(sinks, trades)
	}
	if cfg.Journal.Enabled {
		journal, err := storage.Open(cfg.Journal.Path)
		if err != nil {
			return err
		}
		closers = append(closers, journal)
		sinks = append(sinks, journal)
		log.Info("trade journal enabled", slog.String("path", cfg.Journal.Path))
	}
	if cfg.Kafka.Enabled {
		producer := feed.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		closers = append(closers, producer)
		sinks = append(sinks, producer)
		log.Info("kafka trade feed enabled",
			slog.Any("brokers", cfg.Kafka.Brokers),
			slog.String("topic", cfg.Kafka.Topic),
		)
	}
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				log.Error("failed to close sink", slog.Any("error", err))
			}
		}
	}()

	dispatcher := feed.NewDispatcher(cfg.Feed.Buffer, log, sinks...)

	// 3. Engine behind the single-writer sequencer
	seq := sequencer.New(engine.NewMatchingEngine(), sequencer.Config{
		InboxSize:        cfg.Engine.InboxSize,
		VerifyInvariants: cfg.Engine.VerifyInvariants,
		DumpPath:         cfg.Engine.DumpPath,
	}, log, func(executed []engine.Trade) {
		dispatcher.Send(executed)
	})

	engineCtx, stopEngine := context.WithCancel(context.Background())
	feedCtx, stopFeed := context.WithCancel(context.Background())
	engineDone := make(chan struct{})
	feedDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		seq.Run(engineCtx)
	}()
	go func() {
		defer close(feedDone)
		dispatcher.Run(feedCtx)
	}()

	// 4. HTTP
	opts := api.Options{
		PriceScale:    cfg.Engine.PriceScale,
		QuantityScale: cfg.Engine.QuantityScale,
	}
	if trades != nil {
		opts.TradeStream = trades
	}
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewServer(seq, opts, log).Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Info("order matcher listening",
			slog.String("addr", cfg.Server.Addr),
			slog.String("version", cfg.App.Version),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down gracefully")
	case err = <-serveErr:
	}

	// In-flight requests finish before the engine stops; the feed flushes last
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		log.Error("http shutdown failed", slog.Any("error", serr))
	}
	stopEngine()
	<-engineDone
	stopFeed()
	<-feedDone

	log.Info("order matcher stopped",
		slog.Uint64("orders_processed", seq.Processed()),
		slog.Uint64("feed_batches_dropped", dispatcher.Dropped()),
	)
	return err
}
