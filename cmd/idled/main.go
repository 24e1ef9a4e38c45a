package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"idlegame/engine/internal/clock"
	"idlegame/engine/internal/commands"
	"idlegame/engine/internal/config"
	"idlegame/engine/internal/engine"
	"idlegame/engine/internal/httpapi"
	"idlegame/engine/internal/journal"
	"idlegame/engine/internal/logging"
	"idlegame/engine/internal/persistence"
	"idlegame/engine/internal/rpc"
	"idlegame/engine/internal/session"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logging:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, logger, clock.Real{}, clock.TickerScheduler{})
	if err != nil {
		logger.Error("startup failed", logging.Error(err))
		os.Exit(1)
	}
	if err := a.run(ctx); err != nil {
		logger.Error("idled stopped with error", logging.Error(err))
		os.Exit(1)
	}
}

// app owns every long-lived component of the daemon.
type app struct {
	cfg     *config.Config
	log     *logging.Logger
	game    *session.Session
	journal *journal.Writer

	httpServer   *http.Server
	httpListener net.Listener
	grpcServer   *grpc.Server
	grpcListener net.Listener
}

func newApp(cfg *config.Config, logger *logging.Logger, clk clock.Clock, sched clock.Scheduler) (*app, error) {
	a := &app{cfg: cfg, log: logger}

	//1.- Durable storage, unless the game is ephemeral.
	var store persistence.Store
	if cfg.Ephemeral {
		store = persistence.NewMemoryStore()
		logger.Info("ephemeral mode: saves are kept in memory")
	} else {
		codec, err := persistence.CodecByName(cfg.Codec)
		if err != nil {
			return nil, err
		}
		fileStore, err := persistence.NewFileStore(cfg.SaveDir, codec)
		if err != nil {
			return nil, fmt.Errorf("open save dir: %w", err)
		}
		store = fileStore
		logger.Info("file store ready", logging.String("path", fileStore.Path(cfg.SaveKey)), logging.String("codec", codec.Name()))
	}
	adapter := persistence.NewAdapter(store, clk, persistence.WithKey(cfg.SaveKey))
	machine := engine.NewMachine(adapter, clk, logger.With(logging.String("component", "engine")))

	//2.- The journal observes every applied action from the loop goroutine.
	var hooks []func(session.Update)
	if cfg.JournalPath != "" {
		writer, err := journal.Open(cfg.JournalPath, clk.Now)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		a.journal = writer
		journalLog := logger.With(logging.String("component", "journal"))
		hooks = append(hooks, func(update session.Update) {
			entry := journal.Entry{
				CommandID:  update.CommandID,
				Action:     update.Action,
				At:         update.At,
				Counter:    update.State.Counter.String(),
				Production: update.State.Production.String(),
			}
			if update.State.HasSaved() {
				entry.LastSaved = update.State.LastSavedAt.UnixMilli()
			}
			if err := writer.Append(entry); err != nil {
				journalLog.Warn("journal append failed", logging.Error(err))
			}
		})
	}

	a.game = session.New(machine, clk, sched, logger.With(logging.String("component", "session")), session.Options{
		TickInterval:     cfg.TickInterval,
		AutosaveInterval: cfg.AutosaveInterval,
		QueueSize:        cfg.QueueSize,
		SaveOnClose:      cfg.SaveOnExit,
		Hooks:            hooks,
	})

	//3.- Outer surfaces.
	limiter := httpapi.NewSlidingWindowLimiter(cfg.ManualSaveWindow, cfg.ManualSaveBurst, clk.Now)
	handlers := httpapi.NewHandlerSet(httpapi.Options{
		Logger:         logger.With(logging.String("component", "http")),
		Game:           a.game,
		RateLimiter:    limiter,
		AllowedOrigins: cfg.AllowedOrigins,
	})
	listener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		a.closeJournal()
		return nil, fmt.Errorf("listen http: %w", err)
	}
	a.httpListener = listener
	a.httpServer = &http.Server{Handler: handlers.Router(), ReadHeaderTimeout: 5 * time.Second}

	if cfg.GRPCAddr != "" {
		grpcListener, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			_ = listener.Close()
			a.closeJournal()
			return nil, fmt.Errorf("listen grpc: %w", err)
		}
		rpcLog := logger.With(logging.String("component", "grpc"))
		a.grpcListener = grpcListener
		a.grpcServer = grpc.NewServer(rpc.ServerOptions(cfg.GRPCSecret, rpcLog)...)
		rpc.Register(a.grpcServer, rpc.NewServer(a.game, rpcLog))
	}
	return a, nil
}

// run starts the game and serves until ctx is cancelled or a server fails.
func (a *app) run(ctx context.Context) error {
	a.game.Start()
	if a.cfg.LoadOnStart {
		if _, err := a.game.Do(ctx, commands.Load{ID: "startup"}); err != nil {
			a.log.Warn("startup load skipped", logging.Error(err))
		}
	}

	errCh := make(chan error, 2)
	go func() {
		a.log.Info("http listening", logging.String("addr", a.httpListener.Addr().String()))
		if err := a.httpServer.Serve(a.httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()
	if a.grpcServer != nil {
		go func() {
			a.log.Info("grpc listening", logging.String("addr", a.grpcListener.Addr().String()))
			if err := a.grpcServer.Serve(a.grpcListener); err != nil {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown requested")
	case runErr = <-errCh:
	}
	return errors.Join(runErr, a.shutdown())
}

func (a *app) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	//1.- Closing the session first ends live streams and runs the final save.
	var errs []error
	if err := a.game.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close session: %w", err))
	}
	if err := a.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if a.grpcServer != nil {
		a.grpcServer.GracefulStop()
	}
	if err := a.closeJournal(); err != nil {
		errs = append(errs, fmt.Errorf("close journal: %w", err))
	}
	a.log.Info("idled stopped")
	return errors.Join(errs...)
}

func (a *app) closeJournal() error {
	if a.journal == nil {
		return nil
	}
	return a.journal.Close()
}
