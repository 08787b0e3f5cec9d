package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"telebridge/internal/broker"
	"telebridge/internal/chat"
	"telebridge/internal/config"
	"telebridge/internal/dispatcher"
	"telebridge/internal/domain"
	"telebridge/internal/executor"
	"telebridge/internal/httpapi"
	"telebridge/internal/journal"
	"telebridge/internal/leverage"
	"telebridge/internal/notify"
	"telebridge/internal/settings"
	"telebridge/internal/sizing"
	"telebridge/internal/symbols"
	"telebridge/internal/util"
)

func main() {
	_ = godotenv.Load()

	cfgPath := "config/telebridge.yaml"
	if p := os.Getenv("TELEBRIDGE_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, logLevel := util.NewLeveledLogger(cfg.Logging.Level)
	util.SetDefault(logger)

	store, err := settings.NewStore(cfg.Storage.ConfigDir, logger)
	if err != nil {
		log.Fatalf("failed to open settings store: %v", err)
	}

	// A deployment with nothing to listen to is misconfigured; refuse to
	// start rather than run silently.
	channels, err := store.Channels()
	if err != nil {
		log.Fatalf("failed to load channel binding: %v", err)
	}
	if len(channels.Active()) == 0 {
		log.Fatal("no active chat channels configured")
	}

	loc := time.Local
	if cfg.Trading.Timezone != "" {
		loc, err = time.LoadLocation(cfg.Trading.Timezone)
		if err != nil {
			log.Fatalf("invalid timezone %q: %v", cfg.Trading.Timezone, err)
		}
	}

	terminal := broker.NewBridge(cfg.Terminal.BaseURL, time.Duration(cfg.Terminal.TimeoutSeconds)*time.Second)
	sess := broker.NewSession(terminal, store, logger, loc)

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Notify.Player != "" {
		notifier = notify.NewSound(cfg.Notify.Player, cfg.Notify.SuccessSound, cfg.Notify.ErrorSound, logger)
	}

	jrn, err := journal.Open(cfg.Storage.JournalPath)
	if err != nil {
		log.Fatalf("failed to open journal: %v", err)
	}
	defer jrn.Close()

	sizer := sizing.NewSizer(sess, leverage.NewResolver(store, logger), logger)
	exec := executor.New(sess, sizer, notifier, logger, executor.Options{
		Deviation: cfg.Trading.Deviation,
		Magic:     cfg.Trading.Magic,
		Comment:   cfg.Trading.Comment,
	})
	disp := dispatcher.New(store, symbols.NewResolver(terminal, logger), exec, jrn, notifier, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Session loss is recoverable: the executor reconnects on the next
	// signal, so a failed initial connect only warns.
	if err := sess.Connect(ctx); err != nil {
		logger.Warn("initial broker connect failed, will retry on first signal", "error", err)
	}

	api := httpapi.NewServer(store, sess, disp, jrn, logLevel, logger)
	httpSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: api.Handler(),
	}
	go func() {
		logger.Info("operator API listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("operator API failed", "error", err)
		}
	}()

	messages := make(chan domain.InboundMessage, 64)
	listener := chat.NewListener(cfg.Chat.URL, store, logger)
	listenErr := make(chan error, 1)
	go func() { listenErr <- listener.Run(ctx, messages) }()

	logger.Info("telebridge started", "channels", channels.Active())

	dispErr := make(chan error, 1)
	go func() { dispErr <- disp.Run(ctx, messages) }()

	select {
	case <-ctx.Done():
	case err := <-listenErr:
		logger.Error("chat listener stopped", "error", err)
		cancel()
	case err := <-dispErr:
		logger.Error("dispatcher stopped", "error", err)
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	_ = terminal.Shutdown(shutdownCtx)

	logger.Info("telebridge stopped")
}
