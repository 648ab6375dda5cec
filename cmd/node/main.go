package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/bookhook/params"
	"github.com/uhyunpark/bookhook/pkg/api"
	"github.com/uhyunpark/bookhook/pkg/app/amm"
	"github.com/uhyunpark/bookhook/pkg/app/core/fixed"
	"github.com/uhyunpark/bookhook/pkg/app/manager"
	"github.com/uhyunpark/bookhook/pkg/events"
	"github.com/uhyunpark/bookhook/pkg/hooks"
	"github.com/uhyunpark/bookhook/pkg/metrics"
	"github.com/uhyunpark/bookhook/pkg/p2p"
	"github.com/uhyunpark/bookhook/pkg/storage"
	"github.com/uhyunpark/bookhook/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	logger, closeLog, err := util.NewLoggerWithFile(cfg.Node.LogFile, util.ParseLevel(cfg.Node.LogLevel))
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer closeLog()
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile, "level", cfg.Node.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Storage ----
	store, err := storage.NewPebbleStore(filepath.Join(cfg.Node.DataDir, "db"))
	if err != nil {
		sugar.Fatalw("store_open_failed", "dir", cfg.Node.DataDir, "err", err)
	}
	defer store.Close()

	wal, err := storage.NewFileWAL(cfg.Node.TxLogFile)
	if err != nil {
		sugar.Fatalw("tx_log_open_failed", "path", cfg.Node.TxLogFile, "err", err)
	}
	defer wal.Close()

	m := metrics.New("bookhook")
	bus := events.NewBus(sugar.Named("events"), m, cfg.Events.Buffer)

	// ---- Hook + AMM ----
	opts := []hooks.Option{
		hooks.WithStore(store),
		hooks.WithMetrics(m),
		hooks.WithPublisher(bus),
	}
	if cfg.Hook.FeeOverridePips > 0 {
		opts = append(opts, hooks.WithFeePolicy(hooks.StaticFeePolicy{Pips: cfg.Hook.FeeOverridePips}))
	}
	if !common.IsHexAddress(cfg.Hook.Address) {
		sugar.Fatalw("invalid_hook_address", "address", cfg.Hook.Address)
	}
	hookAddr := common.HexToAddress(cfg.Hook.Address)
	controller := hooks.NewController(hooks.Config{
		Address:          hookAddr,
		MaxLevelsPerSwap: cfg.Hook.MaxLevelsPerSwap,
		MaxOrdersPerBook: cfg.Hook.MaxOrdersPerBook,
		Eviction:         hooks.EvictionPolicy(cfg.Hook.EvictionPolicy),
	}, sugar.Named("hook"), opts...)

	pricer := amm.NewFixedPrice()
	mgr := manager.New(manager.Config{Network: cfg.Node.Network}, controller, pricer, sugar.Named("manager"),
		manager.WithTxStore(store),
		manager.WithWAL(wal),
	)

	if err := restore(store, controller, mgr, sugar); err != nil {
		sugar.Fatalw("restore_failed", "err", err)
	}

	// ---- API Server ----
	defaultPrice, err := fixed.FromDecimalString(cfg.Node.DevPoolPrice)
	if err != nil {
		sugar.Fatalw("invalid_dev_pool_price", "value", cfg.Node.DevPoolPrice, "err", err)
	}
	apiServer := api.NewServer(api.Config{
		AllowedOrigins: cfg.Node.CORSOrigins,
		DefaultPrice:   defaultPrice,
	}, controller, mgr, m, sugar.Named("api"))
	hub := apiServer.Hub()
	bus.Add(hub)

	// ---- Event sinks (optional) ----
	if cfg.Events.NATSURL != "" {
		sink, err := events.ConnectNATS(cfg.Events.NATSURL, sugar.Named("nats"))
		if err != nil {
			sugar.Fatalw("nats_connect_failed", "url", cfg.Events.NATSURL, "err", err)
		}
		defer sink.Close()
		bus.Add(sink)
	}
	if cfg.Events.P2PListen != "" {
		gossip, err := p2p.NewGossip(ctx, p2p.Libp2pConfig{
			ListenAddr: cfg.Events.P2PListen,
			Bootstrap:  cfg.Events.P2PBootstrap,
			Logger:     sugar.Named("p2p"),
			OnRemote:   hub.Deliver,
		})
		if err != nil {
			sugar.Fatalw("libp2p_init_failed", "err", err)
		}
		defer gossip.Close()
		bus.Add(gossip)
	}

	go bus.Run(ctx)
	go hub.Run(ctx)

	go func() {
		if err := apiServer.Start(cfg.Node.APIAddr); err != nil {
			sugar.Errorw("api_server_failed", "err", err)
			stop()
		}
	}()

	sugar.Infow("node_started",
		"hook", cfg.Hook.Address,
		"network", cfg.Node.Network,
		"api", cfg.Node.APIAddr,
		"eviction", cfg.Hook.EvictionPolicy,
		"max_levels_per_swap", cfg.Hook.MaxLevelsPerSwap)

	<-ctx.Done()
	sugar.Info("shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("api_shutdown_failed", "err", err)
	}
}

// restore rebuilds every persisted pool in the hook and seeds the AMM with the
// price each active pool was initialized at.
func restore(store *storage.PebbleStore, controller *hooks.Controller, mgr *manager.Manager, log *zap.SugaredLogger) error {
	states, err := store.LoadPools()
	if err != nil {
		return err
	}
	for _, st := range states {
		if err := controller.Restore(st); err != nil {
			return err
		}
		if !st.Active || st.InitPrice == "" {
			continue
		}
		price, err := fixed.ParseRaw(st.InitPrice)
		if err != nil {
			return err
		}
		if err := mgr.Restore(st.Key, price); err != nil {
			return err
		}
		log.Infow("pool_restored", "pool", st.Key.ID().Hex(), "orders", len(st.Orders))
	}
	return nil
}
