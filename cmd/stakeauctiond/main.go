package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stakeauction/config"
	"stakeauction/core/events"
	"stakeauction/explorer"
	"stakeauction/native/auction"
	"stakeauction/native/escrow"
	"stakeauction/native/oracle"
	"stakeauction/observability/logging"
	"stakeauction/rpc"
	"stakeauction/storage"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the service configuration file")
	ephemeral := flag.Bool("ephemeral", false, "keep all state in memory instead of LevelDB")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "path", *configPath, "err", err)
		os.Exit(1)
	}

	logger := logging.SetupWithOptions("stakeauctiond", cfg.Environment, logging.Options{
		FilePath:   cfg.LogFile,
		MaxSizeMB:  100,
		MaxBackups: 5,
		MaxAgeDays: 30,
	})

	var db storage.Database
	if *ephemeral {
		db = storage.NewMemDB()
	} else {
		ldb, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
		if err != nil {
			logger.Error("open state database", "dir", cfg.DataDir, "err", err)
			os.Exit(1)
		}
		db = ldb
	}
	defer db.Close()
	store := storage.NewStore(db)

	emitter := events.MultiEmitter{}
	var indexer *explorer.Indexer
	if cfg.AuditDB != "" {
		indexer, err = explorer.Open(cfg.AuditDB)
		if err != nil {
			logger.Error("open audit database", "path", cfg.AuditDB, "err", err)
			os.Exit(1)
		}
		defer indexer.Close()
		emitter = append(emitter, indexer)
	}

	owner, err := cfg.OwnerAddress()
	if err != nil {
		logger.Error("parse owner address", "err", err)
		os.Exit(1)
	}
	admin, err := cfg.EscrowAdminAddress()
	if err != nil {
		logger.Error("parse escrow admin address", "err", err)
		os.Exit(1)
	}
	receiver, err := cfg.EscrowReceiverAddress()
	if err != nil {
		logger.Error("parse escrow receiver address", "err", err)
		os.Exit(1)
	}
	vaultAddr := escrow.ModuleAddress("escrow-vault")
	engineAddr := escrow.ModuleAddress("auction-engine")

	vault := escrow.NewVault()
	vault.SetState(store)
	vault.SetAdmin(admin)
	vault.SetVaultAddress(vaultAddr)
	vault.SetReceiver(receiver)
	vault.SetEmitter(emitter)
	if err := vault.GrantAuctioneer(admin, engineAddr); err != nil {
		logger.Error("grant auctioneer role", "err", err)
		os.Exit(1)
	}

	engine := auction.NewEngine()
	engine.SetState(store)
	engine.SetOwner(owner)
	engine.SetVault(vault)
	engine.SetModuleAddress(engineAddr)
	engine.SetEmitter(emitter)

	seed, err := cfg.EngineConfig()
	if err != nil {
		logger.Error("parse auction config", "err", err)
		os.Exit(1)
	}
	if err := engine.BootstrapConfig(seed); err != nil {
		logger.Error("bootstrap auction config", "err", err)
		os.Exit(1)
	}

	oracles := oracle.NewRouter()

	rpcServer := rpc.NewServer(engine, vault, oracles)
	rpcServer.SetAuthToken(cfg.RPCAuthToken)
	rpcServer.SetOwner(owner)
	rpcServer.SetAdmin(admin)
	rpcServer.SetAuctioneer(engineAddr)

	opsRouter := chi.NewRouter()
	opsRouter.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	opsRouter.Handle("/metrics", promhttp.Handler())

	rpcHTTP := &http.Server{Addr: cfg.RPCAddress, Handler: rpcServer, ReadHeaderTimeout: 10 * time.Second}
	opsHTTP := &http.Server{Addr: cfg.OpsAddress, Handler: opsRouter, ReadHeaderTimeout: 10 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		logger.Info("rpc listening", "address", cfg.RPCAddress)
		errCh <- rpcHTTP.ListenAndServe()
	}()
	go func() {
		logger.Info("ops listening", "address", cfg.OpsAddress)
		errCh <- opsHTTP.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listener failed", "err", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = rpcHTTP.Shutdown(shutdownCtx)
	_ = opsHTTP.Shutdown(shutdownCtx)
	logger.Info("stopped")
}
