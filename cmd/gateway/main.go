package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"github.com/xssnick/celer-pay-gateway/gateway"
	"github.com/xssnick/celer-pay-gateway/gateway/api"
	"github.com/xssnick/celer-pay-gateway/gateway/config"
	"github.com/xssnick/celer-pay-gateway/gateway/db"
	"github.com/xssnick/celer-pay-gateway/gateway/db/leveldb"
	"github.com/xssnick/celer-pay-gateway/gateway/metrics"
	adnltransport "github.com/xssnick/celer-pay-gateway/gateway/transport/adnl"
	"github.com/xssnick/celer-pay-gateway/pkg/log"
	"github.com/xssnick/tonutils-go/adnl"
)

var ConfigPath = flag.String("config", "./config.json", "path to config, created with defaults when missing")
var Debug = flag.Bool("debug", false, "debug logs")

func main() {
	flag.Parse()

	log.Setup(*Debug, nil)

	cfg, err := config.LoadConfig(*ConfigPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
		return
	}

	log.Setup(*Debug || cfg.Log.Debug, &log.FileOutput{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	adnl.Logger = func(v ...any) {}

	metrics.RegisterMetrics(cfg.MetricsNamespace)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ldb, isNew, err := leveldb.NewDB(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("failed to open db")
		return
	}
	store := db.NewDB(ldb)
	defer store.Close()

	if isNew {
		log.Info().Str("path", cfg.DBPath).Msg("created new db")
	}

	if err = store.Bootstrap(ctx, cfg.GenesisPath); err != nil {
		log.Fatal().Err(err).Msg("failed to bootstrap db")
		return
	}

	if cfg.RetainBlocks > 0 {
		if head, err := store.Head(ctx); err == nil && head.Number > cfg.RetainBlocks {
			if err = store.Prune(ctx, head.Number-cfg.RetainBlocks); err != nil {
				log.Fatal().Err(err).Msg("failed to prune snapshots")
				return
			}
		}
	}

	q := gateway.NewQuery(store, store)

	if cfg.ADNLListenAddr != "" {
		gate := adnl.NewGateway(ed25519.NewKeyFromSeed(cfg.ADNLServerKey))
		if err = gate.StartServer(cfg.ADNLListenAddr); err != nil {
			log.Fatal().Err(err).Msg("failed to init adnl gateway")
			return
		}
		defer gate.Close()

		srv := adnltransport.NewServer(gate, q)
		defer srv.Stop()

		log.Info().Str("addr", cfg.ADNLListenAddr).Str("id", hex.EncodeToString(srv.GetOurID())).Msg("adnl transport started")
	}

	var credentials *api.Credentials
	if c := cfg.APICredentials; c != nil {
		credentials = &api.Credentials{Login: c.Login, Password: c.Password}
	}
	apiSrv := api.NewServer(cfg.APIListenAddr, q, credentials)

	go func() {
		if err := apiSrv.Start(); err != nil {
			log.Error().Err(err).Msg("api server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err = apiSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("failed to shutdown api server gracefully")
	}
}
