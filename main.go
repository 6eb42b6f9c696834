package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/hlcollector/liqmap/aggregator"
	"github.com/hlcollector/liqmap/config"
	"github.com/hlcollector/liqmap/logger"
	"github.com/hlcollector/liqmap/marketdata"
	"github.com/hlcollector/liqmap/orchestrator"
	"github.com/hlcollector/liqmap/registry"
	"github.com/hlcollector/liqmap/scanner"
	"github.com/hlcollector/liqmap/store"
	"github.com/hlcollector/liqmap/venue"
)

func main() {
	continuous := flag.Bool("continuous", false, "run collection on a repeating interval instead of once")
	once := flag.Bool("once", false, "run a single collection cycle and exit (default when neither flag is set)")
	flag.Parse()

	cfg := config.Load()
	log := logger.New(cfg)

	log.Info().Str("env", cfg.Env).Msg("liquidation map collector starting")

	client := venue.New(cfg, log)
	defer client.Close()

	reg := registry.New(cfg, log)
	if err := reg.Load(); err != nil {
		log.Warn().Err(err).Msg("failed to load wallet registry, starting empty")
	}

	sc := scanner.New(cfg, client, log)
	agg := aggregator.New(cfg)
	market := marketdata.New(client, log)

	historical, err := store.Open(cfg.DatabasePath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open historical store")
	}
	defer historical.Close()

	orch := orchestrator.New(cfg, client, reg, sc, agg, market, historical, log)

	if *once || !*continuous {
		if _, err := orch.RunOnce(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("collection cycle failed")
		}
		log.Info().Msg("collection cycle complete, exiting")
		return
	}

	stream := venue.NewTradeStream(cfg, cfg.Assets, log)

	ctx, cancel := context.WithCancel(context.Background())
	orch.Start(ctx, stream)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Info().Msg("shutdown signal received")
	cancel()
	orch.Stop()

	if err := reg.Save(); err != nil {
		log.Error().Err(err).Msg("failed to save wallet registry on shutdown")
	}
	log.Info().Msg("collector stopped gracefully")
}
