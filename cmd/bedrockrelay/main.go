// Command bedrockrelay runs the RakNet relay proxy: a single invocation
// with no required arguments, reading config.yml from the working
// directory and creating a defaulted one on first run, grounded on
// BedrockBridgeMain.java's shutdown-hook bootstrap.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/Sgsysysgsgsg/bedrockrelay/internal/config"
	"github.com/Sgsysysgsgsg/bedrockrelay/internal/logger"
	"github.com/Sgsysysgsgsg/bedrockrelay/internal/proxy"
)

const metricsAddr = "127.0.0.1:9132"

func main() {
	logger.Info("starting bedrockrelay")

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("fatal: %v", err)
		os.Exit(1)
	}

	p := proxy.New(cfg)
	if err := p.Start(); err != nil {
		logger.Error("fatal: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go func() {
		if err := p.ServeMetrics(ctx, metricsAddr); err != nil {
			logger.Debug("metrics server stopped: %v", err)
		}
	}()

	err = p.Listen(ctx)
	logger.Info("shutting down bedrockrelay")
	if stopErr := p.Stop(); stopErr != nil {
		logger.Error("error during shutdown: %v", stopErr)
	}
	if err != nil && err != context.Canceled {
		logger.Error("listener stopped: %v", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	mgr := config.NewManager("config.yml")
	if err := mgr.Load(); err != nil {
		return nil, err
	}
	return mgr.Current(), nil
}
