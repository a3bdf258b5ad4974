package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rpcmux/rpcmux/common"
	"github.com/rpcmux/rpcmux/rpcmux"
	"github.com/rpcmux/rpcmux/server"
	"github.com/rpcmux/rpcmux/util"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

func main() {
	shutdown, err := Init(afero.NewOsFs(), os.Args)
	if err != nil {
		log.Error().Msgf("failed to start rpcmux: %v", err)
		util.OsExit(util.ExitCodeStartFailed)
	}
	defer shutdown()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	recvSig := <-sig
	log.Warn().Msgf("caught signal: %v", recvSig)
}

func Init(fs afero.Fs, args []string) (func(), error) {
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	configPath := "./rpcmux.yaml"
	if len(args) > 1 {
		configPath = args[1]
	}

	if _, err := fs.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config file '%s' does not exist", configPath)
	}

	log.Info().Msgf("loading configuration from %s", configPath)

	cfg, err := common.LoadConfig(fs, configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		log.Warn().Msgf("invalid log level '%s', defaulting to 'info': %s", cfg.LogLevel, err)
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	} else {
		zerolog.SetGlobalLevel(level)
	}

	appCtx, cancel := context.WithCancel(context.Background())

	app, err := rpcmux.NewApp(&log.Logger, cfg)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("cannot bootstrap rpcmux: %w", err)
	}
	app.Start(appCtx)

	srv := server.NewHttpServer(&log.Logger, app)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server failed")
			util.OsExit(util.ExitCodeStartFailed)
		}
	}()

	return func() {
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("http server shutdown failed")
		}
	}, nil
}
