// Package server implements the entry point for running a detection pipeline.
package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"github.com/trip2/videodetect/config"
	"github.com/trip2/videodetect/logging"
	"github.com/trip2/videodetect/pipeline"
)

const (
	configReadTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Arguments for the command.
type Arguments struct {
	ConfigFile     string `flag:"0,required,usage=pipeline config file"`
	Debug          bool   `flag:"debug"`
	MetricsAddress string `flag:"metrics-address,usage=serve prometheus metrics on this address, overriding the config"`
}

// RunServer reads the config, runs the pipeline until the capture stream ends or ctx is cancelled,
// and releases everything on the way out.
func RunServer(ctx context.Context, args []string, logger logging.Logger) (err error) {
	var argsParsed Arguments
	if err := goutils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}
	if argsParsed.Debug {
		logger.SetLevel(logging.DEBUG)
	}

	initialReadCtx, cancel := context.WithTimeout(ctx, configReadTimeout)
	cfg, err := config.Read(initialReadCtx, argsParsed.ConfigFile, logger)
	cancel()
	if err != nil {
		return err
	}
	if !argsParsed.Debug && cfg.LogLevel != "" {
		level, err := logging.LevelFromString(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger.SetLevel(level)
	}
	if argsParsed.MetricsAddress != "" {
		cfg.MetricsAddress = argsParsed.MetricsAddress
	}

	p, err := pipeline.New(ctx, cfg, logger.Sublogger("pipeline"))
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = multierr.Combine(err, p.Close(closeCtx))
	}()

	if cfg.MetricsAddress != "" {
		stopMetrics, err := serveMetrics(cfg.MetricsAddress, p.Metrics().Handler(), logger)
		if err != nil {
			return err
		}
		defer stopMetrics()
	}

	logger.Infow("running pipeline", "config", cfg.ConfigFilePath, "run", p.ID().String())
	return p.Start(ctx)
}

// serveMetrics serves handler on /metrics until the returned function is called.
func serveMetrics(address string, handler http.Handler, logger logging.Logger) (func(), error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, errors.Wrap(err, "cannot listen for metrics")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	httpServer := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	done := make(chan struct{})
	goutils.PanicCapturingGo(func() {
		defer close(done)
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("metrics server failed", "error", err)
		}
	})
	logger.Infow("serving metrics", "address", listener.Addr().String())

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		goutils.UncheckedError(httpServer.Shutdown(shutdownCtx))
		<-done
	}, nil
}
