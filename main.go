package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"skyshield/interceptor/internal/config"
	"skyshield/interceptor/internal/logging"
)

// shutdownGrace bounds how long the HTTP server may drain on exit.
const shutdownGrace = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("configure logging: %v", err)
	}
	defer logger.Sync()
	logging.ReplaceGlobals(logger)

	app, err := newApp(cfg, logger)
	if err != nil {
		logger.Fatal("build interceptor", logging.Error(err))
	}

	app.Start()
	app.publishSystem("startup", cfg.Address)

	server := &http.Server{Addr: cfg.Address, Handler: newHandler(app, logger)}
	go func() {
		logger.Info("interceptor listening",
			logging.String("url", listenerURL(cfg.Address)),
			logging.Bool("simulation", cfg.Simulation),
			logging.Bool("paused", cfg.StartPaused))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", logging.Error(err))
		}
	}()

	//1.- The shell owns stdin; EOF keeps a detached daemon alive, quit stops it.
	quit := make(chan struct{})
	go func() {
		if app.shellLoop(os.Stdin, os.Stdout) {
			close(quit)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-stop:
		logger.Info("signal received", logging.String("signal", sig.String()))
	case <-quit:
		logger.Info("shell quit requested")
	}

	//2.- Stop accepting work, then drain the loops and close the session.
	app.publishSystem("shutdown", "")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", logging.Error(err))
		_ = server.Close()
	}
	app.Stop()
	logger.Info("interceptor stopped")
}
