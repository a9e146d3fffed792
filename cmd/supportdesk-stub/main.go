package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"supportdesk/internal/config"
	"supportdesk/internal/logging"
	"supportdesk/internal/stubapi"
)

func main() {
	cfg, err := config.ParseStub(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	log := logging.Stderr(cfg.LogLevel)

	srv := stubapi.New(stubapi.Config{
		Prefix:           cfg.Prefix,
		AgentEmail:       cfg.AgentEmail,
		AgentPasscode:    cfg.AgentPasscode,
		CustomerEmail:    cfg.CustomerEmail,
		CustomerPasscode: cfg.CustomerPasscode,
	}, log)
	e := srv.Echo()

	go func() {
		log.WithField("addr", cfg.Addr).Info("support API stub listening")
		if err := e.Start(cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.WithError(err).Fatal("shutdown failed")
	}
}
