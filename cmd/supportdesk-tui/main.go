package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"supportdesk/internal/auth"
	"supportdesk/internal/auth/sqlitecache"
	"supportdesk/internal/config"
	"supportdesk/internal/logging"
	"supportdesk/internal/supportapi"
	"supportdesk/internal/tui"
)

func main() {
	cfg, err := config.ParseTUI(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	log, closer, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	cache, err := sqlitecache.Open(cfg.StateDB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open state db %s: %v\n", cfg.StateDB, err)
		os.Exit(1)
	}
	defer cache.Close()

	api := supportapi.New(cfg.APIURL, cfg.APIPrefix, cfg.HTTPTimeout, log)
	authn := auth.NewAuthenticator(api, cache, log)
	model := tui.New(api, authn, tui.Options{
		APIURL:        cfg.APIURL,
		HTTPTimeout:   cfg.HTTPTimeout,
		PollInterval:  cfg.PollInterval,
		IncludeClosed: cfg.IncludeClosed,
		SessionID:     cfg.SessionID,
	}, log)

	opts := []tea.ProgramOption{tea.WithMouseCellMotion()}
	if cfg.AltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	log.WithField("api_url", cfg.APIURL).Info("starting supportdesk")
	if _, err := tea.NewProgram(model, opts...).Run(); err != nil {
		log.WithError(err).Error("program exited")
		fmt.Fprintf(os.Stderr, "supportdesk-tui fatal error: %v\n", err)
		os.Exit(1)
	}
}
