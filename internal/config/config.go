// Package config resolves command-line flags for the supportdesk binaries.
// Every flag defaults to an environment variable, then values are clamped
// into range.
package config

import (
	"flag"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAPIURL         = "http://127.0.0.1:8000"
	defaultAPIPrefix      = "/v1"
	defaultStubAddr       = ":8000"
	defaultAgentEmail     = "agent@supportdesk.local"
	defaultAgentSecret    = "agent"
	defaultCustomerEmail  = "customer@supportdesk.local"
	defaultCustomerSecret = "customer"
)

// TUI configures cmd/supportdesk-tui.
type TUI struct {
	APIURL        string
	APIPrefix     string
	HTTPTimeout   time.Duration
	PollInterval  time.Duration
	StateDB       string
	LogFile       string
	LogLevel      string
	SessionID     string
	IncludeClosed bool
	AltScreen     bool
}

// Stub configures cmd/supportdesk-stub.
type Stub struct {
	Addr             string
	Prefix           string
	AgentEmail       string
	AgentPasscode    string
	CustomerEmail    string
	CustomerPasscode string
	LogLevel         string
}

func ParseTUI(args []string) (TUI, error) {
	fs := flag.NewFlagSet("supportdesk-tui", flag.ContinueOnError)
	cfg := TUI{}
	fs.StringVar(&cfg.APIURL, "api-url", envOr("SUPPORTDESK_API_URL", defaultAPIURL), "Support API base URL")
	fs.StringVar(&cfg.APIPrefix, "api-prefix", envOr("SUPPORTDESK_API_PREFIX", defaultAPIPrefix), "Versioned API path prefix")
	timeoutSeconds := envOrInt("SUPPORTDESK_HTTP_TIMEOUT", 20)
	fs.IntVar(&timeoutSeconds, "http-timeout", timeoutSeconds, "Per-request timeout seconds")
	pollIntervalSeconds := envOrInt("SUPPORTDESK_POLL_INTERVAL", 5)
	fs.IntVar(&pollIntervalSeconds, "poll-interval", pollIntervalSeconds, "Refresh interval seconds")
	fs.StringVar(&cfg.StateDB, "state-db", envOr("SUPPORTDESK_STATE_DB", defaultStateDB()), "SQLite file holding the signed-in identity")
	fs.StringVar(&cfg.LogFile, "log-file", envOr("SUPPORTDESK_LOG_FILE", ""), "Log file path (empty disables logging)")
	fs.StringVar(&cfg.LogLevel, "log-level", envOr("SUPPORTDESK_LOG_LEVEL", "info"), "Log level")
	fs.StringVar(&cfg.SessionID, "session-id", "", "Open this session (customer) or escalation (agent) on start")
	fs.BoolVar(&cfg.IncludeClosed, "include-closed", envOrBool("SUPPORTDESK_INCLUDE_CLOSED", false), "List closed sessions too")
	fs.BoolVar(&cfg.AltScreen, "alt-screen", true, "Use alternate screen buffer")
	if err := fs.Parse(args); err != nil {
		return TUI{}, err
	}

	cfg.APIURL = strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if cfg.APIURL == "" {
		cfg.APIURL = defaultAPIURL
	}
	cfg.APIPrefix = strings.TrimSpace(cfg.APIPrefix)
	cfg.HTTPTimeout = time.Duration(clampInt(timeoutSeconds, 1, 120)) * time.Second
	cfg.PollInterval = time.Duration(clampInt(pollIntervalSeconds, 1, 120)) * time.Second
	cfg.StateDB = strings.TrimSpace(cfg.StateDB)
	cfg.LogFile = strings.TrimSpace(cfg.LogFile)
	cfg.SessionID = strings.TrimSpace(cfg.SessionID)
	return cfg, nil
}

func ParseStub(args []string) (Stub, error) {
	fs := flag.NewFlagSet("supportdesk-stub", flag.ContinueOnError)
	cfg := Stub{}
	fs.StringVar(&cfg.Addr, "addr", envOr("SUPPORTDESK_STUB_ADDR", defaultStubAddr), "Listen address")
	fs.StringVar(&cfg.Prefix, "api-prefix", envOr("SUPPORTDESK_API_PREFIX", defaultAPIPrefix), "Versioned API path prefix")
	fs.StringVar(&cfg.AgentEmail, "agent-email", envOr("SUPPORTDESK_STUB_AGENT_EMAIL", defaultAgentEmail), "Agent login email")
	fs.StringVar(&cfg.AgentPasscode, "agent-passcode", envOr("SUPPORTDESK_STUB_AGENT_PASSCODE", defaultAgentSecret), "Agent login passcode")
	fs.StringVar(&cfg.CustomerEmail, "customer-email", envOr("SUPPORTDESK_STUB_CUSTOMER_EMAIL", defaultCustomerEmail), "Demo customer email")
	fs.StringVar(&cfg.CustomerPasscode, "customer-passcode", envOr("SUPPORTDESK_STUB_CUSTOMER_PASSCODE", defaultCustomerSecret), "Demo customer passcode")
	fs.StringVar(&cfg.LogLevel, "log-level", envOr("SUPPORTDESK_LOG_LEVEL", "info"), "Log level")
	if err := fs.Parse(args); err != nil {
		return Stub{}, err
	}
	cfg.Addr = strings.TrimSpace(cfg.Addr)
	if cfg.Addr == "" {
		cfg.Addr = defaultStubAddr
	}
	cfg.AgentEmail = strings.ToLower(strings.TrimSpace(cfg.AgentEmail))
	cfg.CustomerEmail = strings.ToLower(strings.TrimSpace(cfg.CustomerEmail))
	return cfg, nil
}

func defaultStateDB() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return filepath.Join(".", "supportdesk-state.db")
	}
	return filepath.Join(dir, "supportdesk", "state.db")
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if value == "" {
		return fallback
	}
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func clampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
