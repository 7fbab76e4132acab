package config

import (
	"reflect"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func newFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("ws-url", "", "")
	flags.String("pg-dsn", "", "")
	flags.String("contract", "", "")
	flags.Int("port", 3000, "")
	flags.StringSlice("origin", []string{"*"}, "")
	flags.Duration("reconnect-delay", 5*time.Second, "")
	flags.Int("lookup-attempts", 30, "")
	flags.Duration("lookup-interval", time.Second, "")
	flags.String("journal", "", "")
	flags.String("log-level", "info", "")
	return flags
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", newFlags())
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Port != 3000 {
		t.Fatalf("port default mismatch: %d", cfg.Port)
	}
	if cfg.ReconnectDelay != 5*time.Second {
		t.Fatalf("reconnect delay default mismatch: %s", cfg.ReconnectDelay)
	}
	if cfg.LookupMaxAttempts != 30 || cfg.LookupInterval != time.Second {
		t.Fatalf("lookup defaults mismatch: %d/%s", cfg.LookupMaxAttempts, cfg.LookupInterval)
	}
	if !reflect.DeepEqual(cfg.AllowedOrigins, []string{"*"}) {
		t.Fatalf("origin default mismatch: %v", cfg.AllowedOrigins)
	}
}

func TestLoadFlagOverrides(t *testing.T) {
	flags := newFlags()
	if err := flags.Parse([]string{
		"--ws-url=ws://localhost:8546",
		"--contract=0x1111111111111111111111111111111111111111",
		"--origin=https://a.example, https://b.example",
		"--port=8080",
	}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load("", flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.NodeWSURL != "ws://localhost:8546" {
		t.Fatalf("ws url mismatch: %s", cfg.NodeWSURL)
	}
	if cfg.Port != 8080 {
		t.Fatalf("port mismatch: %d", cfg.Port)
	}
	want := []string{"https://a.example", "https://b.example"}
	if !reflect.DeepEqual(cfg.AllowedOrigins, want) {
		t.Fatalf("origins mismatch: %v", cfg.AllowedOrigins)
	}
}

func TestCleanStrings(t *testing.T) {
	got := cleanStrings([]string{" a ", "", "b", "  "})
	want := []string{"a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("cleanStrings mismatch: %v", got)
	}
}
