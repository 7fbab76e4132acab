package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	NodeWSURL         string
	PostgresDSN       string
	ContractAddress   string
	Port              int
	AllowedOrigins    []string
	ReconnectDelay    time.Duration
	LookupMaxAttempts int
	LookupInterval    time.Duration
	JournalPath       string
	LogLevel          string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", 3000)
	v.SetDefault("origin", []string{"*"})
	v.SetDefault("reconnect-delay", 5*time.Second)
	v.SetDefault("lookup-attempts", 30)
	v.SetDefault("lookup-interval", time.Second)
	v.SetDefault("journal", "")
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		NodeWSURL:         v.GetString("ws-url"),
		PostgresDSN:       v.GetString("pg-dsn"),
		ContractAddress:   v.GetString("contract"),
		Port:              v.GetInt("port"),
		AllowedOrigins:    getStringSlice(v, "origin"),
		ReconnectDelay:    v.GetDuration("reconnect-delay"),
		LookupMaxAttempts: v.GetInt("lookup-attempts"),
		LookupInterval:    v.GetDuration("lookup-interval"),
		JournalPath:       v.GetString("journal"),
		LogLevel:          v.GetString("log-level"),
	}

	return cfg, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
