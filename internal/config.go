package internal

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides: RECSQL_SERVER_ADDR=...
const EnvPrefix = "RECSQL"

type RecsqlConfig struct {
	AppName string `mapstructure:"app_name"`

	Engine struct {
		CacheSize   int    `mapstructure:"cache_size"`
		DBFile      string `mapstructure:"dbfile"`
		Autoconvert bool   `mapstructure:"autoconvert"`
		Mode        string `mapstructure:"mode"`
		Encoding    string `mapstructure:"encoding"`
	} `mapstructure:"engine"`

	Server struct {
		Addr        string   `mapstructure:"addr"`
		MetricsAddr string   `mapstructure:"metrics_addr"`
		Preload     []string `mapstructure:"preload"`
	} `mapstructure:"server"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
		SeqURL string `mapstructure:"seq_url"`
	} `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "recsql")
	v.SetDefault("engine.cache_size", 5)
	v.SetDefault("engine.dbfile", ":memory:")
	v.SetDefault("engine.autoconvert", false)
	v.SetDefault("engine.mode", "fancy")
	v.SetDefault("engine.encoding", "utf-8")
	v.SetDefault("server.addr", "127.0.0.1:5433")
	v.SetDefault("server.metrics_addr", "")
	v.SetDefault("server.preload", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.seq_url", "")
}

// FlagKeys maps command line flag names onto config keys.
var FlagKeys = map[string]string{
	"cache-size":   "engine.cache_size",
	"dbfile":       "engine.dbfile",
	"autoconvert":  "engine.autoconvert",
	"mode":         "engine.mode",
	"encoding":     "engine.encoding",
	"addr":         "server.addr",
	"metrics-addr": "server.metrics_addr",
	"preload":      "server.preload",
	"log-level":    "log.level",
	"log-format":   "log.format",
	"seq-url":      "log.seq_url",
}

// LoadConfig reads the YAML file at path (skipped when path is empty),
// then applies RECSQL_* environment overrides and the flags in FlagKeys
// that were set on the command line.
func LoadConfig(path string, flags *pflag.FlagSet) (*RecsqlConfig, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range FlagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var cfg RecsqlConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
