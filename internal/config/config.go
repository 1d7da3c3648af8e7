package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Database struct {
		Path string
	}
	Server struct {
		Port int
	}
	Log struct {
		Level string
	}
	Scheduler struct {
		DefaultIntervalSeconds   int
		CollectTimeoutSeconds    int
		ShutdownGraceSeconds     int
		MaxConcurrentCollections int64
	}
	Evaluation struct {
		IntervalSeconds  int
		StalenessSeconds int
	}
	Correlation struct {
		WindowMinutes        int
		SuppressionThreshold int
	}
	Agents []AgentConfig
}

// AgentConfig describes one collection agent instance. Settings is the
// opaque per-agent config blob handed to Collect.
type AgentConfig struct {
	ID              string
	Kind            string
	Enabled         bool
	IntervalSeconds int
	Settings        map[string]string
}

func (c *Config) CollectTimeout() time.Duration {
	return time.Duration(c.Scheduler.CollectTimeoutSeconds) * time.Second
}

func (c *Config) ShutdownGrace() time.Duration {
	return time.Duration(c.Scheduler.ShutdownGraceSeconds) * time.Second
}

// Load reads config.yaml from the working directory or /etc/labwatch,
// applying defaults and LABWATCH_* environment overrides.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/labwatch")

	viper.SetDefault("database.path", "data/labwatch.db")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("scheduler.defaultintervalseconds", 60)
	viper.SetDefault("scheduler.collecttimeoutseconds", 30)
	viper.SetDefault("scheduler.shutdowngraceseconds", 10)
	viper.SetDefault("scheduler.maxconcurrentcollections", 10)
	viper.SetDefault("evaluation.intervalseconds", 30)
	viper.SetDefault("evaluation.stalenessseconds", 300)
	viper.SetDefault("correlation.windowminutes", 5)
	viper.SetDefault("correlation.suppressionthreshold", 3)

	viper.SetEnvPrefix("LABWATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %v", err)
		}
		// No config file is fine; defaults plus env cover a minimal setup.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %v", err)
	}
	return &cfg, nil
}
