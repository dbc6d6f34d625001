// Copyright 2024 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/stratastor/logger"
	"github.com/stratastor/mpathd/internal/constants"
	"github.com/stratastor/mpathd/pkg/errors"
	"gopkg.in/yaml.v3"
)

var (
	instance   *Config
	once       sync.Once
	configPath string // Tracks where the config was loaded from

	validate = validator.New()
)

type Config struct {
	Server struct {
		Port      int  `mapstructure:"port" validate:"min=1,max=65535"`
		Daemonize bool `mapstructure:"daemonize"`
	} `mapstructure:"server"`

	Health struct {
		Endpoint string `mapstructure:"endpoint" validate:"required,startswith=/"`
	} `mapstructure:"health"`

	Logs struct {
		Path   string `mapstructure:"path"`
		Output string `mapstructure:"output" validate:"oneof=stdout file"` // stdout or file
	} `mapstructure:"logs"`

	Logger struct {
		LogLevel     string `mapstructure:"logLevel" validate:"oneof=debug info warn error"`
		EnableSentry bool   `mapstructure:"enableSentry"`
		SentryDSN    string `mapstructure:"sentryDSN"`
	} `mapstructure:"logger"`

	// Waiter tunes the per-map devmap event waiters.
	Waiter struct {
		// RescheduleDelay is the pause after a reconciliation that saw no
		// newer kernel event.
		RescheduleDelay time.Duration `mapstructure:"rescheduleDelay" validate:"gt=0"`
		// StackSize is the goroutine stack limit requested for waiters.
		// Zero selects the runtime default; values below 32KiB are raised.
		StackSize  int  `mapstructure:"stackSize" validate:"gte=0"`
		LockMemory bool `mapstructure:"lockMemory"`
	} `mapstructure:"waiter"`

	DM struct {
		ControlPath string `mapstructure:"controlPath" validate:"required"`
	} `mapstructure:"dm"`

	Discovery struct {
		Enabled     bool          `mapstructure:"enabled"`
		Interval    time.Duration `mapstructure:"interval" validate:"gt=0"`
		UdevMonitor bool          `mapstructure:"udevMonitor"`
	} `mapstructure:"discovery"`

	Environment string `mapstructure:"environment"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "dev")
	v.SetDefault("server.port", 8043)
	v.SetDefault("server.daemonize", false)
	v.SetDefault("health.endpoint", constants.HealthPath)
	v.SetDefault("logs.path", "/var/log/mpathd/mpathd.log")
	v.SetDefault("logs.output", "stdout")
	v.SetDefault("logger.logLevel", "info")
	v.SetDefault("logger.enableSentry", false)
	v.SetDefault("logger.sentryDSN", "")

	v.SetDefault("waiter.rescheduleDelay", "1s")
	v.SetDefault("waiter.stackSize", 0)
	v.SetDefault("waiter.lockMemory", true)

	v.SetDefault("dm.controlPath", constants.DMControlPath)

	v.SetDefault("discovery.enabled", true)
	v.SetDefault("discovery.interval", "30s")
	v.SetDefault("discovery.udevMonitor", true)
}

// Default returns a configuration populated only from built-in defaults.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults are static; failing here is a programming error
		panic(fmt.Sprintf("invalid built-in defaults: %v", err))
	}
	return &cfg
}

// Validate checks value ranges that viper cannot enforce.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New(errors.ConfigInvalid, "configuration is nil")
	}

	if err := validate.Struct(cfg); err != nil {
		re := errors.New(errors.ConfigValidationFailed, err.Error())
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				re.WithMetadata(fe.Namespace(), fe.Tag())
			}
		}
		return re
	}
	return nil
}

// LoadConfig loads the configuration with precedence rules.
func LoadConfig(configFilePath string) *Config {
	once.Do(func() {
		// Setup basic logger for initialization
		logConfig := logger.Config{
			LogLevel:     "info",
			EnableSentry: false,
			SentryDSN:    "",
		}
		l, err := logger.NewTag(logConfig, "config")
		if err != nil {
			fmt.Printf("Failed to create logger: %v\n", err)
			os.Exit(1)
		}

		// Reset viper to avoid any potential carryover
		viper.Reset()
		viper.SetConfigType("yaml")

		systemConfigPath := filepath.Join(GetConfigDir(), constants.ConfigFileName)

		if configFilePath != "" {
			// 1. Priority: Explicit path from command line
			configPath = configFilePath
		} else if envPath := os.Getenv(constants.ConfigEnvVar); envPath != "" {
			// 2. Priority: Environment variable
			configPath = envPath
		} else {
			// 3. Priority: Always default to system-wide config
			configPath = systemConfigPath
		}

		l.Info("Using config file", "path", configPath)

		if absPath, err := filepath.Abs(configPath); err == nil {
			configPath = absPath
		}

		viper.SetConfigFile(configPath)
		setDefaults(viper.GetViper())

		// Bind environment variables
		viper.AutomaticEnv()
		viper.SetEnvPrefix(constants.EnvPrefix)
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

		err = viper.ReadInConfig()

		// Handle missing or invalid config
		var cfg Config
		switch {
		case err == nil:
			l.Info("Config file loaded successfully", "path", viper.ConfigFileUsed())
			configPath = viper.ConfigFileUsed()
			if err := viper.Unmarshal(&cfg); err != nil {
				l.Error("Failed to parse configuration, using defaults", "err", err)
				cfg = *Default()
			}

		case os.IsNotExist(err) || isNotFound(err):
			l.Info("Config file not found, creating default", "path", configPath)
			if err := viper.Unmarshal(&cfg); err != nil {
				l.Error("Failed to unmarshal default configuration", "err", err)
				cfg = *Default()
			}
			instance = &cfg
			if err := SaveConfig(configPath); err != nil {
				l.Error("Failed to save default configuration", "err", err)
			}

		default:
			// Some other error (parse error, etc.)
			l.Error("Error reading config file, using defaults", "err", err)
			cfg = *Default()
		}

		if err := Validate(&cfg); err != nil {
			l.Error("Invalid configuration, using defaults", "err", err)
			cfg = *Default()
		}

		instance = &cfg
		l.Debug("Loaded configuration", "config", fmt.Sprintf("%+v", redacted(instance)))
	})

	return instance
}

func isNotFound(err error) bool {
	_, ok := err.(viper.ConfigFileNotFoundError)
	return ok
}

func redacted(cfg *Config) Config {
	c := *cfg
	if c.Logger.SentryDSN != "" {
		c.Logger.SentryDSN = "[REDACTED]"
	}
	return c
}

// SaveConfig persists the current configuration to a specified path.
func SaveConfig(path string) error {
	if path == "" {
		path = filepath.Join(GetConfigDir(), constants.ConfigFileName)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, errors.ConfigWriteFailed).
			WithMetadata("path", filepath.Dir(path))
	}

	cfg := instance
	if cfg == nil {
		cfg = Default()
	}

	configYAML, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, errors.ConfigMarshalFailed)
	}

	if err := os.WriteFile(path, configYAML, 0644); err != nil {
		return errors.Wrap(err, errors.ConfigWriteFailed).
			WithMetadata("path", path)
	}

	configPath = path
	return nil
}

// GetLoadedConfigPath returns the path of the currently loaded configuration file.
func GetLoadedConfigPath() string {
	return configPath
}

// GetConfig returns the current configuration instance.
func GetConfig() *Config {
	if instance == nil {
		return LoadConfig("")
	}
	return instance
}

func NewLoggerConfig(cfg *Config) logger.Config {
	if cfg == nil {
		return logger.Config{
			LogLevel:     "info",
			EnableSentry: false,
			SentryDSN:    "",
		}
	}

	return logger.Config{
		LogLevel:     cfg.Logger.LogLevel,
		EnableSentry: cfg.Logger.EnableSentry,
		SentryDSN:    cfg.Logger.SentryDSN,
	}
}
