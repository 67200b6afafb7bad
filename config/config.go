package config

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
	"github.com/zefrenchwan/txl.git/geometry"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ENV_PREFIX prefixes environment variables, db.url is read from TXL_DB_URL
const ENV_PREFIX = "TXL"

const (
	DB_URL_KEY            = "db.url"
	HTTP_PORT_KEY         = "http.port"
	ADMIN_LOGIN_KEY       = "auth.admin_login"
	ADMIN_PASSWORD_KEY    = "auth.admin_password"
	MAX_RETRIES_KEY       = "store.max_retries"
	QUEUE_SIZE_KEY        = "store.queue_size"
	HISTORY_KEY           = "continuous.history"
	GEOMETRY_MAX_LEVEL    = "geometry.max_level"
	GEOMETRY_MAX_CELLS    = "geometry.max_cells"
	LOG_LEVEL_KEY         = "log.level"
	LOG_DEVELOPMENT_KEY   = "log.development"
	DEFAULT_HTTP_PORT     = ":8080"
	DEFAULT_LOG_LEVEL     = "info"
	DEFAULT_QUEUE_SIZE    = 64
	DEFAULT_MAX_RETRIES   = 5
	DEFAULT_HISTORY       = 64
	DEFAULT_ADMIN_LOGIN   = "admin"
	DEFAULT_CONFIG_FORMAT = "toml"
)

// Config contains all settings of a txl server
type Config struct {
	DatabaseURL string
	// Port is :number
	Port string
	// AdminLogin and AdminPassword define the first user, created by migrate
	AdminLogin    string
	AdminPassword string
	MaxRetries    int
	QueueSize     int
	// History is the number of result sets kept per registered query
	History  int
	Coverer  geometry.CovererConfig
	LogLevel string
	// LogDevelopment switches to human readable logs
	LogDevelopment bool
}

// NewViper returns a viper instance with defaults and environment binding
func NewViper() *viper.Viper {
	v := viper.New()
	defaults := geometry.DefaultCovererConfig()
	v.SetDefault(HTTP_PORT_KEY, DEFAULT_HTTP_PORT)
	v.SetDefault(ADMIN_LOGIN_KEY, DEFAULT_ADMIN_LOGIN)
	v.SetDefault(MAX_RETRIES_KEY, DEFAULT_MAX_RETRIES)
	v.SetDefault(QUEUE_SIZE_KEY, DEFAULT_QUEUE_SIZE)
	v.SetDefault(HISTORY_KEY, DEFAULT_HISTORY)
	v.SetDefault(GEOMETRY_MAX_LEVEL, defaults.MaxLevel)
	v.SetDefault(GEOMETRY_MAX_CELLS, defaults.MaxCells)
	v.SetDefault(LOG_LEVEL_KEY, DEFAULT_LOG_LEVEL)
	v.SetDefault(LOG_DEVELOPMENT_KEY, false)

	v.SetEnvPrefix(ENV_PREFIX)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ReadFile reads configFile if set, or a txl.toml in usual places if any
func ReadFile(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("txl")
		v.SetConfigType(DEFAULT_CONFIG_FORMAT)
		v.AddConfigPath("/etc/txl")
		v.AddConfigPath("$HOME/.txl")
		v.AddConfigPath(".")
	}

	err := v.ReadInConfig()
	if _, ok := err.(viper.ConfigFileNotFoundError); ok && configFile == "" {
		return nil
	} else if err != nil {
		return errors.Wrapf(err, "cannot read config %s", configFile)
	}

	return nil
}

// Load reads settings from v
func Load(v *viper.Viper) Config {
	coverer := geometry.DefaultCovererConfig()
	coverer.MaxLevel = v.GetInt(GEOMETRY_MAX_LEVEL)
	coverer.MaxCells = v.GetInt(GEOMETRY_MAX_CELLS)

	return Config{
		DatabaseURL:    v.GetString(DB_URL_KEY),
		Port:           v.GetString(HTTP_PORT_KEY),
		AdminLogin:     v.GetString(ADMIN_LOGIN_KEY),
		AdminPassword:  v.GetString(ADMIN_PASSWORD_KEY),
		MaxRetries:     v.GetInt(MAX_RETRIES_KEY),
		QueueSize:      v.GetInt(QUEUE_SIZE_KEY),
		History:        v.GetInt(HISTORY_KEY),
		Coverer:        coverer,
		LogLevel:       v.GetString(LOG_LEVEL_KEY),
		LogDevelopment: v.GetBool(LOG_DEVELOPMENT_KEY),
	}
}

// Validate returns an error for settings a server cannot start with
func (c Config) Validate() error {
	var globalErr error
	if c.DatabaseURL == "" {
		globalErr = errors.Join(globalErr, errors.Newf("no database set, use %s_DB_URL", ENV_PREFIX))
	}

	if !strings.HasPrefix(c.Port, ":") {
		globalErr = errors.Join(globalErr, errors.Newf("invalid port %s : it should be a : and a valid number", c.Port))
	}

	if c.QueueSize <= 0 {
		globalErr = errors.Join(globalErr, errors.Newf("invalid queue size %d", c.QueueSize))
	}

	if c.History <= 0 {
		globalErr = errors.Join(globalErr, errors.Newf("invalid continuous history %d", c.History))
	}

	if c.Coverer.MaxLevel < 0 || c.Coverer.MaxLevel > 30 {
		globalErr = errors.Join(globalErr, errors.Newf("invalid geometry max level %d", c.Coverer.MaxLevel))
	}

	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		globalErr = errors.Join(globalErr, err)
	}

	return globalErr
}

// BuildLogger returns a logger for level and mode
func (c Config) BuildLogger() (*zap.Logger, error) {
	level, errLevel := zapcore.ParseLevel(c.LogLevel)
	if errLevel != nil {
		return nil, errLevel
	}

	var zapConfig zap.Config
	if c.LogDevelopment {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}

	zapConfig.Level = zap.NewAtomicLevelAt(level)
	return zapConfig.Build()
}
