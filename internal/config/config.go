package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// Version is overridden at build time.
var Version = "dev"

type LoggingConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type DBConfig struct {
	DataSource string `mapstructure:"data-source" validate:"required"`
	Pool       struct {
		MaxConnections int           `mapstructure:"max-connections"`
		MaxLifetime    time.Duration `mapstructure:"max-lifetime"`
	} `mapstructure:"pool"`
}

type RedisConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	Password        string        `mapstructure:"password"`
	PoolSize        int           `mapstructure:"pool-size"`
	MinIdleConns    int           `mapstructure:"min-idle-conns"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn-max-idle-time"`
	ConnMaxLifetime time.Duration `mapstructure:"conn-max-lifetime"`
}

// NotifConfig drives the buffering window and the worker schedule.
// WindowSeconds is the debounce window between a group's first event and
// drain eligibility; SuppressMinutes of 0 disables active-user suppression.
type NotifConfig struct {
	WindowSeconds   int           `mapstructure:"window-seconds" validate:"gt=0"`
	SuppressMinutes int           `mapstructure:"suppress-minutes" validate:"gte=0"`
	PollInterval    time.Duration `mapstructure:"poll-interval" validate:"gt=0"`
	EmailsEnabled   bool          `mapstructure:"emails-enabled"`
	DeliveryTimeout time.Duration `mapstructure:"delivery-timeout"`
}

type MailConfig struct {
	APIKey      string `mapstructure:"api-key"`
	FromEmail   string `mapstructure:"from-email" validate:"required,email"`
	FromName    string `mapstructure:"from-name"`
	FrontendURL string `mapstructure:"frontend-url" validate:"required,url"`
}

type NATSConfig struct {
	Enable bool   `mapstructure:"enable"`
	URL    string `mapstructure:"url"`
	Queue  string `mapstructure:"queue"`
}

type ServerConfig struct {
	Port             int           `mapstructure:"port"`
	GracefulShutdown time.Duration `mapstructure:"graceful-shutdown"`
	ReadTimeout      time.Duration `mapstructure:"read-timeout"`
	WriteTimeout     time.Duration `mapstructure:"write-timeout"`
}

type CronJobConfig struct {
	Enable            bool          `mapstructure:"enable"`
	PurgeInterval     time.Duration `mapstructure:"purge-interval"`
	PurgeAge          time.Duration `mapstructure:"purge-age"`
	ReconcileInterval time.Duration `mapstructure:"reconcile-interval"`
}

type CacheConfig struct {
	MaxSize   int    `mapstructure:"max-size"`
	RedisAddr string `mapstructure:"redis-addr"`
	RedisPass string `mapstructure:"redis-pass"`
}

type Config struct {
	Log      LoggingConfig `mapstructure:"log"`
	DB       DBConfig      `mapstructure:"db"`
	Redis    RedisConfig   `mapstructure:"redis"`
	Notif    NotifConfig   `mapstructure:"notif"`
	Mail     MailConfig    `mapstructure:"mail"`
	NATS     NATSConfig    `mapstructure:"nats"`
	Server   ServerConfig  `mapstructure:"server"`
	CronJobs CronJobConfig `mapstructure:"cronjobs"`
	Cache    CacheConfig   `mapstructure:"cache"`
}

type Loader struct {
	v *viper.Viper
}

func NewLoader() *Loader {
	return &Loader{v: viper.New()}
}

func StringToDurationHook() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		if t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		str, ok := data.(string)
		if !ok {
			return data, nil
		}
		return time.ParseDuration(str)
	}
}

func (l *Loader) Initialize(cmd *cobra.Command) error {
	l.v.SetConfigType("toml")

	cfgFile := cmd.Flags().Lookup("config").Value.String()

	if cfgFile != "" {
		l.v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("error getting home directory: %v", err)
		}
		l.v.AddConfigPath(filepath.Join(home, ".notifier"))
		l.v.AddConfigPath(".")
		l.v.SetConfigName("config")
	}

	l.v.SetEnvPrefix("notifier")
	l.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	l.v.AutomaticEnv()

	if err := l.v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %v", err)
		}
	}

	return nil
}

func (l *Loader) Load(cfg *Config) error {
	decoderConfig := &mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			StringToDurationHook(),
		),
		WeaklyTypedInput: true,
		Result:           cfg,
	}

	decoder, err := mapstructure.NewDecoder(decoderConfig)
	if err != nil {
		return fmt.Errorf("failed to create decoder: %v", err)
	}

	if err := decoder.Decode(l.v.AllSettings()); err != nil {
		return fmt.Errorf("failed to decode config: %v", err)
	}

	return nil
}

func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func AddFlags(flags *pflag.FlagSet, cfg *Config) {
	flags.StringP("config", "c", "", "Config file path (default $HOME/.notifier/config.toml)")

	// Log config
	flags.StringVar(&cfg.Log.Level, "log-level", zapcore.InfoLevel.String(), "Logging level")
	flags.StringVar(&cfg.Log.File, "log-file", "", "Logging file path")

	// DB config
	flags.StringVar(&cfg.DB.DataSource, "db-data-source", "", "Postgres connection string")
	flags.IntVar(&cfg.DB.Pool.MaxConnections, "db-pool-max-connections", 10, "Postgres pool max connections")
	flags.DurationVar(&cfg.DB.Pool.MaxLifetime, "db-pool-max-lifetime", 30*time.Minute, "Postgres max connection lifetime")

	// Redis config
	flags.StringVar(&cfg.Redis.Addr, "redis-addr", "localhost:6379", "Redis address for the activity buffer")
	flags.StringVar(&cfg.Redis.Password, "redis-password", "", "Redis password")
	flags.IntVar(&cfg.Redis.PoolSize, "redis-pool-size", 10, "Redis connection pool size")
	flags.IntVar(&cfg.Redis.MinIdleConns, "redis-min-idle-conns", 5, "Redis minimum idle connections")
	flags.DurationVar(&cfg.Redis.ConnMaxIdleTime, "redis-conn-max-idle-time", 5*time.Minute, "Redis max connection idle time")
	flags.DurationVar(&cfg.Redis.ConnMaxLifetime, "redis-conn-max-lifetime", time.Hour, "Redis max connection lifetime")

	// Notification config
	flags.IntVar(&cfg.Notif.WindowSeconds, "notif-window-seconds", 300, "Debounce window before a group becomes drainable")
	flags.IntVar(&cfg.Notif.SuppressMinutes, "notif-suppress-minutes", 0, "Skip members active within this many minutes (0 disables)")
	flags.DurationVar(&cfg.Notif.PollInterval, "notif-poll-interval", 5*time.Second, "Worker poll interval")
	flags.BoolVar(&cfg.Notif.EmailsEnabled, "notif-emails-enabled", true, "Actually call the delivery gateway")
	flags.DurationVar(&cfg.Notif.DeliveryTimeout, "notif-delivery-timeout", 30*time.Second, "Per-send delivery gateway timeout")

	// Mail config
	flags.StringVar(&cfg.Mail.APIKey, "mail-api-key", "", "Resend API key")
	flags.StringVar(&cfg.Mail.FromEmail, "mail-from-email", "notifications@mondaylite.app", "Sender address")
	flags.StringVar(&cfg.Mail.FromName, "mail-from-name", "Mondaylite", "Sender display name")
	flags.StringVar(&cfg.Mail.FrontendURL, "mail-frontend-url", "https://mondaylite.app", "Frontend base URL for board links")

	// NATS config
	flags.BoolVar(&cfg.NATS.Enable, "nats-enable", false, "Consume activity envelopes from NATS JetStream")
	flags.StringVar(&cfg.NATS.URL, "nats-url", "nats://localhost:4222", "NATS server URL")
	flags.StringVar(&cfg.NATS.Queue, "nats-queue", "notifier", "JetStream queue group name")

	// Ops server config
	flags.IntVar(&cfg.Server.Port, "server-port", 8570, "Ops server port")
	flags.DurationVar(&cfg.Server.GracefulShutdown, "server-graceful-shutdown", 15*time.Second, "Graceful shutdown timeout")
	flags.DurationVar(&cfg.Server.ReadTimeout, "server-read-timeout", 10*time.Second, "Ops server read timeout")
	flags.DurationVar(&cfg.Server.WriteTimeout, "server-write-timeout", 10*time.Second, "Ops server write timeout")

	// Cron config
	flags.BoolVar(&cfg.CronJobs.Enable, "cronjobs-enable", true, "Enable maintenance jobs")
	flags.DurationVar(&cfg.CronJobs.PurgeInterval, "cronjobs-purge-interval", 12*time.Hour, "Notification record purge interval")
	flags.DurationVar(&cfg.CronJobs.PurgeAge, "cronjobs-purge-age", 90*24*time.Hour, "Age after which notification records are purged")
	flags.DurationVar(&cfg.CronJobs.ReconcileInterval, "cronjobs-reconcile-interval", time.Hour, "Buffer/due-index reconcile interval")

	// Cache config
	flags.IntVar(&cfg.Cache.MaxSize, "cache-max-size", 8*1024*1024, "Directory cache size in bytes")
	flags.StringVar(&cfg.Cache.RedisAddr, "cache-redis-addr", "", "Use redis for the directory cache instead of memory")
	flags.StringVar(&cfg.Cache.RedisPass, "cache-redis-pass", "", "Redis password for the directory cache")
}
