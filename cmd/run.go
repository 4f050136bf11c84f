package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mondaylite/notifier/internal/buffer"
	"github.com/mondaylite/notifier/internal/cache"
	"github.com/mondaylite/notifier/internal/config"
	"github.com/mondaylite/notifier/internal/cron"
	"github.com/mondaylite/notifier/internal/digest"
	"github.com/mondaylite/notifier/internal/directory"
	"github.com/mondaylite/notifier/internal/eligibility"
	"github.com/mondaylite/notifier/internal/emitter"
	"github.com/mondaylite/notifier/internal/ingest"
	"github.com/mondaylite/notifier/internal/logging"
	"github.com/mondaylite/notifier/internal/mailer"
	"github.com/mondaylite/notifier/internal/notification"
	"github.com/mondaylite/notifier/internal/ops"
	"github.com/mondaylite/notifier/internal/worker"
)

func NewRun() *cobra.Command {
	var cfg config.Config
	loader := config.NewLoader()
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the notification pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApplication(cmd.Context(), &cfg)
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loader.Initialize(cmd); err != nil {
				return err
			}
			if err := loader.Load(&cfg); err != nil {
				return err
			}
			return config.Validate(&cfg)
		},
	}
	config.AddFlags(cmd.Flags(), &cfg)
	return cmd
}

func runApplication(ctx context.Context, conf *config.Config) error {
	lvl, err := zapcore.ParseLevel(conf.Log.Level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	logging.SetConfig(&logging.Config{
		Level:    lvl,
		FilePath: conf.Log.File,
	})
	lg := logging.DefaultLogger()
	defer lg.Sync()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := directory.NewPool(ctx, conf.DB.DataSource, conf.DB.Pool.MaxConnections, conf.DB.Pool.MaxLifetime)
	if err != nil {
		lg.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	records := notification.NewStore(pool)
	if err := records.EnsureSchema(ctx); err != nil {
		lg.Fatal("failed to ensure notification schema", zap.Error(err))
	}

	redisClient, err := buffer.NewClient(ctx,
		conf.Redis.Addr, conf.Redis.Password,
		conf.Redis.PoolSize, conf.Redis.MinIdleConns,
		conf.Redis.ConnMaxIdleTime, conf.Redis.ConnMaxLifetime)
	if err != nil {
		lg.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()
	store := buffer.NewStore(redisClient)

	cacher := cache.NewCache(&conf.Cache)
	dir := directory.New(pool, cacher)

	gateway := mailer.NewResendGateway(conf.Mail.APIKey, conf.Mail.FromEmail, conf.Mail.FromName)
	mail := mailer.NewService(gateway, dir, records, digest.NewComposer(conf.Mail.FrontendURL), mailer.Options{
		AppName:         conf.Mail.FromName,
		Enabled:         conf.Notif.EmailsEnabled,
		DeliveryTimeout: conf.Notif.DeliveryTimeout,
	}, lg)

	work := worker.New(store, mail, conf.Notif.PollInterval, lg)
	work.Start(ctx)
	defer work.Stop()

	if conf.NATS.Enable {
		resolver := eligibility.NewResolver(dir, conf.Notif.SuppressMinutes)
		emit := emitter.New(resolver, store, conf.Notif.WindowSeconds, lg)
		consumer, err := ingest.Connect(conf.NATS.URL, conf.NATS.Queue, ingest.NewHandler(emit, lg), lg)
		if err != nil {
			lg.Fatal("failed to connect to nats", zap.Error(err))
		}
		defer consumer.Close()
		if err := consumer.Start(ctx); err != nil {
			lg.Fatal("failed to start ingest consumer", zap.Error(err))
		}
	}

	if conf.CronJobs.Enable {
		crons := cron.NewService(records, store, cron.Options{
			PurgeInterval:     conf.CronJobs.PurgeInterval,
			PurgeAge:          conf.CronJobs.PurgeAge,
			ReconcileInterval: conf.CronJobs.ReconcileInterval,
			ReconcileWindow:   time.Duration(conf.Notif.WindowSeconds) * time.Second,
		}, lg)
		if err := crons.Start(ctx); err != nil {
			lg.Fatal("failed to start cron jobs", zap.Error(err))
		}
		defer crons.Stop()
	}

	srv := ops.NewServer(ops.Options{
		Port:         conf.Server.Port,
		ReadTimeout:  conf.Server.ReadTimeout,
		WriteTimeout: conf.Server.WriteTimeout,
	}, store, work, map[string]ops.Probe{
		"redis": func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		"db":    pool.Ping,
	}, lg)
	srv.Start()

	<-ctx.Done()

	lg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), conf.Server.GracefulShutdown)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("ops server shutdown failed", zap.Error(err))
	}
	return nil
}
