package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/loandesk/internal/api"
	"github.com/charlesng35/loandesk/internal/app"
	"github.com/charlesng35/loandesk/internal/app/scheduler"
	iauth "github.com/charlesng35/loandesk/internal/auth"
	"github.com/charlesng35/loandesk/internal/cache"
	"github.com/charlesng35/loandesk/internal/database"
	"github.com/charlesng35/loandesk/internal/monitoring"
	"github.com/charlesng35/loandesk/internal/monitoring/checks"
	"github.com/charlesng35/loandesk/internal/notifications"
	"github.com/charlesng35/loandesk/internal/services"
	"github.com/charlesng35/loandesk/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB        *gorm.DB
	Redis     *redis.Client
	Channels  *app.ChannelSet
	Loans     *services.LoanService
	Returns   *services.ReturnService
	Notifier  *services.NotificationService
	Scheduler *scheduler.Scheduler
	Router    *gin.Engine
}

// bootstrapRuntime initialises databases, caches, services, and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisClient(ctx, cfg.Cache.RedisClientConfig()); err != nil {
			log.Warn("redis unavailable; falling back to database-backed sweep lease", zap.Error(err))
			stack.Redis = nil
		} else {
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	var locker cache.Locker
	if stack.Redis != nil {
		locker, err = cache.NewRedisLocker(stack.Redis)
	} else {
		locker, err = cache.NewDatabaseLocker(stack.DB)
	}
	if err != nil {
		return nil, fmt.Errorf("initialise sweep locker: %w", err)
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	borrowers, err := services.NewBorrowerDirectory(stack.DB)
	if err != nil {
		return nil, err
	}
	items, err := services.NewItemGateway(stack.DB)
	if err != nil {
		return nil, err
	}

	loanOpts := cfg.Loans.ServiceOptions()
	if cfg.Notifications.Enabled {
		stack.Channels, err = app.BuildNotificationChannels(*cfg, logger.WithModule("notifications"))
		if err != nil {
			return nil, fmt.Errorf("initialise notification channels: %w", err)
		}

		dispatcher, err := notifications.NewDispatcher(stack.Channels.Channels, cfg.Notifications.DispatcherOptions()...)
		if err != nil {
			return nil, fmt.Errorf("initialise notification dispatcher: %w", err)
		}
		log.Info("notification channels ready", zap.Strings("channels", dispatcher.Channels()))

		stack.Notifier, err = services.NewNotificationService(stack.DB, dispatcher, borrowers, items, cfg.Notifications.ServiceOptions()...)
		if err != nil {
			return nil, fmt.Errorf("initialise notification service: %w", err)
		}
		loanOpts = append(loanOpts, services.WithLoanNotifier(stack.Notifier))
	}

	stack.Loans, err = services.NewLoanService(stack.DB, borrowers, items, loanOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise loan service: %w", err)
	}
	stack.Returns, err = services.NewReturnService(stack.DB, borrowers, items)
	if err != nil {
		return nil, fmt.Errorf("initialise return service: %w", err)
	}

	svc := api.Services{
		Loans:         stack.Loans,
		Returns:       stack.Returns,
		Notifications: stack.Notifier,
	}

	switch {
	case cfg.Scheduler.Enabled && stack.Notifier == nil:
		log.Warn("scheduler enabled but notifications are disabled; sweeps will not run")
	case cfg.Scheduler.Enabled:
		stack.Scheduler, err = scheduler.New(stack.Notifier,
			scheduler.WithSpec(strings.TrimSpace(cfg.Scheduler.Spec)),
			scheduler.WithLocker(locker),
			scheduler.WithLockTTL(cfg.Scheduler.LockTTL),
		)
		if err != nil {
			return nil, fmt.Errorf("initialise scheduler: %w", err)
		}
		if err := stack.Scheduler.Start(); err != nil {
			return nil, fmt.Errorf("start scheduler: %w", err)
		}
		svc.Sweeps = stack.Scheduler
	}

	svc.Health = monitoring.NewHealthManager(0)
	svc.Health.AddReadiness(checks.Database(stack.DB), checks.Redis(stack.Redis))
	if stack.Scheduler != nil {
		svc.Health.AddLiveness(checks.Sweeps(stack.DB, 0, nil))
	}

	stack.Router, err = api.NewRouter(stack.DB, jwtSvc, cfg, svc)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Scheduler != nil {
		select {
		case <-s.Scheduler.Stop().Done():
		case <-ctx.Done():
			log.Warn("scheduler did not stop before the shutdown deadline")
		}
	}

	if err := s.Channels.Close(); err != nil {
		log.Warn("notification channels shutdown", zap.Error(err))
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", dbCfg.Driver))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	var auth app.DBAuthConfig
	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
		return dbCfg
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		auth = cfg.Database.Postgres
	case "mysql":
		auth = cfg.Database.MySQL
	default:
		// Leave driver as-is to surface unsupported driver error during open.
		return dbCfg
	}

	dbCfg.Host = strings.TrimSpace(auth.Host)
	dbCfg.Port = auth.Port
	dbCfg.Name = strings.TrimSpace(auth.Database)
	dbCfg.User = strings.TrimSpace(auth.Username)
	dbCfg.Password = strings.TrimSpace(auth.Password)
	if len(auth.Options) > 0 {
		dbCfg.Options = make(map[string]string, len(auth.Options))
		for k, v := range auth.Options {
			dbCfg.Options[k] = v
		}
	}
	return dbCfg
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
