package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"vfzsync/internal/auth"
	"vfzsync/internal/client/command"
	"vfzsync/internal/client/vpoller"
	"vfzsync/internal/client/zabbix"
	"vfzsync/internal/config"
	cronrunner "vfzsync/internal/cron"
	"vfzsync/internal/db"
	"vfzsync/internal/handler"
	"vfzsync/internal/instrument"
	"vfzsync/internal/logger"
	"vfzsync/internal/notify"
	"vfzsync/internal/progress"
	"vfzsync/internal/repository"
	gormrepository "vfzsync/internal/repository/gorm"
	"vfzsync/internal/service"
	"vfzsync/internal/syncerr"
	"vfzsync/internal/tasklock"
	"vfzsync/internal/transform"

	_ "vfzsync/docs"
)

// exitUnauthorized is the process status when a backend rejects the
// configured credentials at startup.
const exitUnauthorized = 3

func main() {
	cfgPath := os.Getenv("VFZ_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/vfzsync.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("VFZ_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log, cfg.App)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		dbConn    *db.DB
		syncStore repository.SyncRepository
		settings  = &service.SystemSettingsService{}
	)
	dbConn, err = db.Open(cfg.DB, logger)
	switch {
	case errors.Is(err, db.ErrNoDSN):
		logger.Warn("db dsn empty, running without persistence")
	case err != nil:
		logger.Fatal("db open failed", zap.Error(err))
	default:
		defer db.Close(dbConn)
		if err := db.AutoMigrate(dbConn); err != nil {
			logger.Fatal("auto-migrate failed", zap.Error(err))
		}
		store := gormrepository.New(dbConn.Gorm)
		syncStore = store
		settings.Repo = store
		if err := settings.EnsureDefaultSwitches(ctx); err != nil {
			logger.Warn("init default feature switches failed", zap.Error(err))
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := instrument.NewRecorder(logger, registry)
	hub := progress.NewHub()

	source := vpoller.NewClient(&vpoller.ZMQTransport{
		Endpoint: cfg.VPoller.Endpoint,
		Retries:  cfg.VPoller.Retries,
		Timeout:  cfg.VPoller.Timeout,
	}, recorder)
	cmdb := command.NewClient(command.Config{
		URL:         cfg.Command.URL,
		Username:    cfg.Command.Username,
		Password:    cfg.Command.Password,
		ManID:       cfg.Command.ManID,
		UserGroup:   cfg.Command.UserGroup,
		Timeout:     cfg.Command.Timeout,
		InsecureTLS: cfg.Command.InsecureTLS,
	}, recorder)
	zbx := zabbix.NewClient(zabbix.Config{
		URL:         cfg.Zabbix.URL,
		Username:    cfg.Zabbix.Username,
		Password:    cfg.Zabbix.Password,
		Timeout:     cfg.Zabbix.Timeout,
		InsecureTLS: cfg.Zabbix.InsecureTLS,
	}, recorder)
	sender := zabbix.NewSender(cfg.Zabbix.SenderAddress(), cfg.Zabbix.SenderPort, cfg.Zabbix.SenderTimeout, recorder)

	loginBackends(ctx, logger, cmdb, zbx)
	if err := source.Ping(ctx, cfg.VPoller.VCHost); err != nil {
		logger.Warn("vpoller ping failed", zap.String("endpoint", cfg.VPoller.Endpoint), zap.Error(err))
	}

	loc := time.Local
	if tz := strings.TrimSpace(cfg.General.Timezone); tz != "" && !strings.EqualFold(tz, "local") {
		if l, err := time.LoadLocation(tz); err != nil {
			logger.Warn("invalid general.timezone, using local", zap.String("timezone", tz), zap.Error(err))
		} else {
			loc = l
		}
	}

	notifier := &notify.WebhookSender{
		URL:  strings.TrimSpace(cfg.Notify.WebhookURL),
		HTTP: &http.Client{Timeout: cfg.Notify.Timeout},
	}

	reconcileSvc := &service.ReconcileService{
		Source:   source,
		CMDB:     cmdb,
		Zabbix:   zbx,
		Sender:   sender,
		Store:    syncStore,
		Settings: settings,
		Recorder: recorder,
		Hub:      hub,
		Notifier: notifier,
		Logger:   logger,

		Project:   cfg.App.Project,
		VCHost:    cfg.VPoller.VCHost,
		Tables:    mappingTables(cfg.Mappings),
		Flags:     cfg.Zabbix.Flags,
		Location:  loc,
		HostGroup: cfg.Zabbix.HostGroup,
		Template:  cfg.Zabbix.Template,
		Proxy:     cfg.Zabbix.Proxy,
	}
	if _, err := reconcileSvc.EnsureHostGroup(ctx); err != nil {
		exitOnUnauthorized(logger, err)
		logger.Warn("ensure host group failed", zap.String("hostgroup", cfg.Zabbix.HostGroup), zap.Error(err))
	}
	statsSvc := &service.StatsService{
		CMDB:      cmdb,
		Zabbix:    zbx,
		VCHost:    cfg.VPoller.VCHost,
		HostGroup: cfg.Zabbix.HostGroup,
		Flags:     cfg.Zabbix.Flags,
		Logger:    logger,
	}
	trapperSvc := &service.TrapperService{
		Zabbix:    zbx,
		Sender:    sender,
		HostGroup: cfg.Zabbix.HostGroup,
		Flags:     cfg.Zabbix.Flags,
		Logger:    logger,
	}

	lock := newTaskLock(cfg, logger)
	if closer, ok := lock.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	runner := cronrunner.New(logger, ctx)
	passJob := runner.Every(cfg.General.Interval, cfg.General.Loops, func(ctx context.Context) bool {
		release, ok, err := lock.TryAcquire(ctx, tasklock.KindSync)
		if err != nil {
			logger.Warn("task lock failed", zap.Error(err))
			return false
		}
		if !ok {
			logger.Info("sync already running, tick skipped")
			return false
		}
		defer release()

		if _, err := reconcileSvc.Run(ctx, service.RunOptions{
			Mode:          cfg.General.Mode,
			Trigger:       service.TriggerCron,
			CheckFeatures: true,
		}); err != nil {
			logger.Warn("scheduled sync finished with errors", zap.Error(err))
		}
		if settings.IsEnabled(ctx, service.FeatureGroupUpdate, false) {
			if _, err := trapperSvc.GroupUpdate(ctx); err != nil {
				logger.Warn("group update failed", zap.Error(err))
			}
		}
		return true
	})
	if syncStore != nil && cfg.DB.RunRetention > 0 {
		if _, err := runner.Add("@daily", func(ctx context.Context) {
			n, err := syncStore.DeleteSyncRunsBefore(ctx, time.Now().UTC().Add(-cfg.DB.RunRetention))
			if err != nil {
				logger.Warn("prune sync runs failed", zap.Error(err))
				return
			}
			logger.Info("pruned sync runs", zap.Int64("rows", n), zap.Duration("retention", cfg.DB.RunRetention))
		}); err != nil {
			logger.Warn("schedule run pruning failed", zap.Error(err))
		}
	}
	runner.Start()
	defer runner.Stop()
	if cfg.General.RunOnStart {
		go passJob.Run()
	}

	var srv *http.Server
	errCh := make(chan error, 1)
	if cfg.Server.Enabled {
		if cfg.App.Env == "dev" {
			gin.SetMode(gin.DebugMode)
		} else {
			gin.SetMode(gin.ReleaseMode)
		}

		engine := gin.New()
		engine.Use(gin.Recovery())
		engine.Use(corsMiddleware())

		var verifier *auth.JWT
		if secret := strings.TrimSpace(cfg.Auth.JWTSecret); secret != "" {
			verifier = &auth.JWT{Secret: []byte(secret), TokenTTL: cfg.Auth.TokenTTL}
		}
		engine.Use(auth.RequireBearer(verifier))

		healthHandler := &handler.HealthHandler{Hub: hub}
		if dbConn != nil {
			healthHandler.DB = dbConn.Gorm
		}
		healthHandler.Register(engine)

		syncHandler := &handler.SyncHandler{Service: reconcileSvc, Store: syncStore, Lock: lock, Logger: logger}
		syncHandler.Register(engine)
		statsHandler := &handler.StatsHandler{Service: statsSvc, Lock: lock}
		statsHandler.Register(engine)
		sendHandler := &handler.SendHandler{Service: trapperSvc, Lock: lock}
		sendHandler.Register(engine)
		settingsHandler := &handler.SystemSettingsHandler{Repo: settings.Repo, Settings: settings}
		settingsHandler.Register(engine)
		progressHandler := &handler.ProgressHandler{Hub: hub, Logger: logger, OriginPatterns: []string{"*"}}
		progressHandler.Register(engine)

		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
		engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

		srv = &http.Server{
			Addr:              cfg.Server.HTTPAddr,
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("http server started", zap.String("addr", cfg.Server.HTTPAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case <-runner.Done():
		logger.Info("loop limit reached, exiting", zap.Int("runs", runner.Runs()))
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}

func loginBackends(ctx context.Context, logger *zap.Logger, cmdb *command.Client, zbx *zabbix.Client) {
	if err := cmdb.Login(ctx); err != nil {
		exitOnUnauthorized(logger, err)
		logger.Warn("command login failed, retrying on first call", zap.Error(err))
	} else {
		logger.Info("command login ok")
	}
	if err := zbx.Login(ctx); err != nil {
		exitOnUnauthorized(logger, err)
		logger.Warn("zabbix login failed, retrying on first call", zap.Error(err))
	} else {
		logger.Info("zabbix login ok")
	}
}

func exitOnUnauthorized(logger *zap.Logger, err error) {
	if !syncerr.IsUnauthorized(err) {
		return
	}
	logger.Error("backend rejected credentials", zap.Error(err))
	_ = logger.Sync()
	os.Exit(exitUnauthorized)
}

func newTaskLock(cfg config.Config, logger *zap.Logger) tasklock.Guard {
	switch strings.ToLower(strings.TrimSpace(cfg.TaskLock.Backend)) {
	case "redis":
		logger.Info("task lock backend redis", zap.String("addr", cfg.Redis.Addr))
		return tasklock.NewRedisGuard(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.TaskLock.Prefix, cfg.TaskLock.TTL)
	default:
		return tasklock.NewMemoryGuard()
	}
}

func mappingTables(m config.MappingsConfig) transform.Tables {
	return transform.DefaultTables().WithOverrides(
		toMap(m.VirtualServer),
		toMap(m.IPAddress),
		toMap(m.Filesystem),
	)
}

func toMap(rules []config.MappingRule) transform.Map {
	if len(rules) == 0 {
		return nil
	}
	out := make(transform.Map, 0, len(rules))
	for _, r := range rules {
		out = append(out, transform.Rule{Source: r.Source, Target: r.Target})
	}
	return out
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
