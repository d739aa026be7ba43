package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	adminhttp "github.com/osagie8/tcp-chat/internal/handler/http"
	wshandler "github.com/osagie8/tcp-chat/internal/handler/websocket"
	"github.com/osagie8/tcp-chat/internal/hub"
	gormpersistence "github.com/osagie8/tcp-chat/internal/infra/persistence/gorm"
	redisstate "github.com/osagie8/tcp-chat/internal/infra/state/redis"
	"github.com/osagie8/tcp-chat/internal/infra/setup"
	"github.com/osagie8/tcp-chat/internal/middleware"
	"github.com/osagie8/tcp-chat/internal/repository"
	"github.com/osagie8/tcp-chat/internal/server"
	"github.com/osagie8/tcp-chat/internal/service"
	"github.com/osagie8/tcp-chat/internal/worker"
)

// Config 保存应用的全部运行配置，来源于环境变量 (.env 可选)。
type Config struct {
	ChatAddr  string
	AdminAddr string

	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string

	LogLevel string
	AppEnv   string

	RateLimitMax    int
	RateLimitWindow time.Duration
	RetentionDays   int
}

// LoadConfig 读取环境变量并填充默认值。
// .env 文件不存在不算错误 (生产环境直接注入环境变量)。
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		ChatAddr:      getEnv("CHAT_ADDR", ":7632"),
		AdminAddr:     getEnv("ADMIN_ADDR", ":8080"),
		DBUser:        getEnv("DATABASE_USER", "root"),
		DBPassword:    getEnv("DATABASE_PASSWORD", ""),
		DBHost:        getEnv("DATABASE_HOST", "127.0.0.1"),
		DBPort:        getEnv("DATABASE_PORT", "3306"),
		DBName:        getEnv("DATABASE_NAME", "chat"),
		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		KeyPrefix:     getEnv("REDIS_KEY_PREFIX", "chat:"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		AppEnv:        getEnv("ENV", "development"),
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.RateLimitMax, err = getEnvInt("RATE_LIMIT_MAX", 100); err != nil {
		return nil, err
	}
	windowSec, err := getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60)
	if err != nil {
		return nil, err
	}
	cfg.RateLimitWindow = time.Duration(windowSec) * time.Second
	if cfg.RetentionDays, err = getEnvInt("MESSAGE_RETENTION_DAYS", 30); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("bootstrap: invalid integer for %s: %w", key, err)
	}
	return n, nil
}

// App 聚合所有组件，持有它们的生命周期。
type App struct {
	Config *Config

	DB          *gorm.DB
	RedisClient *redis.Client

	Hub        *hub.Hub
	ChatServer *server.Server
	AdminHTTP  *http.Server
	Worker     *worker.WorkerServer

	// ShutdownRequested 在管理接口请求关闭时被关闭一次，
	// main 对它和 OS 信号一起 select。
	ShutdownRequested chan struct{}
	shutdownOnce      sync.Once
}

// NewApp 按依赖顺序组装整个应用：
// 基础设施 -> 仓储 -> 服务 -> Hub -> 各个入口。
func NewApp(cfg *Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config cannot be nil")
	}

	configureLogging(cfg)

	db, err := setup.InitDB(cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database init failed: %w", err)
	}
	if err := setup.MigrateDB(db); err != nil {
		return nil, fmt.Errorf("bootstrap: migration failed: %w", err)
	}
	redisClient, err := setup.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: redis init failed: %w", err)
	}

	// 仓储层
	userRepo := gormpersistence.NewGormUserRepository(db)
	chatroomRepo := gormpersistence.NewGormChatroomRepository(db)
	messageRepo := gormpersistence.NewGormMessageRepository(db)
	privateRepo := gormpersistence.NewGormPrivateMessageRepository(db)
	stateRepo := redisstate.NewRedisStateRepository(redisClient, cfg.KeyPrefix)

	// 服务层
	authService := service.NewAuthService(userRepo)
	chatroomService := service.NewChatroomService(chatroomRepo, messageRepo, userRepo, stateRepo)
	messagingService := service.NewMessagingService(privateRepo, userRepo, stateRepo)

	services := server.Services{
		Auth:      authService,
		Chatrooms: chatroomService,
		Messaging: messagingService,
	}

	h := hub.NewHub(chatroomService)

	app := &App{
		Config:            cfg,
		DB:                db,
		RedisClient:       redisClient,
		Hub:               h,
		ShutdownRequested: make(chan struct{}),
	}

	// TCP 聊天入口
	app.ChatServer = server.NewServer(cfg.ChatAddr, h, services, logrus.StandardLogger())

	// 管理 HTTP 入口 (含 WebSocket 桥接)
	adminHandler := adminhttp.NewAdminHandler(h, chatroomService, app.requestShutdown)
	wsHandler := wshandler.NewWebSocketHandler(h, services)
	app.AdminHTTP = &http.Server{
		Addr:    cfg.AdminAddr,
		Handler: buildAdminRouter(cfg, stateRepo, adminHandler, wsHandler),
	}

	// 后台任务
	retentionHandler := worker.NewRetentionHandler(messagingService)
	activityHandler := worker.NewActivityHandler(h, chatroomService)
	app.Worker = worker.NewWorkerServer(
		cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB,
		retentionHandler, activityHandler, cfg.RetentionDays,
	)

	return app, nil
}

func configureLogging(cfg *Config) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if cfg.AppEnv == "production" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func buildAdminRouter(cfg *Config, stateRepo repository.StateRepository, admin *adminhttp.AdminHandler, ws *wshandler.WebSocketHandler) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware())

	router.GET("/healthz", admin.Health)
	router.GET("/ws", ws.HandleConnection)

	api := router.Group("/api")
	api.Use(middleware.RateLimit(stateRepo, cfg.RateLimitMax, cfg.RateLimitWindow))
	{
		api.GET("/stats", admin.Stats)
		api.GET("/chatrooms/:name", admin.ChatroomStats)
		api.DELETE("/users/:username", admin.RemoveUser)
		api.POST("/shutdown", admin.Shutdown)
	}

	return router
}

// LoggerMiddleware 用 logrus 记录每个 HTTP 请求
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logrus.WithFields(logrus.Fields{
			"status":  c.Writer.Status(),
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"ip":      c.ClientIP(),
			"latency": time.Since(start),
		}).Info("HTTP request")
	}
}

func (a *App) requestShutdown() {
	a.shutdownOnce.Do(func() {
		close(a.ShutdownRequested)
	})
}

// Start 启动所有入口，非阻塞。任何一个入口异常退出都会写入返回的通道。
func (a *App) Start() <-chan error {
	errCh := make(chan error, 3)

	go func() {
		logrus.WithField("addr", a.Config.ChatAddr).Info("Starting TCP chat server")
		if err := a.ChatServer.ListenAndServe(); err != nil {
			errCh <- fmt.Errorf("chat server: %w", err)
		}
	}()

	go func() {
		logrus.WithField("addr", a.Config.AdminAddr).Info("Starting admin HTTP server")
		if err := a.AdminHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("admin server: %w", err)
		}
	}()

	if err := a.Worker.Start(); err != nil {
		errCh <- fmt.Errorf("worker: %w", err)
	}

	return errCh
}

// Shutdown 按启动的逆序优雅关闭所有组件。
func (a *App) Shutdown(ctx context.Context) {
	logrus.Info("Shutting down application")

	a.Worker.Shutdown()

	if err := a.AdminHTTP.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("Admin HTTP shutdown error")
	}

	a.ChatServer.Shutdown(ctx)

	if err := a.RedisClient.Close(); err != nil {
		logrus.WithError(err).Warn("Redis close error")
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logrus.WithError(err).Warn("Database close error")
		}
	}

	logrus.Info("Application stopped")
}
