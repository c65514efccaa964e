package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campaign-server/internal/client"
	"campaign-server/internal/config"
	"campaign-server/internal/database"
	"campaign-server/internal/handler"
	"campaign-server/internal/messaging"
	"campaign-server/internal/service"
	"campaign-server/pkg/logger"
	"campaign-server/pkg/taskrunner"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"
)

func main() {
	// Используем стандартный log для самых ранних ошибок, до инициализации zap
	log.Println("Запуск Campaign Server...")

	if err := godotenv.Load(); err != nil {
		log.Println("Файл .env не найден, используются переменные окружения")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.LogLevel,
		Encoding: cfg.LogEncoding,
	})
	if err != nil {
		log.Fatalf("Не удалось инициализировать логгер: %v", err)
	}
	defer zapLogger.Sync()
	sugar := zapLogger.Sugar()
	sugar.Infow("Логгер инициализирован", "logLevel", cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- PostgreSQL + миграции ---
	dbPool, err := database.Connect(ctx, cfg.GetDSN(), cfg.DBMaxConns)
	if err != nil {
		sugar.Fatalf("Не удалось подключиться к PostgreSQL: %v", err)
	}
	defer dbPool.Close()
	sugar.Info("Успешно подключено к PostgreSQL")

	if err := database.NewMigrator(dbPool).Up(ctx); err != nil {
		sugar.Fatalf("Не удалось применить миграции: %v", err)
	}
	sugar.Info("Миграции применены")

	// --- Redis (кеш локаций) ---
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		sugar.Fatalf("Не удалось подключиться к Redis: %v", err)
	}
	defer redisClient.Close()
	sugar.Info("Успешно подключено к Redis")

	// --- RabbitMQ (события статусов; опционально) ---
	statusPublisher := messaging.NewNopStatusPublisher()
	if cfg.RabbitMQURL != "" {
		rabbitConn, err := connectRabbitMQ(cfg.RabbitMQURL, zapLogger)
		if err != nil {
			sugar.Fatalf("Не удалось подключиться к RabbitMQ: %v", err)
		}
		defer rabbitConn.Close()

		statusPublisher, err = messaging.NewRabbitMQStatusPublisher(rabbitConn, cfg.StatusEventQueue, zapLogger)
		if err != nil {
			sugar.Fatalf("Не удалось создать StatusEventPublisher: %v", err)
		}
		sugar.Info("Публикация событий статуса включена")
	} else {
		sugar.Info("RabbitMQ URL не задан, события статуса отключены")
	}

	// --- Клиент gamemaster-сервиса ---
	gmClient, err := client.NewGamemasterClient(cfg.GamemasterBaseURL, cfg.GamemasterToken, client.Timeouts{
		Trigger:  cfg.TriggerTimeout,
		Status:   cfg.StatusTimeout,
		Location: cfg.LocationTimeout,
	}, zapLogger)
	if err != nil {
		sugar.Fatalf("Не удалось создать GamemasterClient: %v", err)
	}

	// --- Фоновый раннер задач ---
	runner := taskrunner.New(taskrunner.Config{MaxTasks: cfg.MaxBackgroundTasks})
	go func() {
		ticker := time.NewTicker(cfg.TaskCleanupAge)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				runner.CleanupTasks(cfg.TaskCleanupAge)
			case <-ctx.Done():
				return
			}
		}
	}()

	// --- Сборка зависимостей ---
	txManager := database.NewTxManager(dbPool, zapLogger)
	jobRepo := database.NewPgGenerationJobRepository(zapLogger)
	msgRepo := database.NewPgSessionMessageRepository(zapLogger)
	locationCache := database.NewRedisLocationCache(redisClient, zapLogger)

	generationService := service.NewGenerationService(
		dbPool, txManager, jobRepo, gmClient, statusPublisher, runner,
		service.PollConfig{MaxAttempts: cfg.PollMaxAttempts, RetryDelay: cfg.PollRetryDelay},
		zapLogger,
	)
	locationService := service.NewLocationService(gmClient, locationCache, cfg.LocationCacheTTL, zapLogger)
	sessionService := service.NewSessionService(dbPool, txManager, msgRepo, zapLogger)

	h := handler.NewCampaignHandler(generationService, locationService, sessionService, zapLogger)

	// --- Настройка Gin ---
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handler.ZapLoggingMiddleware(zapLogger))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	p := ginprometheus.NewPrometheus("gin")
	p.Use(router)

	h.RegisterRoutes(router)

	// --- Запуск HTTP сервера ---
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		sugar.Infof("Campaign сервер запускается на порту %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("Ошибка запуска HTTP сервера: %v", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	sugar.Info("Получен сигнал завершения, начинаем остановку сервера...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Errorf("Ошибка при остановке HTTP сервера: %v", err)
	}

	// Даём фоновым триггерам дописать результат в журнал.
	taskCtx, taskCancel := context.WithTimeout(context.Background(), cfg.TaskShutdownTimeout)
	defer taskCancel()
	if err := runner.Shutdown(taskCtx); err != nil {
		sugar.Errorf("Фоновые задачи не завершились вовремя: %v", err)
	}

	sugar.Info("Сервер успешно остановлен")
}

// connectRabbitMQ подключается к RabbitMQ с ретраями.
func connectRabbitMQ(uri string, logger *zap.Logger) (*amqp.Connection, error) {
	var connection *amqp.Connection
	var err error
	maxRetries := 5
	retryDelay := 5 * time.Second

	for i := 0; i < maxRetries; i++ {
		connection, err = amqp.Dial(uri)
		if err == nil {
			logger.Info("Подключение к RabbitMQ успешно установлено")
			go func() {
				notifyClose := make(chan *amqp.Error)
				connection.NotifyClose(notifyClose)
				closeErr := <-notifyClose
				if closeErr != nil {
					logger.Error("Соединение с RabbitMQ разорвано", zap.Error(closeErr))
				}
			}()
			return connection, nil
		}
		logger.Warn("Не удалось подключиться к RabbitMQ, попытка переподключения...",
			zap.Error(err),
			zap.Int("retry", i+1),
			zap.Duration("delay", retryDelay),
		)
		time.Sleep(retryDelay)
	}
	return nil, fmt.Errorf("не удалось подключиться к RabbitMQ после %d попыток: %w", maxRetries, err)
}
