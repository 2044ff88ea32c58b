package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-car-booking/internal/api"
	"github.com/sanosuguru/go-car-booking/internal/api/handler"
	"github.com/sanosuguru/go-car-booking/internal/api/middleware"
	"github.com/sanosuguru/go-car-booking/internal/application"
	"github.com/sanosuguru/go-car-booking/internal/config"
	"github.com/sanosuguru/go-car-booking/internal/domain/booking"
	"github.com/sanosuguru/go-car-booking/internal/domain/car"
	"github.com/sanosuguru/go-car-booking/internal/domain/transaction"
	"github.com/sanosuguru/go-car-booking/internal/infrastructure/memory"
	"github.com/sanosuguru/go-car-booking/internal/infrastructure/notifier"
	"github.com/sanosuguru/go-car-booking/internal/infrastructure/postgres"
	"github.com/sanosuguru/go-car-booking/internal/infrastructure/rabbitmq"
	redisinfra "github.com/sanosuguru/go-car-booking/internal/infrastructure/redis"
	"github.com/sanosuguru/go-car-booking/internal/pkg/clock"
	"github.com/sanosuguru/go-car-booking/internal/pkg/lock"
	"github.com/sanosuguru/go-car-booking/internal/pkg/logger"
	"github.com/sanosuguru/go-car-booking/internal/pkg/metrics"
	"github.com/sanosuguru/go-car-booking/internal/pkg/tracing"
	"github.com/sanosuguru/go-car-booking/internal/worker"
)

const serviceName = "car-booking"

// storage は選択したドライバーのリポジトリ一式
type storage struct {
	cars      car.Repository
	bookings  booking.Repository
	txManager transaction.Manager
	pinger    handler.Pinger
	close     func() error
}

func main() {
	// .env は任意
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "設定エラー: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Env)
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Fatal("起動に失敗しました", zap.Error(err))
	}
}

func run(cfg *config.Config) error {
	ctx := context.Background()

	clk, err := clock.NewZoned(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("タイムゾーンの読み込みに失敗: %w", err)
	}

	shutdownTracing, err := tracing.Init(ctx, serviceName, cfg.Tracing.Endpoint, cfg.Env)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("トレーサーの終了に失敗しました", zap.Error(err))
		}
	}()

	m := metrics.Init()

	store, err := openStorage(cfg, clk)
	if err != nil {
		return err
	}
	defer store.close()

	// Redis（分散ロック、ビューキャッシュ）
	var (
		redisClient *goredis.Client
		locks       lock.Manager = lock.NewKeyedArena()
		viewCache   application.ViewCache
	)
	if cfg.RedisRequired() {
		redisClient, err = redisinfra.NewClient(&cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		logger.Info("Redisに接続しました", zap.String("addr", cfg.Redis.Addr()))

		if cfg.Booking.LockDriver == "redis" {
			locks = redisinfra.NewLockManager(redisClient)
		}
		if cfg.Redis.CacheEnabled && cfg.Redis.CacheTTL > 0 {
			viewCache = redisinfra.NewViewCache(redisClient)
		}
	}

	// 通知
	formatter := notifier.NewFormatter(clk.Location())
	var bookingNotifier application.Notifier = notifier.NewLogNotifier(logger.Named("notifier"), formatter)
	if cfg.RabbitMQ.URL != "" {
		publisher, err := rabbitmq.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			return err
		}
		defer publisher.Close()
		bookingNotifier = rabbitmq.NewBookingNotifier(publisher, formatter)
		logger.Info("RabbitMQに接続しました", zap.String("exchange", cfg.RabbitMQ.Exchange))
	}

	// サービス
	arbiter := application.NewArbiter(store.txManager, store.bookings, store.cars, locks, application.ArbiterConfig{
		PastTolerance:  cfg.Booking.PastTolerance,
		Timeout:        cfg.Booking.ArbitrationTimeout,
		LockTTL:        cfg.Booking.LockTTL,
		LockRetries:    cfg.Booking.LockRetries,
		LockRetryDelay: cfg.Booking.LockRetryDelay,
	}, m)
	bookingService := application.NewBookingService(arbiter, store.bookings, store.cars, store.txManager, bookingNotifier, clk, m,
		application.WithViewCache(viewCache),
		application.WithNotifyTimeout(cfg.Booking.NotifyTimeout),
	)
	defer bookingService.Close()
	carService := application.NewCarService(store.cars, store.bookings, viewCache, cfg.Redis.CacheTTL, clk)
	statisticsService := application.NewStatisticsService(store.bookings, store.cars, clk.Location())
	reminderService := application.NewReminderService(store.bookings, store.cars, bookingNotifier, clk,
		cfg.Reminder.Horizon, cfg.Booking.NotifyTimeout, m)

	// リマインダー
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()
	var dispatcher *worker.ReminderDispatcher
	if cfg.Reminder.Interval > 0 {
		dispatcher = worker.NewReminderDispatcher(reminderService, cfg.Reminder.Interval)
		go dispatcher.Start(workerCtx)
	}

	// HTTP
	metricsCfg, err := middleware.LoadMetricsConfig()
	if err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	e.Validator = api.NewValidator()
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout
	middleware.SetupMiddleware(e, serviceName, m)

	components := map[string]handler.Pinger{"storage": store.pinger}
	if redisClient != nil {
		components["redis"] = handler.PingFunc(func(ctx context.Context) error {
			return redisinfra.Ping(ctx, redisClient)
		})
	}
	handler.RegisterRoutes(e, handler.Handlers{
		Health:     handler.NewHealthHandler(clk, components),
		Cars:       handler.NewCarHandler(carService),
		Bookings:   handler.NewBookingHandler(bookingService, clk.Location()),
		Statistics: handler.NewStatisticsHandler(statisticsService),
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()), middleware.MetricsBasicAuth(metricsCfg))

	go func() {
		logger.Info("サーバーを起動します",
			zap.String("port", cfg.Server.Port),
			zap.String("storage", cfg.Database.Driver),
			zap.String("lock", cfg.Booking.LockDriver),
			zap.String("timezone", cfg.Timezone),
		)
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("サーバー起動エラー", zap.Error(err))
		}
	}()

	// シグナル待機
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("サーバーをシャットダウンしています...")

	if dispatcher != nil {
		dispatcher.Stop()
	}
	cancelWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("サーバーシャットダウンエラー: %w", err)
	}

	logger.Info("サーバーが正常にシャットダウンしました")
	return nil
}

// openStorage は STORAGE_DRIVER に応じてリポジトリを構成する
func openStorage(cfg *config.Config, clk clock.Clock) (*storage, error) {
	if cfg.Database.Driver == "memory" {
		store := memory.NewStore()
		cars := memory.NewCarRepository(store)
		if err := seedCars(cars, clk.Now()); err != nil {
			return nil, err
		}
		logger.Warn("インメモリストレージで起動します。再起動で予約は失われます")
		return &storage{
			cars:      cars,
			bookings:  memory.NewBookingRepository(store),
			txManager: memory.NewTxManager(store),
			close:     func() error { return nil },
		}, nil
	}

	db, err := postgres.NewConnection(&cfg.Database)
	if err != nil {
		return nil, err
	}
	if cfg.Database.MigrationsPath != "" {
		if err := postgres.RunMigrations(db.DB, cfg.Database.MigrationsPath); err != nil {
			db.Close()
			return nil, err
		}
	}
	logger.Info("データベースに接続しました", zap.String("host", cfg.Database.Host), zap.String("db", cfg.Database.DBName))
	return &storage{
		cars:      postgres.NewCarRepository(db),
		bookings:  postgres.NewBookingRepository(db),
		txManager: postgres.NewTxManager(db),
		pinger: handler.PingFunc(func(ctx context.Context) error {
			return postgres.Ping(ctx, db)
		}),
		close: db.Close,
	}, nil
}

// defaultFleet はインメモリ起動時に登録する車両
var defaultFleet = []struct {
	name  string
	seats int
}{
	{"Fiat Panda", 5},
	{"Fiat 500L", 5},
	{"Volkswagen Transporter", 9},
}

func seedCars(repo car.Repository, now time.Time) error {
	ctx := context.Background()
	for _, f := range defaultFleet {
		c := car.NewCar(f.name, f.seats, now)
		if err := repo.Create(ctx, c); err != nil {
			return fmt.Errorf("車両の初期登録に失敗: %w", err)
		}
	}
	return nil
}
