package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-car-booking/internal/domain/booking"
	"github.com/sanosuguru/go-car-booking/internal/domain/car"
	"github.com/sanosuguru/go-car-booking/internal/domain/transaction"
	"github.com/sanosuguru/go-car-booking/internal/pkg/lock"
	"github.com/sanosuguru/go-car-booking/internal/pkg/logger"
	"github.com/sanosuguru/go-car-booking/internal/pkg/metrics"
)

var tracer = otel.Tracer("github.com/sanosuguru/go-car-booking/internal/application")

// ArbiterConfig は調停の設定
type ArbiterConfig struct {
	// PastTolerance は開始時刻が現在より過去であっても許容する幅
	PastTolerance time.Duration
	// Timeout は調停全体の上限時間
	Timeout time.Duration

	LockTTL        time.Duration
	LockRetries    int
	LockRetryDelay time.Duration
}

// DefaultArbiterConfig はデフォルトの調停設定を返す
func DefaultArbiterConfig() ArbiterConfig {
	return ArbiterConfig{
		PastTolerance:  5 * time.Minute,
		Timeout:        5 * time.Second,
		LockTTL:        10 * time.Second,
		LockRetries:    20,
		LockRetryDelay: 50 * time.Millisecond,
	}
}

// Accepted は調停で受理された予約
type Accepted struct {
	Booking *booking.Booking
	Car     *car.Car
}

// Arbiter は車両ごとに予約の受付を直列化し、重複する有効な予約を拒否する
//
// 同じ車両への調停は次の順で保護される:
//  1. lock.Manager による車両キーのロック(プロセス内またはRedis)
//  2. トランザクション内での車両行のロック
//  3. ストレージ側の重複制約(コミット時の再検証)
type Arbiter struct {
	txManager transaction.Manager
	bookings  booking.Repository
	cars      car.Repository
	locks     lock.Manager
	cfg       ArbiterConfig
	metrics   *metrics.Metrics
}

// NewArbiter は Arbiter を生成する
func NewArbiter(
	txManager transaction.Manager,
	bookings booking.Repository,
	cars car.Repository,
	locks lock.Manager,
	cfg ArbiterConfig,
	m *metrics.Metrics,
) *Arbiter {
	return &Arbiter{
		txManager: txManager,
		bookings:  bookings,
		cars:      cars,
		locks:     locks,
		cfg:       cfg,
		metrics:   m,
	}
}

// TryReserve は候補の予約を調停し、受理された場合は永続化する
// 拒否理由は booking パッケージのセンチネルエラーで返す
func (a *Arbiter) TryReserve(ctx context.Context, candidate *booking.Booking, now time.Time) (*Accepted, error) {
	started := time.Now()
	ctx, span := tracer.Start(ctx, "Arbiter.TryReserve")
	defer span.End()
	span.SetAttributes(
		attribute.String("car.id", candidate.CarID),
		attribute.String("booking.start", candidate.StartTime.Format(time.RFC3339)),
		attribute.String("booking.end", candidate.EndTime.Format(time.RFC3339)),
	)

	accepted, err := a.tryReserve(ctx, candidate, now)
	outcome := arbitrationOutcome(err)
	a.metrics.ObserveArbitration(outcome, time.Since(started))
	span.SetAttributes(attribute.String("arbitration.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return nil, err
	}
	return accepted, nil
}

func (a *Arbiter) tryReserve(ctx context.Context, candidate *booking.Booking, now time.Time) (*Accepted, error) {
	if err := candidate.Validate(); err != nil {
		return nil, err
	}
	if candidate.StartTime.Before(now.Add(-a.cfg.PastTolerance)) {
		return nil, booking.ErrPastStart
	}
	candidate.RecomputeDuration()

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	if a.locks != nil {
		l, err := a.acquire(ctx, candidate.CarID)
		if err != nil {
			return nil, err
		}
		defer a.release(l, candidate.CarID)
	}

	tx, err := a.txManager.Begin(ctx)
	if err != nil {
		return nil, classify(ctx, fmt.Errorf("トランザクションの開始に失敗: %w", err))
	}
	defer tx.Rollback()

	c, err := a.cars.LockForBooking(ctx, tx, candidate.CarID)
	if err != nil {
		return nil, classify(ctx, err)
	}

	active, err := a.bookings.FindActiveByCar(ctx, tx, candidate.CarID)
	if err != nil {
		return nil, classify(ctx, fmt.Errorf("有効な予約の取得に失敗: %w", err))
	}
	window := candidate.Window()
	for _, existing := range active {
		if existing.Active && existing.Window().Overlaps(window) {
			return nil, booking.ErrConflict
		}
	}

	if err := a.bookings.Create(ctx, tx, candidate); err != nil {
		return nil, classify(ctx, err)
	}
	// 期限切れ後のコミットは呼び出し元に届かない受理になるため行わない
	if err := ctx.Err(); err != nil {
		return nil, classify(ctx, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, classify(ctx, fmt.Errorf("コミットに失敗: %w", err))
	}

	return &Accepted{Booking: candidate, Car: c}, nil
}

func (a *Arbiter) acquire(ctx context.Context, carID string) (lock.Lock, error) {
	started := time.Now()
	l, err := a.locks.AcquireLockWithRetry(ctx, lockKey(carID), a.cfg.LockTTL, a.cfg.LockRetries, a.cfg.LockRetryDelay)
	if err != nil {
		a.metrics.ObserveLock("acquire", "failed", time.Since(started))
		if errors.Is(err, lock.ErrNotAcquired) || ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", booking.ErrTimeout, err)
		}
		return nil, fmt.Errorf("ロックの取得に失敗: %w", err)
	}
	a.metrics.ObserveLock("acquire", "success", time.Since(started))
	return l, nil
}

// release は調停のコンテキストが終了していても解放できるよう独立したコンテキストを使う
func (a *Arbiter) release(l lock.Lock, carID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	started := time.Now()
	if err := l.Release(ctx); err != nil {
		a.metrics.ObserveLock("release", "failed", time.Since(started))
		logger.Warn("ロックの解放に失敗しました",
			zap.String("car_id", carID),
			zap.Error(err),
		)
		return
	}
	a.metrics.ObserveLock("release", "success", time.Since(started))
}

func lockKey(carID string) string {
	return "car:" + carID
}

// classify は期限切れやキャンセルによる失敗を ErrTimeout に変換する
func classify(ctx context.Context, err error) error {
	if booking.IsRejection(err) {
		return err
	}
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", booking.ErrTimeout, err)
	}
	return err
}

func arbitrationOutcome(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, booking.ErrConflict):
		return "conflict"
	case errors.Is(err, booking.ErrPastStart):
		return "past_start"
	case errors.Is(err, booking.ErrInvalidWindow):
		return "invalid_window"
	case errors.Is(err, booking.ErrNotFound):
		return "not_found"
	case errors.Is(err, booking.ErrTimeout):
		return "timeout"
	case booking.IsRejection(err):
		return "invalid_request"
	default:
		return "error"
	}
}
