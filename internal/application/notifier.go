package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-car-booking/internal/domain/booking"
	"github.com/sanosuguru/go-car-booking/internal/domain/car"
	"github.com/sanosuguru/go-car-booking/internal/pkg/logger"
	"github.com/sanosuguru/go-car-booking/internal/pkg/metrics"
)

// Notifier は予約に関する通知の送信先
// c は取得できなかった場合 nil になりうる
type Notifier interface {
	NotifyConfirmed(ctx context.Context, b *booking.Booking, c *car.Car) error
	NotifyStatusChanged(ctx context.Context, b *booking.Booking, c *car.Car, t booking.Transition) error
	NotifyReminder(ctx context.Context, b *booking.Booking, c *car.Car) error
}

const (
	notificationConfirmed     = "confirmed"
	notificationStatusChanged = "status_changed"
	notificationReminder      = "reminder"
)

// notificationDispatcher は通知を呼び出し元から切り離して非同期に送る
// 同じ予約の通知は登録順に 1 件ずつ送り、別の予約の通知とは並行して送る
// 失敗は記録するだけで、呼び出し元の結果には影響しない
type notificationDispatcher struct {
	timeout time.Duration
	metrics *metrics.Metrics
	wg      sync.WaitGroup

	mu     sync.Mutex
	queues map[string][]notificationJob
}

type notificationJob struct {
	kind string
	send func(ctx context.Context) error
}

func newNotificationDispatcher(timeout time.Duration, m *metrics.Metrics) *notificationDispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &notificationDispatcher{
		timeout: timeout,
		metrics: m,
		queues:  make(map[string][]notificationJob),
	}
}

func (d *notificationDispatcher) dispatch(kind, bookingID string, send func(ctx context.Context) error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.wg.Add(1)
	queue, running := d.queues[bookingID]
	d.queues[bookingID] = append(queue, notificationJob{kind: kind, send: send})
	if !running {
		go d.drain(bookingID)
	}
}

// drain は予約ごとのキューが空になるまで先頭から送信する
func (d *notificationDispatcher) drain(bookingID string) {
	for {
		d.mu.Lock()
		queue := d.queues[bookingID]
		if len(queue) == 0 {
			delete(d.queues, bookingID)
			d.mu.Unlock()
			return
		}
		job := queue[0]
		d.queues[bookingID] = queue[1:]
		d.mu.Unlock()

		d.send(bookingID, job)
		d.wg.Done()
	}
}

func (d *notificationDispatcher) send(bookingID string, job notificationJob) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := safeSend(ctx, job.send); err != nil {
		d.metrics.IncNotification(job.kind, "failed")
		logger.Warn("通知の送信に失敗しました",
			zap.String("kind", job.kind),
			zap.String("booking_id", bookingID),
			zap.Error(err),
		)
		return
	}
	d.metrics.IncNotification(job.kind, "success")
}

// wait は送信中の通知がすべて終わるまで待つ
func (d *notificationDispatcher) wait() {
	d.wg.Wait()
}

// safeSend は通知先のパニックもエラーとして扱う
func safeSend(ctx context.Context, send func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("通知処理でパニックが発生: %v", r)
		}
	}()
	return send(ctx)
}
