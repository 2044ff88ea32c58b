package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-car-booking/internal/pkg/logger"
)

// ReminderSender は開始が近い予約にリマインダーを送る
type ReminderSender interface {
	SendReminders(ctx context.Context) (sent, failed int, err error)
}

// ReminderDispatcher は一定間隔でリマインダーを送信するワーカー
type ReminderDispatcher struct {
	sender   ReminderSender
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewReminderDispatcher は新しいディスパッチャーを作成
func NewReminderDispatcher(sender ReminderSender, interval time.Duration) *ReminderDispatcher {
	return &ReminderDispatcher{
		sender:   sender,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start はディスパッチャーを開始する
// 開始直後に1回送信し、以降は interval ごとに送信する
func (d *ReminderDispatcher) Start(ctx context.Context) {
	logger.Info("リマインダーディスパッチャー開始", zap.Duration("interval", d.interval))

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	defer close(d.doneCh)

	d.dispatch(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Info("リマインダーディスパッチャー停止（コンテキストキャンセル）")
			return
		case <-d.stopCh:
			logger.Info("リマインダーディスパッチャー停止（シグナル受信）")
			return
		case <-ticker.C:
			d.dispatch(ctx)
		}
	}
}

// Stop はディスパッチャーを停止し、実行中の送信の完了を待つ
func (d *ReminderDispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
	<-d.doneCh
}

func (d *ReminderDispatcher) dispatch(ctx context.Context) {
	log := logger.Get()
	log.Debug("リマインダーの走査開始")

	sent, failed, err := d.sender.SendReminders(ctx)
	if err != nil {
		log.Error("リマインダーの走査に失敗", zap.Error(err))
		return
	}

	if sent > 0 || failed > 0 {
		log.Info("リマインダーを送信", zap.Int("sent", sent), zap.Int("failed", failed))
	} else {
		log.Debug("リマインダー対象なし")
	}
}
