package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-car-booking/internal/pkg/logger"
)

const (
	exchangeKind = "topic"

	minReconnectDelay = 500 * time.Millisecond
	maxReconnectDelay = 30 * time.Second
)

// ErrPublisherClosed は Close 後に発行しようとした場合のエラー
var ErrPublisherClosed = errors.New("パブリッシャーは終了しています")

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// session は 1 本の接続とその上のチャネル
// closed はブローカー側の切断を含め、チャネルが閉じたときに通知される
type session struct {
	ch     amqpChannel
	closed <-chan *amqp.Error
	close  func() error
}

type dialFunc func() (*session, error)

// Publisher はトピックエクスチェンジに JSON メッセージを発行する
// 接続が切れた場合はバックグラウンドで再接続し、発行時にも未接続なら接続し直す
type Publisher struct {
	mu       sync.Mutex
	sess     *session
	dial     dialFunc
	exchange string
	minDelay time.Duration
	shutdown bool
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewPublisher は RabbitMQ に接続し、エクスチェンジを宣言する
func NewPublisher(url, exchange string) (*Publisher, error) {
	return newPublisher(exchange, amqpDialer(url, exchange), minReconnectDelay)
}

func newPublisher(exchange string, dial dialFunc, minDelay time.Duration) (*Publisher, error) {
	p := &Publisher{
		dial:     dial,
		exchange: exchange,
		minDelay: minDelay,
		done:     make(chan struct{}),
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connectLocked(); err != nil {
		return nil, err
	}
	return p, nil
}

func amqpDialer(url, exchange string) dialFunc {
	return func() (*session, error) {
		conn, err := amqp.Dial(url)
		if err != nil {
			return nil, fmt.Errorf("RabbitMQ接続に失敗しました: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("チャネルの作成に失敗しました: %w", err)
		}
		if err := ch.ExchangeDeclare(exchange, exchangeKind, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("エクスチェンジの宣言に失敗しました: %w", err)
		}
		// 接続が切れるとチャネルも閉じるため、チャネル側の通知だけを監視する
		closed := ch.NotifyClose(make(chan *amqp.Error, 1))
		return &session{
			ch:     ch,
			closed: closed,
			close: func() error {
				if !ch.IsClosed() {
					_ = ch.Close()
				}
				if conn.IsClosed() {
					return nil
				}
				return conn.Close()
			},
		}, nil
	}
}

// connectLocked は新しいセッションを張り、切断の監視を始める。p.mu を保持して呼ぶ
func (p *Publisher) connectLocked() error {
	s, err := p.dial()
	if err != nil {
		return err
	}
	p.sess = s
	p.wg.Add(1)
	go p.watch(s)
	return nil
}

// dropLocked は現在のセッションを破棄する。p.mu を保持して呼ぶ
func (p *Publisher) dropLocked(s *session) bool {
	if p.sess != s {
		return false
	}
	p.sess = nil
	_ = s.close()
	return true
}

// watch はセッションの切断を待ち、ブローカー側から切られた場合は再接続する
func (p *Publisher) watch(s *session) {
	defer p.wg.Done()

	var reason *amqp.Error
	select {
	case reason = <-s.closed:
	case <-p.done:
		return
	}

	p.mu.Lock()
	dropped := !p.shutdown && p.dropLocked(s)
	p.mu.Unlock()
	if !dropped {
		return
	}

	fields := []zap.Field{zap.String("exchange", p.exchange)}
	if reason != nil {
		fields = append(fields, zap.Int("code", reason.Code), zap.String("reason", reason.Reason))
	}
	logger.Warn("RabbitMQのチャネルが切断されました。再接続します", fields...)
	p.reconnect()
}

// reconnect は接続できるか Close されるまで、間隔を広げながら再接続を試みる
func (p *Publisher) reconnect() {
	delay := p.minDelay
	for attempt := 1; ; attempt++ {
		select {
		case <-p.done:
			return
		case <-time.After(delay):
		}

		p.mu.Lock()
		if p.shutdown || p.sess != nil {
			// 発行側で接続し直した
			p.mu.Unlock()
			return
		}
		err := p.connectLocked()
		p.mu.Unlock()
		if err == nil {
			logger.Info("RabbitMQに再接続しました", zap.String("exchange", p.exchange), zap.Int("attempt", attempt))
			return
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
		logger.Warn("RabbitMQへの再接続に失敗しました",
			zap.String("exchange", p.exchange),
			zap.Int("attempt", attempt),
			zap.Duration("next_delay", delay),
			zap.Error(err),
		)
	}
}

// PublishJSON は v を JSON にしてルーティングキー key で発行する
func (p *Publisher) PublishJSON(ctx context.Context, key string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("メッセージの変換に失敗: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shutdown {
		return ErrPublisherClosed
	}
	if p.sess == nil {
		if err := p.connectLocked(); err != nil {
			return fmt.Errorf("メッセージの発行に失敗: %w", err)
		}
	}

	s := p.sess
	if err := s.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	}); err != nil {
		// 閉じたチャネルは次回の発行で張り直す
		if errors.Is(err, amqp.ErrClosed) {
			p.dropLocked(s)
		}
		return fmt.Errorf("メッセージの発行に失敗: %w", err)
	}
	return nil
}

// Close はチャネルと接続を閉じ、再接続を止める
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return nil
	}
	p.shutdown = true
	close(p.done)
	var err error
	if p.sess != nil {
		err = p.sess.close()
		p.sess = nil
	}
	p.mu.Unlock()

	p.wg.Wait()
	return err
}
