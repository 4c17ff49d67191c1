package kunci

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	cbackoff "github.com/cenkalti/backoff/v4"
	amqp091 "github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker/v2"
)

// AMQPSinkConfig configures an AMQPSink.
type AMQPSinkConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
	// ConnectTimeout bounds the reconnect backoff in Connect; zero means 30s.
	ConnectTimeout time.Duration
	Logger         Logger
}

var errSinkNotConnected = errors.New("audit sink not connected")

// AMQPSink publishes audit batches to a RabbitMQ exchange. It reports itself
// disconnected while its connection is down or its breaker is open.
type AMQPSink struct {
	config AMQPSinkConfig
	cb     *gobreaker.CircuitBreaker[struct{}]

	mu   sync.RWMutex
	conn *amqp091.Connection
	ch   *amqp091.Channel
}

// NewAMQPSink creates an unconnected sink. Call Connect before use.
func NewAMQPSink(config AMQPSinkConfig) *AMQPSink {
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 30 * time.Second
	}
	if config.RoutingKey == "" {
		config.RoutingKey = "audit.logs"
	}
	return &AMQPSink{
		config: config,
		cb:     newSinkBreaker("audit-amqp"),
	}
}

func newSinkBreaker(name string) *gobreaker.CircuitBreaker[struct{}] {
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
}

// Connect dials the broker, retrying with exponential backoff until
// ConnectTimeout elapses or ctx is done.
func (s *AMQPSink) Connect(ctx context.Context) error {
	if s.config.URL == "" {
		return fmt.Errorf("amqp: url is required")
	}

	bo := cbackoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = s.config.ConnectTimeout

	return cbackoff.Retry(func() error {
		conn, err := amqp091.Dial(s.config.URL)
		if err != nil {
			s.warn("AMQP audit sink connect failed, retrying", "error", err)
			return err
		}
		ch, err := conn.Channel()
		if err != nil {
			conn.Close()
			return err
		}

		s.mu.Lock()
		s.conn, s.ch = conn, ch
		s.mu.Unlock()
		return nil
	}, cbackoff.WithContext(bo, ctx))
}

// Connected implements DurableSink.
func (s *AMQPSink) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn != nil && !s.conn.IsClosed() && s.cb.State() != gobreaker.StateOpen
}

// Send implements BatchSink.
func (s *AMQPSink) Send(ctx context.Context, entries []AuditEntry) error {
	body, err := json.Marshal(batchPayload{Logs: entries})
	if err != nil {
		return fmt.Errorf("encode audit batch: %w", err)
	}

	s.mu.RLock()
	ch := s.ch
	s.mu.RUnlock()
	if ch == nil {
		return errSinkNotConnected
	}

	_, err = s.cb.Execute(func() (struct{}, error) {
		return struct{}{}, ch.PublishWithContext(ctx,
			s.config.Exchange,
			s.config.RoutingKey,
			false, false,
			amqp091.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp091.Persistent,
				Timestamp:    time.Now(),
				Body:         body,
			},
		)
	})
	if err != nil {
		return fmt.Errorf("amqp: publish audit batch: %w", err)
	}
	return nil
}

// Close shuts down the AMQP connection.
func (s *AMQPSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch != nil {
		s.ch.Close()
		s.ch = nil
	}
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

func (s *AMQPSink) warn(msg string, keysAndValues ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Warn(msg, keysAndValues...)
	}
}
