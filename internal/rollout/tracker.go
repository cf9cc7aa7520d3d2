package rollout

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iudanet/aishu/internal/models"
	"github.com/iudanet/aishu/internal/server/storage"
)

const (
	// DefaultTrackerBuffer размер очереди аналитики по умолчанию
	DefaultTrackerBuffer = 1024
	// DefaultWriteTimeout ограничение на одну запись в хранилище
	DefaultWriteTimeout = 2 * time.Second
)

// DropObserver получает уведомления об отброшенных записях аналитики
type DropObserver interface {
	ObserveDropped()
}

// Tracker асинхронно пишет аналитику вычислений флагов
// Track никогда не блокирует: при переполнении очереди запись отбрасывается
type Tracker struct {
	sink         storage.EvaluationStorage
	logger       *slog.Logger
	onDrop       DropObserver
	events       chan models.FlagEvaluation
	done         chan struct{}
	writeTimeout time.Duration
	dropped      atomic.Int64
	mu           sync.RWMutex
	closeOnce    sync.Once
	closed       bool
}

// TrackerOption настраивает Tracker
type TrackerOption func(*Tracker)

// WithBuffer задает размер очереди
func WithBuffer(size int) TrackerOption {
	return func(t *Tracker) {
		if size > 0 {
			t.events = make(chan models.FlagEvaluation, size)
		}
	}
}

// WithWriteTimeout задает таймаут одной записи
func WithWriteTimeout(timeout time.Duration) TrackerOption {
	return func(t *Tracker) {
		if timeout > 0 {
			t.writeTimeout = timeout
		}
	}
}

// WithDropObserver подключает счетчик отброшенных записей
func WithDropObserver(o DropObserver) TrackerOption {
	return func(t *Tracker) {
		t.onDrop = o
	}
}

// NewTracker создает Tracker и запускает фоновую горутину записи
func NewTracker(sink storage.EvaluationStorage, logger *slog.Logger, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		sink:         sink,
		logger:       logger,
		events:       make(chan models.FlagEvaluation, DefaultTrackerBuffer),
		done:         make(chan struct{}),
		writeTimeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}

	go t.run()

	return t
}

// Track ставит запись в очередь
func (t *Tracker) Track(evaluation models.FlagEvaluation) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		t.drop()
		return
	}

	select {
	case t.events <- evaluation:
	default:
		t.drop()
	}
}

// Dropped возвращает количество отброшенных записей
func (t *Tracker) Dropped() int64 {
	return t.dropped.Load()
}

func (t *Tracker) drop() {
	t.dropped.Add(1)
	if t.onDrop != nil {
		t.onDrop.ObserveDropped()
	}
}

// run пишет записи, пока очередь не закрыта и не опустошена
func (t *Tracker) run() {
	defer close(t.done)

	for evaluation := range t.events {
		t.write(evaluation)
	}
}

func (t *Tracker) write(evaluation models.FlagEvaluation) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("panic while recording flag evaluation", slog.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), t.writeTimeout)
	defer cancel()

	if err := t.sink.RecordEvaluation(ctx, &evaluation); err != nil {
		t.logger.Debug("failed to record flag evaluation",
			slog.String("flag", evaluation.FlagName),
			slog.Any("error", err))
	}
}

// Close прекращает прием записей и ждет, пока очередь допишется
// Возвращает ctx.Err(), если ctx завершился раньше
func (t *Tracker) Close(ctx context.Context) error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		close(t.events)
		t.mu.Unlock()
	})

	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
