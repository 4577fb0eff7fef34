package batch

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/medilink/vitals-relay/internal/vitals"
)

// Sink интерфейс для записи усредненных окон (Persistence Gateway)
type Sink interface {
	WriteAggregate(ctx context.Context, sessionID, patientID string, points []vitals.Reading) error
}

// buffer накопитель измерений одной сессии
type buffer struct {
	patientID string
	points    []vitals.Reading
	lastFlush time.Time
}

// Aggregator копит измерения по сессиям и сбрасывает их по правилу
// "прошло >= interval с последнего flush, проверка при приходе измерения".
// Фонового таймера нет: без новых измерений точки ждут до следующего
// измерения или конца сессии.
type Aggregator struct {
	interval time.Duration
	sink     Sink
	now      func() time.Time

	mu      sync.Mutex
	buffers map[string]*buffer
}

// NewAggregator создает новый Aggregator
func NewAggregator(interval time.Duration, sink Sink) *Aggregator {
	return &Aggregator{
		interval: interval,
		sink:     sink,
		now:      time.Now,
		buffers:  make(map[string]*buffer),
	}
}

// Add добавляет измерение в буфер сессии. Если окно истекло, накопленные
// точки сбрасываются синхронно до добавления нового измерения — оно
// открывает следующее окно.
func (a *Aggregator) Add(ctx context.Context, sessionID, patientID string, r vitals.Reading) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()

	b, exists := a.buffers[sessionID]
	if !exists {
		b = &buffer{patientID: patientID, lastFlush: now}
		a.buffers[sessionID] = b
	}

	if len(b.points) > 0 && now.Sub(b.lastFlush) >= a.interval {
		a.flushLocked(ctx, sessionID, b, now)
	}

	b.points = append(b.points, r)
}

// FlushSession сбрасывает остаток буфера сессии (вызывается при конце сессии)
func (a *Aggregator) FlushSession(ctx context.Context, sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if b, ok := a.buffers[sessionID]; ok {
		a.flushLocked(ctx, sessionID, b, a.now())
	}
}

// Drop удаляет буфер сессии без сброса
func (a *Aggregator) Drop(sessionID string) {
	a.mu.Lock()
	delete(a.buffers, sessionID)
	a.mu.Unlock()
}

// flushLocked пишет накопленное окно в sink и очищает буфер.
// Пустой буфер — no-op. Ошибка записи логируется, окно при этом теряется.
func (a *Aggregator) flushLocked(ctx context.Context, sessionID string, b *buffer, now time.Time) {
	if len(b.points) == 0 {
		return
	}

	points := make([]vitals.Reading, len(b.points))
	copy(points, b.points)

	b.points = b.points[:0]
	b.lastFlush = now

	if err := a.sink.WriteAggregate(ctx, sessionID, b.patientID, points); err != nil {
		log.Printf("[BATCH] Failed to write aggregate for session %s: %v", sessionID, err)
	}
}
