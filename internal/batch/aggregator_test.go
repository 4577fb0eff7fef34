package batch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/medilink/vitals-relay/internal/vitals"
)

// testSink собирает все записанные окна
type testSink struct {
	mu     sync.Mutex
	writes []sinkWrite
}

type sinkWrite struct {
	sessionID string
	patientID string
	points    []vitals.Reading
}

func (ts *testSink) WriteAggregate(ctx context.Context, sessionID, patientID string, points []vitals.Reading) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.writes = append(ts.writes, sinkWrite{sessionID: sessionID, patientID: patientID, points: points})
	return nil
}

func (ts *testSink) getWrites() []sinkWrite {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	result := make([]sinkWrite, len(ts.writes))
	copy(result, ts.writes)
	return result
}

// fakeClock управляемое время для проверки правила flush
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (fc *fakeClock) Now() time.Time {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.now
}

func (fc *fakeClock) Advance(d time.Duration) {
	fc.mu.Lock()
	fc.now = fc.now.Add(d)
	fc.mu.Unlock()
}

func newTestAggregator(interval time.Duration) (*Aggregator, *testSink, *fakeClock) {
	sink := &testSink{}
	clock := &fakeClock{now: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)}
	agg := NewAggregator(interval, sink)
	agg.now = clock.Now
	return agg, sink, clock
}

func reading(hr, spo2 float64, ts time.Time) vitals.Reading {
	return vitals.NewReading(hr, spo2, ts)
}

// 10 измерений за 2 секунды, пауза 6 секунд, 11-е измерение. Ровно один
// flush с первыми 10 точками; 11-я открывает новое окно.
func TestAggregator_FlushTriggeredByArrival(t *testing.T) {
	agg, sink, clock := newTestAggregator(5 * time.Second)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		agg.Add(ctx, "session1", "patient1", reading(70+float64(i), 97, clock.Now()))
		clock.Advance(200 * time.Millisecond)
	}

	if writes := sink.getWrites(); len(writes) != 0 {
		t.Fatalf("Expected no flush within window, got %d", len(writes))
	}

	// Пауза без измерений: буфер ждет, таймера нет
	clock.Advance(6 * time.Second)

	agg.Add(ctx, "session1", "patient1", reading(80, 97, clock.Now()))

	writes := sink.getWrites()
	if len(writes) != 1 {
		t.Fatalf("Expected exactly 1 flush, got %d", len(writes))
	}
	if len(writes[0].points) != 10 {
		t.Errorf("Expected 10 points in flushed window, got %d", len(writes[0].points))
	}
	if writes[0].points[0].HeartRate != 70 || writes[0].points[9].HeartRate != 79 {
		t.Errorf("Flushed window does not match accumulated points")
	}

	// 11-я точка осталась в новом окне
	agg.FlushSession(ctx, "session1")
	writes = sink.getWrites()
	if len(writes) != 2 {
		t.Fatalf("Expected 2 flushes after FlushSession, got %d", len(writes))
	}
	if len(writes[1].points) != 1 || writes[1].points[0].HeartRate != 80 {
		t.Errorf("Expected new window with single point hr=80, got %+v", writes[1].points)
	}
}

func TestAggregator_NoDoubleCountNoDrop(t *testing.T) {
	agg, sink, clock := newTestAggregator(5 * time.Second)
	ctx := context.Background()

	total := 0
	for i := 0; i < 25; i++ {
		agg.Add(ctx, "session1", "patient1", reading(72, 97, clock.Now()))
		total++
		clock.Advance(1 * time.Second)
	}
	agg.FlushSession(ctx, "session1")

	flushed := 0
	for _, w := range sink.getWrites() {
		flushed += len(w.points)
	}
	if flushed != total {
		t.Errorf("Expected %d points across all flushes, got %d", total, flushed)
	}
}

func TestAggregator_EmptyFlushIsNoop(t *testing.T) {
	agg, sink, _ := newTestAggregator(5 * time.Second)
	ctx := context.Background()

	agg.FlushSession(ctx, "session1")
	agg.FlushSession(ctx, "missing")

	if writes := sink.getWrites(); len(writes) != 0 {
		t.Errorf("Expected no writes for empty flush, got %d", len(writes))
	}
}

func TestAggregator_SessionsIndependent(t *testing.T) {
	agg, sink, clock := newTestAggregator(5 * time.Second)
	ctx := context.Background()

	agg.Add(ctx, "session1", "patient1", reading(72, 97, clock.Now()))
	agg.Add(ctx, "session2", "patient2", reading(90, 93, clock.Now()))

	clock.Advance(6 * time.Second)
	agg.Add(ctx, "session1", "patient1", reading(73, 97, clock.Now()))

	writes := sink.getWrites()
	if len(writes) != 1 {
		t.Fatalf("Expected 1 flush (session1 only), got %d", len(writes))
	}
	if writes[0].sessionID != "session1" {
		t.Errorf("Expected session1 flush, got %s", writes[0].sessionID)
	}
}

func TestAggregator_DropDiscardsBuffer(t *testing.T) {
	agg, sink, _ := newTestAggregator(5 * time.Second)
	ctx := context.Background()

	agg.Add(ctx, "session1", "patient1", reading(72, 97, time.Now()))
	agg.Drop("session1")
	agg.FlushSession(ctx, "session1")

	if writes := sink.getWrites(); len(writes) != 0 {
		t.Errorf("Expected no writes after Drop, got %d", len(writes))
	}
}
