package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/medilink/vitals-relay/internal/session"
	"github.com/medilink/vitals-relay/internal/vitals"
)

// Gateway пишет усредненные измерения и итоги сессий в MySQL (Infrastructure Layer)
type Gateway struct {
	db  *sql.DB
	now func() time.Time

	// Пауза между попытками генерации ID результата осмотра
	idRetryDelay time.Duration
}

// NewGateway создает новый Gateway
func NewGateway(db *sql.DB) *Gateway {
	return &Gateway{
		db:           db,
		now:          time.Now,
		idRetryDelay: 10 * time.Millisecond,
	}
}

// WriteAggregate усредняет окно измерений и пишет по одной строке на метрику.
// Пустое окно — no-op. Ошибки наверх не пробрасываются вызывающим кодом:
// окно к этому моменту уже очищено и при сбое теряется.
func (g *Gateway) WriteAggregate(ctx context.Context, sessionID, patientID string, points []vitals.Reading) error {
	if len(points) == 0 {
		return nil
	}

	var hrSum, spo2Sum float64
	for _, p := range points {
		hrSum += p.HeartRate
		spo2Sum += p.SpO2
	}
	avgHR := round2(hrSum / float64(len(points)))
	avgSpO2 := round2(spo2Sum / float64(len(points)))

	now := g.now()
	query := `
		INSERT INTO vital_measurements (session_id, patient_id, metric, value, unit, status, measured_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	if _, err := g.db.ExecContext(ctx, query,
		sessionID, patientID, string(vitals.MetricHeartRate), avgHR,
		vitals.MetricHeartRate.Unit(), string(vitals.ClassifyHeartRate(avgHR)), now,
	); err != nil {
		return fmt.Errorf("failed to insert heart_rate aggregate: %w", err)
	}

	if _, err := g.db.ExecContext(ctx, query,
		sessionID, patientID, string(vitals.MetricSpO2), avgSpO2,
		vitals.MetricSpO2.Unit(), string(vitals.ClassifySpO2(avgSpO2)), now,
	); err != nil {
		return fmt.Errorf("failed to insert spo2 aggregate: %w", err)
	}

	log.Printf("[STORE] Wrote aggregate for session %s: hr=%.2f spo2=%.2f points=%d",
		sessionID, avgHR, avgSpO2, len(points))
	return nil
}

// metricStats агрегаты одной метрики по всем персистентным строкам сессии
type metricStats struct {
	avg       float64
	min       float64
	max       float64
	count     int64
	nonNormal int64
}

// EndSession считает итоги по персистентным измерениям, завершает строку
// сессии и, если привязан прием, вливает блок мониторинга в результат осмотра.
func (g *Gateway) EndSession(ctx context.Context, s *session.Session) error {
	stats, err := g.queryStats(ctx, s.ID)
	if err != nil {
		return fmt.Errorf("failed to query measurement stats: %w", err)
	}

	summary := buildSummary(stats)
	endedAt := g.now()

	if err := g.completeSession(ctx, s.ID, summary, endedAt); err != nil {
		return err
	}

	if s.AppointmentID == nil {
		return nil
	}
	return g.mergeExaminationResult(ctx, s, summary, endedAt)
}

func (g *Gateway) queryStats(ctx context.Context, sessionID string) (map[vitals.Metric]metricStats, error) {
	query := `
		SELECT metric, AVG(value), MIN(value), MAX(value), COUNT(*),
			SUM(CASE WHEN status <> 'normal' THEN 1 ELSE 0 END)
		FROM vital_measurements
		WHERE session_id = ?
		GROUP BY metric
	`

	rows, err := g.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[vitals.Metric]metricStats)
	for rows.Next() {
		var (
			metric string
			ms     metricStats
		)
		if err := rows.Scan(&metric, &ms.avg, &ms.min, &ms.max, &ms.count, &ms.nonNormal); err != nil {
			return nil, err
		}
		stats[vitals.Metric(metric)] = ms
	}
	return stats, rows.Err()
}

// buildSummary превращает агрегаты в Summary. Аномалия определяется только
// по строкам heart_rate со статусом warning/critical.
func buildSummary(stats map[vitals.Metric]metricStats) *session.Summary {
	summary := &session.Summary{}

	if hr, ok := stats[vitals.MetricHeartRate]; ok && hr.count > 0 {
		summary.AvgHeartRate = ptr(round2(hr.avg))
		summary.MinHeartRate = ptr(hr.min)
		summary.MaxHeartRate = ptr(hr.max)
		summary.HasAnomaly = hr.nonNormal > 0
	}
	if sp, ok := stats[vitals.MetricSpO2]; ok && sp.count > 0 {
		summary.AvgSpO2 = ptr(round2(sp.avg))
		summary.MinSpO2 = ptr(sp.min)
		summary.MaxSpO2 = ptr(sp.max)
	}

	return summary
}

func (g *Gateway) completeSession(ctx context.Context, sessionID string, summary *session.Summary, endedAt time.Time) error {
	query := `
		UPDATE monitoring_sessions
		SET status = 'completed', ended_at = ?,
			avg_heart_rate = ?, min_heart_rate = ?, max_heart_rate = ?,
			avg_spo2 = ?, min_spo2 = ?, max_spo2 = ?,
			has_anomaly = ?
		WHERE id = ?
	`

	_, err := g.db.ExecContext(ctx, query,
		endedAt,
		summary.AvgHeartRate, summary.MinHeartRate, summary.MaxHeartRate,
		summary.AvgSpO2, summary.MinSpO2, summary.MaxSpO2,
		summary.HasAnomaly,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete session %s: %w", sessionID, err)
	}

	log.Printf("[STORE] Completed session %s (anomaly=%v)", sessionID, summary.HasAnomaly)
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func ptr(v float64) *float64 {
	return &v
}
