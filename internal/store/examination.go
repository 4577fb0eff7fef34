package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/medilink/vitals-relay/internal/session"
)

// ErrIDExhausted бюджет попыток генерации уникального ID результата исчерпан
var ErrIDExhausted = errors.New("examination result id attempts exhausted")

const idMaxAttempts = 10

// vitalsBlockRe находит ранее вставленный блок мониторинга в свободном тексте
// заметок. Хрупкая текстовая хирургия над общим полем — формат блока менять
// нельзя без миграции уже записанных заметок.
var vitalsBlockRe = regexp.MustCompile(`(?s)=== Vital Signs Monitoring ===.*?==============================`)

// mergeExaminationResult вливает итоги мониторинга в результат осмотра,
// привязанный к приему. Конкурентные EndSession одного приема гонятся на
// этом check-then-act: разрешение требует уникального ограничения на
// appointment_id в схеме МИС.
func (g *Gateway) mergeExaminationResult(ctx context.Context, s *session.Session, summary *session.Summary, endedAt time.Time) error {
	block := formatVitalsBlock(s.StartedAt, endedAt, summary)

	var (
		resultID string
		notes    sql.NullString
	)
	err := g.db.QueryRowContext(ctx,
		`SELECT id, notes FROM examination_results WHERE appointment_id = ? LIMIT 1`,
		*s.AppointmentID,
	).Scan(&resultID, &notes)

	switch {
	case err == nil:
		merged := upsertVitalsBlock(notes.String, block)
		_, err = g.db.ExecContext(ctx,
			`UPDATE examination_results SET notes = ?, heart_rate = ?, spo2 = ?, updated_at = ? WHERE id = ?`,
			merged, summary.AvgHeartRate, summary.AvgSpO2, endedAt, resultID,
		)
		if err != nil {
			return fmt.Errorf("failed to update examination result %s: %w", resultID, err)
		}
		log.Printf("[STORE] Merged vitals block into examination result %s", resultID)
		return nil

	case err == sql.ErrNoRows:
		newID, err := g.generateResultID(ctx)
		if err != nil {
			return err
		}
		_, err = g.db.ExecContext(ctx,
			`INSERT INTO examination_results (id, appointment_id, notes, heart_rate, spo2, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			newID, *s.AppointmentID, block, summary.AvgHeartRate, summary.AvgSpO2, endedAt, endedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert examination result %s: %w", newID, err)
		}
		log.Printf("[STORE] Created examination result %s for appointment %s", newID, *s.AppointmentID)
		return nil

	default:
		return fmt.Errorf("failed to look up examination result: %w", err)
	}
}

// generateResultID генерирует ID вида HP<timestamp><4 случайные цифры>
// с проверкой уникальности, не больше idMaxAttempts попыток
func (g *Gateway) generateResultID(ctx context.Context) (string, error) {
	for attempt := 0; attempt < idMaxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(g.idRetryDelay)
		}

		id := fmt.Sprintf("HP%s%04d", g.now().Format("20060102150405"), rand.Intn(10000))

		var count int
		err := g.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM examination_results WHERE id = ?`, id,
		).Scan(&count)
		if err != nil {
			return "", fmt.Errorf("failed to check result id uniqueness: %w", err)
		}
		if count == 0 {
			return id, nil
		}
	}
	return "", ErrIDExhausted
}

// upsertVitalsBlock заменяет существующий блок мониторинга в заметках или
// дописывает его в конец
func upsertVitalsBlock(notes, block string) string {
	if vitalsBlockRe.MatchString(notes) {
		return vitalsBlockRe.ReplaceAllString(notes, block)
	}
	if strings.TrimSpace(notes) == "" {
		return block
	}
	return notes + "\n\n" + block
}

// formatVitalsBlock собирает фиксированный текстовый блок итогов мониторинга
func formatVitalsBlock(startedAt, endedAt time.Time, summary *session.Summary) string {
	anomaly := "No"
	if summary.HasAnomaly {
		anomaly = "Yes"
	}

	var b strings.Builder
	b.WriteString("=== Vital Signs Monitoring ===\n")
	fmt.Fprintf(&b, "Period: %s - %s\n",
		startedAt.Format("2006-01-02 15:04:05"), endedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Heart Rate (avg/min/max): %s bpm\n",
		formatStatLine(summary.AvgHeartRate, summary.MinHeartRate, summary.MaxHeartRate))
	fmt.Fprintf(&b, "SpO2 (avg/min/max): %s %%\n",
		formatStatLine(summary.AvgSpO2, summary.MinSpO2, summary.MaxSpO2))
	fmt.Fprintf(&b, "Anomaly detected: %s\n", anomaly)
	b.WriteString("==============================")
	return b.String()
}

func formatStatLine(avg, min, max *float64) string {
	if avg == nil {
		return "- / - / -"
	}
	return fmt.Sprintf("%.2f / %.2f / %.2f", *avg, *min, *max)
}
