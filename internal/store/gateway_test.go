package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medilink/vitals-relay/internal/session"
	"github.com/medilink/vitals-relay/internal/vitals"
)

func setupGateway(t *testing.T) (*Gateway, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	g := NewGateway(db)
	g.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	g.idRetryDelay = 0
	return g, mock
}

func readings(values ...[2]float64) []vitals.Reading {
	result := make([]vitals.Reading, 0, len(values))
	for _, v := range values {
		result = append(result, vitals.NewReading(v[0], v[1], time.Now()))
	}
	return result
}

func TestWriteAggregate(t *testing.T) {
	g, mock := setupGateway(t)

	// avg hr = (70+75+81)/3 = 75.33, avg spo2 = (95+96+99)/3 = 96.67
	points := readings([2]float64{70, 95}, [2]float64{75, 96}, [2]float64{81, 99})

	mock.ExpectExec(`INSERT INTO vital_measurements`).
		WithArgs("s1", "patient1", "heart_rate", 75.33, "bpm", "normal", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO vital_measurements`).
		WithArgs("s1", "patient1", "spo2", 96.67, "%", "normal", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(2, 1))

	require.NoError(t, g.WriteAggregate(context.Background(), "s1", "patient1", points))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteAggregate_StatusFromMean(t *testing.T) {
	g, mock := setupGateway(t)

	// Статус считается от среднего, не от отдельных точек
	points := readings([2]float64{40, 85}, [2]float64{50, 89})

	mock.ExpectExec(`INSERT INTO vital_measurements`).
		WithArgs("s1", "patient1", "heart_rate", 45.0, "bpm", "critical", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO vital_measurements`).
		WithArgs("s1", "patient1", "spo2", 87.0, "%", "critical", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(2, 1))

	require.NoError(t, g.WriteAggregate(context.Background(), "s1", "patient1", points))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteAggregate_EmptyWindow(t *testing.T) {
	g, mock := setupGateway(t)

	require.NoError(t, g.WriteAggregate(context.Background(), "s1", "patient1", nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEndSession_WithMeasurements(t *testing.T) {
	g, mock := setupGateway(t)

	appointmentID := "appt1"
	s := &session.Session{
		ID:            "s1",
		PatientID:     "patient1",
		DoctorID:      "doctor1",
		AppointmentID: &appointmentID,
		Status:        session.StatusActive,
		StartedAt:     time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}

	statsRows := sqlmock.NewRows([]string{"metric", "avg", "min", "max", "count", "non_normal"}).
		AddRow("heart_rate", 75.5, 60.0, 110.0, 12, 2).
		AddRow("spo2", 96.8, 94.0, 99.0, 12, 1)

	mock.ExpectQuery(`SELECT metric, AVG`).WithArgs("s1").WillReturnRows(statsRows)

	mock.ExpectExec(`UPDATE monitoring_sessions`).
		WithArgs(sqlmock.AnyArg(), 75.5, 60.0, 110.0, 96.8, 94.0, 99.0, true, "s1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	// Существующий результат осмотра: блок вливается в заметки
	mock.ExpectQuery(`SELECT id, notes FROM examination_results`).
		WithArgs("appt1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "notes"}).AddRow("HP001", "Patient stable."))

	mock.ExpectExec(`UPDATE examination_results`).
		WithArgs(sqlmock.AnyArg(), 75.5, 96.8, sqlmock.AnyArg(), "HP001").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, g.EndSession(context.Background(), s))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEndSession_CreatesResult(t *testing.T) {
	g, mock := setupGateway(t)

	appointmentID := "appt2"
	s := &session.Session{
		ID:            "s2",
		PatientID:     "patient1",
		AppointmentID: &appointmentID,
		Status:        session.StatusActive,
		StartedAt:     time.Now(),
	}

	mock.ExpectQuery(`SELECT metric, AVG`).WithArgs("s2").
		WillReturnRows(sqlmock.NewRows([]string{"metric", "avg", "min", "max", "count", "non_normal"}).
			AddRow("heart_rate", 72.0, 65.0, 80.0, 4, 0).
			AddRow("spo2", 97.0, 96.0, 98.0, 4, 0))

	mock.ExpectExec(`UPDATE monitoring_sessions`).
		WithArgs(sqlmock.AnyArg(), 72.0, 65.0, 80.0, 97.0, 96.0, 98.0, false, "s2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery(`SELECT id, notes FROM examination_results`).
		WithArgs("appt2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "notes"}))

	mock.ExpectQuery(`SELECT COUNT`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	mock.ExpectExec(`INSERT INTO examination_results`).
		WithArgs(sqlmock.AnyArg(), "appt2", sqlmock.AnyArg(), 72.0, 97.0, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, g.EndSession(context.Background(), s))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Сессия без единого измерения: итоги NULL, has_anomaly=false, без привязки
// к приему результат осмотра не трогается
func TestEndSession_NoMeasurementsNoAppointment(t *testing.T) {
	g, mock := setupGateway(t)

	s := &session.Session{
		ID:        "s3",
		PatientID: "patient1",
		Status:    session.StatusActive,
		StartedAt: time.Now(),
	}

	mock.ExpectQuery(`SELECT metric, AVG`).WithArgs("s3").
		WillReturnRows(sqlmock.NewRows([]string{"metric", "avg", "min", "max", "count", "non_normal"}))

	mock.ExpectExec(`UPDATE monitoring_sessions`).
		WithArgs(sqlmock.AnyArg(), nil, nil, nil, nil, nil, nil, false, "s3").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, g.EndSession(context.Background(), s))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerateResultID_Exhausted(t *testing.T) {
	g, mock := setupGateway(t)

	// Все 10 попыток коллизят
	for i := 0; i < 10; i++ {
		mock.ExpectQuery(`SELECT COUNT`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	}

	_, err := g.generateResultID(context.Background())
	assert.ErrorIs(t, err, ErrIDExhausted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertVitalsBlock(t *testing.T) {
	block := "=== Vital Signs Monitoring ===\nnew content\n=============================="

	t.Run("append to existing notes", func(t *testing.T) {
		got := upsertVitalsBlock("Patient stable.", block)
		assert.Equal(t, "Patient stable.\n\n"+block, got)
	})

	t.Run("empty notes", func(t *testing.T) {
		assert.Equal(t, block, upsertVitalsBlock("", block))
	})

	t.Run("replace existing block", func(t *testing.T) {
		old := "Intro.\n\n=== Vital Signs Monitoring ===\nold content\n==============================\n\nOutro."
		got := upsertVitalsBlock(old, block)
		assert.Equal(t, "Intro.\n\n"+block+"\n\nOutro.", got)
		assert.NotContains(t, got, "old content")
	})
}

func TestFormatVitalsBlock_NoData(t *testing.T) {
	block := formatVitalsBlock(time.Now(), time.Now(), &session.Summary{})
	assert.Contains(t, block, "- / - / -")
	assert.Contains(t, block, "Anomaly detected: No")
}
