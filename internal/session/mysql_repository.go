package session

import (
	"context"
	"database/sql"
	"fmt"
)

// MySQLRepository реализует Repository поверх схемы МИС (Infrastructure Layer)
type MySQLRepository struct {
	db *sql.DB
}

// NewMySQLRepository создает новый экземпляр MySQLRepository
func NewMySQLRepository(db *sql.DB) *MySQLRepository {
	return &MySQLRepository{db: db}
}

func (r *MySQLRepository) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	query := `
		SELECT id, patient_id, doctor_id, appointment_id, status, started_at, ended_at
		FROM monitoring_sessions
		WHERE id = ?
	`

	var (
		s             Session
		appointmentID sql.NullString
		endedAt       sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&s.ID,
		&s.PatientID,
		&s.DoctorID,
		&appointmentID,
		&s.Status,
		&s.StartedAt,
		&endedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}

	if appointmentID.Valid {
		s.AppointmentID = &appointmentID.String
	}
	if endedAt.Valid {
		s.EndedAt = &endedAt.Time
	}

	return &s, nil
}
