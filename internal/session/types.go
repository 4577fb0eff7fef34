package session

import "time"

// Status статус мониторинговой сессии
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Role роль подключающегося клиента
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
)

// Valid проверяет, что роль одна из поддерживаемых
func (r Role) Valid() bool {
	return r == RolePatient || r == RoleDoctor
}

// Session мониторинговая сессия: один пациент, один врач, жизненный цикл
// active → completed в персистентном хранилище
type Session struct {
	ID            string     `json:"id"`
	PatientID     string     `json:"patient_id"`
	DoctorID      string     `json:"doctor_id"`
	AppointmentID *string    `json:"appointment_id,omitempty"`
	Status        Status     `json:"status"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
}

// Summary итоговые агрегаты сессии. Поля nil, когда измерений не было.
type Summary struct {
	AvgHeartRate *float64 `json:"avg_heart_rate"`
	MinHeartRate *float64 `json:"min_heart_rate"`
	MaxHeartRate *float64 `json:"max_heart_rate"`
	AvgSpO2      *float64 `json:"avg_spo2"`
	MinSpO2      *float64 `json:"min_spo2"`
	MaxSpO2      *float64 `json:"max_spo2"`
	HasAnomaly   bool     `json:"has_anomaly"`
}
