package vitals

import "time"

// Status классификация значения метрики по порогам
type Status string

const (
	StatusNormal   Status = "normal"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// Metric тип измеряемой метрики
type Metric string

const (
	MetricHeartRate Metric = "heart_rate"
	MetricSpO2      Metric = "spo2"
)

// Unit возвращает единицу измерения метрики
func (m Metric) Unit() string {
	if m == MetricHeartRate {
		return "bpm"
	}
	return "%"
}

// Reading одно измерение пульсоксиметра
type Reading struct {
	HeartRate  float64   `json:"heart_rate"`
	SpO2       float64   `json:"spo2"`
	Timestamp  time.Time `json:"timestamp"`
	HRStatus   Status    `json:"hr_status"`
	SpO2Status Status    `json:"spo2_status"`
}

// NewReading создает Reading с вычисленными статусами
func NewReading(heartRate, spo2 float64, ts time.Time) Reading {
	return Reading{
		HeartRate:  heartRate,
		SpO2:       spo2,
		Timestamp:  ts,
		HRStatus:   ClassifyHeartRate(heartRate),
		SpO2Status: ClassifySpO2(spo2),
	}
}

// ClassifyHeartRate классифицирует ЧСС: <50 или >120 critical,
// <60 или >100 warning, иначе normal
func ClassifyHeartRate(v float64) Status {
	switch {
	case v < 50 || v > 120:
		return StatusCritical
	case v < 60 || v > 100:
		return StatusWarning
	default:
		return StatusNormal
	}
}

// ClassifySpO2 классифицирует сатурацию: <90 critical, <95 warning, иначе normal
func ClassifySpO2(v float64) Status {
	switch {
	case v < 90:
		return StatusCritical
	case v < 95:
		return StatusWarning
	default:
		return StatusNormal
	}
}

// Classify классифицирует значение для указанной метрики
func Classify(m Metric, v float64) Status {
	if m == MetricHeartRate {
		return ClassifyHeartRate(v)
	}
	return ClassifySpO2(v)
}
