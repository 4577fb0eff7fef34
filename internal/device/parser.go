package device

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/medilink/vitals-relay/internal/vitals"
)

// EventKind тип события, полученного из строки устройства
type EventKind int

const (
	// EventNoise строка без heart_rate/spo2 и без статуса — игнорируется
	EventNoise EventKind = iota
	// EventReady сообщение {"status":"ready"} от сенсора
	EventReady
	// EventError сообщение {"error":...} от устройства
	EventError
	// EventReading валидное измерение heart_rate + spo2
	EventReading
)

// Event одно разобранное событие протокола устройства
type Event struct {
	Kind    EventKind
	ErrMsg  string
	Reading vitals.Reading
}

// ParseLine разбирает одну строку протокола. Невалидный JSON возвращает ошибку,
// строки без распознанной формы — EventNoise.
func ParseLine(line []byte, now time.Time) (Event, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(line, &raw); err != nil {
		return Event{}, fmt.Errorf("malformed device line: %w", err)
	}

	if status, ok := raw["status"].(string); ok && status == "ready" {
		return Event{Kind: EventReady}, nil
	}

	if errValue, ok := raw["error"]; ok && errValue != nil {
		return Event{Kind: EventError, ErrMsg: fmt.Sprint(errValue)}, nil
	}

	heartRate, hrOK := coerceFloat(raw["heart_rate"])
	spo2, spOK := coerceFloat(raw["spo2"])
	if !hrOK || !spOK {
		// Шум, не ошибка: устройство шлет и служебные строки
		return Event{Kind: EventNoise}, nil
	}

	return Event{
		Kind:    EventReading,
		Reading: vitals.NewReading(heartRate, spo2, now),
	}, nil
}

// coerceFloat приводит JSON значение к float64 (число или числовая строка)
func coerceFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
