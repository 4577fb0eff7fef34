package hub

import "github.com/medilink/vitals-relay/internal/vitals"

// Типы сообщений протокола client ⇄ relay (JSON text frames)
const (
	// client → server
	TypeConnect    = "connect"
	TypeDisconnect = "disconnect"
	TypeEndSession = "end_session"

	// server → client
	TypeConnected     = "connected"
	TypeError         = "error"
	TypeArduinoStatus = "arduino_status"
	TypeArduinoError  = "arduino_error"
	TypeVitals        = "vitals"
	TypeSessionEnded  = "session_ended"
)

// ClientMessage входящее сообщение от клиента
type ClientMessage struct {
	Type string      `json:"type"`
	Data ConnectData `json:"data"`
}

// ConnectData полезная нагрузка сообщения connect
type ConnectData struct {
	UserID    string `json:"userId"`
	Role      string `json:"role"`
	SessionID string `json:"sessionId"`
}

// ConnectedMessage подтверждение успешного подключения к сессии
type ConnectedMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

// ErrorMessage ошибка, адресованная конкретному клиенту
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ArduinoStatusMessage статус соединения с устройством
type ArduinoStatusMessage struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Port    string `json:"port,omitempty"`
	Message string `json:"message,omitempty"`
}

// ArduinoErrorMessage ошибка, пришедшая от самого устройства
type ArduinoErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// VitalsMessage одно измерение для подписчиков сессии
type VitalsMessage struct {
	Type      string         `json:"type"`
	SessionID string         `json:"sessionId"`
	Data      vitals.Reading `json:"data"`
}

// SessionEndedMessage оповещение о завершении сессии
type SessionEndedMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
