package relay

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/medilink/vitals-relay/internal/batch"
	"github.com/medilink/vitals-relay/internal/device"
	"github.com/medilink/vitals-relay/internal/hub"
	"github.com/medilink/vitals-relay/internal/session"
	"github.com/medilink/vitals-relay/internal/vitals"
)

// ErrUnknownSession сессия не зарегистрирована в каталоге
var ErrUnknownSession = errors.New("unknown session")

// Broadcaster рассылает сообщения живым клиентам. Реализуется hub.Hub.
type Broadcaster interface {
	Register(c *hub.Client)
	BroadcastToSession(sessionID string, v interface{})
	BroadcastToAll(v interface{})
	Count() int
}

// SummaryStore пишет итоги завершенной сессии. Реализуется store.Gateway.
type SummaryStore interface {
	EndSession(ctx context.Context, s *session.Session) error
}

// Service координатор relay: владеет каталогом сессий, реестром клиентов и
// буферами агрегации, и маршрутизирует события устройства. Все мутируемое
// состояние принадлежит ему и защищено локами владеющих структур — вместо
// модульных глобалов.
type Service struct {
	directory   *session.Directory
	broadcaster Broadcaster
	aggregator  *batch.Aggregator
	store       SummaryStore

	link *device.Link // nil, пока устройство не подключалось
}

// NewService создает координатор
func NewService(directory *session.Directory, broadcaster Broadcaster, aggregator *batch.Aggregator, store SummaryStore) *Service {
	return &Service{
		directory:   directory,
		broadcaster: broadcaster,
		aggregator:  aggregator,
		store:       store,
	}
}

// SetLink привязывает serial-линк для health-репортов
func (s *Service) SetLink(link *device.Link) {
	s.link = link
}

// ===== hub.SessionController =====

// Connect авторизует клиента в сессии и регистрирует его сокет
func (s *Service) Connect(ctx context.Context, client *hub.Client, userID string, role session.Role, sessionID string) error {
	if !role.Valid() {
		return fmt.Errorf("invalid role: %s", role)
	}

	sess, err := s.directory.ValidateAndRegister(ctx, sessionID, userID, role)
	if err != nil {
		log.Printf("[RELAY] Rejected connect user=%s role=%s session=%s: %v", userID, role, sessionID, err)
		return err
	}

	client.SetIdentity(userID, role, sess.ID)
	s.broadcaster.Register(client)

	client.Send(hub.ConnectedMessage{
		Type:      hub.TypeConnected,
		SessionID: sess.ID,
		Message:   "Connected to monitoring session",
	})
	return nil
}

// EndSession завершает сессию: сбрасывает остаток буфера, пишет итоги,
// убирает сессию из каталога и оповещает ее клиентов
func (s *Service) EndSession(ctx context.Context, sessionID string) error {
	sess, ok := s.directory.Get(sessionID)
	if !ok {
		return ErrUnknownSession
	}

	s.aggregator.FlushSession(ctx, sessionID)

	if err := s.store.EndSession(ctx, sess); err != nil {
		// Сбой персистентности не виден клиентам: лог и продолжаем
		log.Printf("[RELAY] Failed to persist summary for session %s: %v", sessionID, err)
	}

	s.aggregator.Drop(sessionID)
	s.directory.Remove(ctx, sessionID)

	s.broadcaster.BroadcastToSession(sessionID, hub.SessionEndedMessage{
		Type:    hub.TypeSessionEnded,
		Message: "Monitoring session has ended",
	})

	log.Printf("[RELAY] Session ended: %s", sessionID)
	return nil
}

// ===== device.Listener =====

func (s *Service) DeviceConnected(port string) {
	s.broadcaster.BroadcastToAll(hub.ArduinoStatusMessage{
		Type:   hub.TypeArduinoStatus,
		Status: "connected",
		Port:   port,
	})
}

func (s *Service) DeviceDisconnected(reason string) {
	s.broadcaster.BroadcastToAll(hub.ArduinoStatusMessage{
		Type:    hub.TypeArduinoStatus,
		Status:  reason,
		Message: "Device link lost",
	})
}

func (s *Service) SensorReady() {
	s.broadcaster.BroadcastToAll(hub.ArduinoStatusMessage{
		Type:   hub.TypeArduinoStatus,
		Status: "ready",
	})
}

func (s *Service) SensorError(msg string) {
	s.broadcaster.BroadcastToAll(hub.ArduinoErrorMessage{
		Type:  hub.TypeArduinoError,
		Error: msg,
	})
}

// SensorReading раздает измерение КАЖДОЙ активной сессии: у relay нет
// привязки устройство→сессия, одно физическое устройство питает все
// логические сессии. Известное упрощение, менять только продуктовым решением.
func (s *Service) SensorReading(r vitals.Reading) {
	ctx := context.Background()

	for _, sess := range s.directory.Active() {
		s.broadcaster.BroadcastToSession(sess.ID, hub.VitalsMessage{
			Type:      hub.TypeVitals,
			SessionID: sess.ID,
			Data:      r,
		})
		s.aggregator.Add(ctx, sess.ID, sess.PatientID, r)
	}
}

// ===== Health =====

// Health снапшот состояния relay для GET /health
type Health struct {
	Status           string `json:"status"`
	ActiveSessions   int    `json:"activeSessions"`
	ConnectedClients int    `json:"connectedClients"`
	SerialPortOpen   bool   `json:"serialPortOpen"`
	ArduinoConnected bool   `json:"arduinoConnected"`
	ArduinoPort      string `json:"arduinoPort"`
}

// DeviceStatus снапшот состояния устройства для GET /arduino/status
type DeviceStatus struct {
	Connected bool   `json:"connected"`
	Port      string `json:"port"`
	IsOpen    bool   `json:"isOpen"`
}

func (s *Service) Health() Health {
	h := Health{
		Status:           "ok",
		ActiveSessions:   s.directory.Count(),
		ConnectedClients: s.broadcaster.Count(),
	}
	if s.link != nil {
		connected, port := s.link.Status()
		h.ArduinoConnected = connected
		h.ArduinoPort = port
		h.SerialPortOpen = s.link.IsOpen()
	}
	return h
}

func (s *Service) DeviceStatus() DeviceStatus {
	var ds DeviceStatus
	if s.link != nil {
		ds.Connected, ds.Port = s.link.Status()
		ds.IsOpen = s.link.IsOpen()
	}
	return ds
}

// Shutdown последовательно завершает все активные сессии (SIGTERM drain)
func (s *Service) Shutdown(ctx context.Context) {
	for _, sess := range s.directory.Active() {
		if err := s.EndSession(ctx, sess.ID); err != nil {
			log.Printf("[RELAY] Failed to end session %s on shutdown: %v", sess.ID, err)
		}
	}
}
