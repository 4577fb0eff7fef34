package device

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/medilink/vitals-relay/internal/vitals"
)

// ErrConnectTimeout открытие порта не подтвердилось за отведенное время
var ErrConnectTimeout = errors.New("serial connect timeout")

// Listener получает события устройства. Реализуется координатором relay.
type Listener interface {
	DeviceConnected(port string)
	DeviceDisconnected(reason string)
	SensorReady()
	SensorError(msg string)
	SensorReading(r vitals.Reading)
}

// Link владеет соединением с пульсоксиметром и читает line-delimited JSON поток
type Link struct {
	baud           int
	connectTimeout time.Duration
	listener       Listener

	mu   sync.Mutex
	port serial.Port
	path string
	open bool
}

// NewLink создает новый Link. Соединение открывается отдельно через Open/OpenFirst.
func NewLink(baud int, connectTimeout time.Duration, listener Listener) *Link {
	return &Link{
		baud:           baud,
		connectTimeout: connectTimeout,
		listener:       listener,
	}
}

type openResult struct {
	port serial.Port
	err  error
}

// Open открывает порт на фиксированном baud rate. Возвращает ошибку, если
// открытие не подтвердилось за connectTimeout или сам вызов завершился ошибкой.
func (l *Link) Open(path string) error {
	resultChan := make(chan openResult, 1)
	go func() {
		port, err := serial.Open(path, &serial.Mode{BaudRate: l.baud})
		resultChan <- openResult{port: port, err: err}
	}()

	select {
	case res := <-resultChan:
		if res.err != nil {
			return fmt.Errorf("failed to open %s: %w", path, res.err)
		}
		l.mu.Lock()
		l.port = res.port
		l.path = path
		l.open = true
		l.mu.Unlock()

		log.Printf("[SERIAL] Connected to %s at %d baud", path, l.baud)
		l.listener.DeviceConnected(path)

		go l.readLoop(res.port)
		return nil

	case <-time.After(l.connectTimeout):
		// Порт мог открыться позже таймаута — закрываем его в фоне
		go func() {
			if res := <-resultChan; res.port != nil {
				res.port.Close()
			}
		}()
		return fmt.Errorf("failed to open %s: %w", path, ErrConnectTimeout)
	}
}

// OpenFirst пробует список кандидатов один раз и останавливается на первом
// успехе. При полном провале процесс продолжает работать без устройства.
func (l *Link) OpenFirst(paths []string) error {
	for _, path := range paths {
		if err := l.Open(path); err != nil {
			log.Printf("[SERIAL] %v", err)
			continue
		}
		return nil
	}
	return fmt.Errorf("no serial device found on %v", paths)
}

// readLoop читает строки из порта до ошибки или закрытия
func (l *Link) readLoop(port serial.Port) {
	scanner := bufio.NewScanner(port)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		event, err := ParseLine(line, time.Now())
		if err != nil {
			// Битые строки теряются молча: ни retry, ни backpressure
			log.Printf("[SERIAL] Dropped malformed line: %v", err)
			continue
		}

		switch event.Kind {
		case EventReady:
			l.listener.SensorReady()
		case EventError:
			log.Printf("[SERIAL] Device error: %s", event.ErrMsg)
			l.listener.SensorError(event.ErrMsg)
		case EventReading:
			l.listener.SensorReading(event.Reading)
		}
	}

	reason := "disconnected"
	if err := scanner.Err(); err != nil {
		reason = "error"
		log.Printf("[SERIAL] Read error: %v", err)
	}
	l.markDown(reason)
}

// markDown помечает линк как упавший и оповещает клиентов. Повторный вызов no-op.
func (l *Link) markDown(reason string) {
	l.mu.Lock()
	if !l.open {
		l.mu.Unlock()
		return
	}
	l.open = false
	l.path = ""
	port := l.port
	l.port = nil
	l.mu.Unlock()

	if port != nil {
		port.Close()
	}
	log.Printf("[SERIAL] Link down: %s", reason)
	l.listener.DeviceDisconnected(reason)
}

// Status возвращает текущее состояние линка
func (l *Link) Status() (connected bool, path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open, l.path
}

// IsOpen проверяет, открыт ли порт
func (l *Link) IsOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open && l.port != nil
}

// Close закрывает порт, если он открыт
func (l *Link) Close() error {
	l.mu.Lock()
	port := l.port
	l.port = nil
	l.open = false
	l.path = ""
	l.mu.Unlock()

	if port == nil {
		return nil
	}
	return port.Close()
}
