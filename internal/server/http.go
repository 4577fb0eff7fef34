package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/medilink/vitals-relay/internal/hub"
	"github.com/medilink/vitals-relay/internal/relay"
)

// Server HTTP поверхность relay (Presentation Layer)
type Server struct {
	service *relay.Service
	hub     *hub.Hub
}

// NewServer создает новый HTTP обработчик
func NewServer(service *relay.Service, wsHub *hub.Hub) *Server {
	return &Server{service: service, hub: wsHub}
}

// Router собирает маршруты relay
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", s.handleHealth).Methods("GET")
	router.HandleFunc("/arduino/status", s.handleArduinoStatus).Methods("GET")
	router.HandleFunc("/ws", s.hub.HandleWebSocket)

	return router
}

// handleHealth возвращает снапшот состояния relay
// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.service.Health())
}

// handleArduinoStatus возвращает состояние соединения с устройством
// GET /arduino/status
func (s *Server) handleArduinoStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.service.DeviceStatus())
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[ERROR] Failed to encode response: %v", err)
	}
}
