package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/PopUp2025-maker/server-signaling/relay"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

// RoomService is the read side of the relay used by the API
type RoomService interface {
	ListRooms() []relay.RoomInfo
	GetRoom(id relay.RoomID) (relay.RoomInfo, error)
}

// Transport is the websocket endpoint and its connection count
type Transport interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
	Count() int
}

// PingResponse is the body of GET /ping
type PingResponse struct {
	Status           string  `json:"status"`
	Message          string  `json:"message"`
	Timestamp        string  `json:"timestamp"`
	Uptime           float64 `json:"uptime"`
	ConnectedClients int     `json:"connectedClients"`
}

// RoomsResponse is the body of GET /api/rooms
type RoomsResponse struct {
	Count int              `json:"count"`
	Rooms []relay.RoomInfo `json:"rooms"`
}

const (
	rootText    = "Relay server up"
	pingMessage = "Relay server running"
)

// Server represents the HTTP surface of the relay
type Server struct {
	rooms     RoomService
	transport Transport
	router    *mux.Router
	handler   http.Handler
	registry  *prometheus.Registry
	started   time.Time
	now       func() time.Time
}

// NewServer creates a new API server. Gauges for open rooms and connected
// clients are registered with registry, which is also what /metrics serves.
func NewServer(rooms RoomService, transport Transport, registry *prometheus.Registry) *Server {
	s := &Server{
		rooms:     rooms,
		transport: transport,
		router:    mux.NewRouter(),
		registry:  registry,
		started:   time.Now(),
		now:       time.Now,
	}

	registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "relay_rooms_open",
			Help: "Rooms that currently have a host.",
		}, func() float64 { return float64(len(s.rooms.ListRooms())) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "relay_connections",
			Help: "Open websocket connections.",
		}, func() float64 { return float64(s.transport.Count()) }),
	)

	s.setupRoutes()
	s.handler = cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"*"},
	}).Handler(s.router)
	return s
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/", s.handleRoot).Methods("GET")
	s.router.HandleFunc("/ping", s.handlePing).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/rooms", s.handleListRooms).Methods("GET")
	api.HandleFunc("/rooms/{id}", s.handleGetRoom).Methods("GET")

	s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods("GET")

	// WebSocket
	s.router.HandleFunc("/ws", s.transport.ServeWS)
}

// Handle mounts an extra handler, such as the MCP endpoint, on the router
func (s *Server) Handle(path string, handler http.Handler) {
	s.router.Handle(path, handler)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn().Err(err).Msg("failed to write response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(rootText))
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	respondJSON(w, http.StatusOK, PingResponse{
		Status:           "ok",
		Message:          pingMessage,
		Timestamp:        now.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Uptime:           now.Sub(s.started).Seconds(),
		ConnectedClients: s.transport.Count(),
	})
}

// Room Handlers

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms := s.rooms.ListRooms()
	respondJSON(w, http.StatusOK, RoomsResponse{
		Count: len(rooms),
		Rooms: rooms,
	})
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	roomID := relay.RoomID(vars["id"])

	room, err := s.rooms.GetRoom(roomID)
	if err != nil {
		if errors.Is(err, relay.ErrRoomNotFound) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, room)
}
