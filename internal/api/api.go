package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/trv-controller/db"
	"github.com/thatsimonsguy/trv-controller/internal/config"
	"github.com/thatsimonsguy/trv-controller/internal/controllers/roomcontroller"
	"github.com/thatsimonsguy/trv-controller/internal/model"
	"github.com/thatsimonsguy/trv-controller/internal/sensors"
)

type Server struct {
	db       *sql.DB
	sensors  *sensors.Service
	registry *roomcontroller.Registry
	rooms    map[string]config.RoomConfig
}

type RoomResponse struct {
	ID            string             `json:"id"`
	Label         string             `json:"label"`
	Mode          string             `json:"mode"`
	TargetTemp    float64            `json:"target_temp"`
	CurrentTemp   *float64           `json:"current_temp,omitempty"`
	Action        string             `json:"action"`
	WindowOpen    bool               `json:"window_open"`
	ValvePosition int                `json:"valve_position"`
	Diagnostics   *model.Diagnostics `json:"diagnostics,omitempty"`
}

type RoomModeRequest struct {
	Mode string `json:"mode"`
}

type RoomTargetRequest struct {
	Target float64 `json:"target"`
}

type RoomTargetResponse struct {
	Target float64 `json:"target"`
}

type ReadingRequest struct {
	SensorID string  `json:"sensor_id"`
	Value    float64 `json:"value"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewServer(database *sql.DB, sensorService *sensors.Service, registry *roomcontroller.Registry, cfg *config.Config) *Server {
	rooms := make(map[string]config.RoomConfig, len(cfg.Rooms))
	for _, r := range cfg.Rooms {
		rooms[r.ID] = r
	}
	return &Server{
		db:       database,
		sensors:  sensorService,
		registry: registry,
		rooms:    rooms,
	}
}

// Handler builds the full route table wrapped in CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/rooms", s.handleRooms)
	mux.HandleFunc("/api/rooms/", s.handleRoomOperations)
	mux.HandleFunc("/api/readings", s.handleReadings)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		mux.ServeHTTP(w, r)
	})
}

func (s *Server) Start(addr string) error {
	log.Info().Str("address", addr).Msg("Starting REST API server")
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet && r.URL.Path == "/api/rooms" {
		s.getRooms(w, r)
	} else {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) handleRoomOperations(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/rooms/")
	parts := strings.Split(path, "/")

	if len(parts) < 1 || parts[0] == "" {
		s.writeError(w, http.StatusNotFound, "Room ID required")
		return
	}

	roomID := parts[0]

	if len(parts) == 1 {
		if r.Method == http.MethodGet {
			s.getRoom(w, r, roomID)
		} else {
			s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	if len(parts) == 2 {
		operation := parts[1]
		switch {
		case operation == "stream" && r.Method == http.MethodGet:
			s.streamRoom(w, r, roomID)
		case operation == "mode" && r.Method == http.MethodPut:
			s.setRoomMode(w, r, roomID)
		case operation == "target" && r.Method == http.MethodPut:
			s.setRoomTarget(w, r, roomID)
		default:
			s.writeError(w, http.StatusNotFound, "Unknown operation")
		}
		return
	}

	s.writeError(w, http.StatusNotFound, "Invalid path")
}

func (s *Server) handleReadings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.postReading(w, r)
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, s.sensors.All())
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) getRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := db.GetAllRooms(s.db)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get rooms")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response := make([]RoomResponse, 0, len(rooms))
	for _, room := range rooms {
		response = append(response, s.roomResponse(room, false))
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) getRoom(w http.ResponseWriter, r *http.Request, roomID string) {
	room, err := db.GetRoomByID(s.db, roomID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || strings.Contains(err.Error(), "no rows in result set") {
			s.writeError(w, http.StatusNotFound, "Room not found")
		} else {
			log.Error().Err(err).Str("room_id", roomID).Msg("Failed to get room")
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	s.writeJSON(w, http.StatusOK, s.roomResponse(*room, true))
}

// roomResponse merges the persisted settings with the latest controller
// snapshot. Values are rounded here; everything upstream runs at full
// precision.
func (s *Server) roomResponse(room model.Room, withDiagnostics bool) RoomResponse {
	resp := RoomResponse{
		ID:         room.ID,
		Label:      room.Label,
		Mode:       string(room.Mode),
		TargetTemp: room.TargetTemp,
		Action:     string(model.ActionIdle),
	}

	if temp, ok := s.sensors.Get(room.SensorID); ok {
		rounded := round1(temp)
		resp.CurrentTemp = &rounded
	}

	if status, ok := s.registry.Get(room.ID); ok {
		resp.Action = string(status.Action)
		resp.WindowOpen = status.WindowOpen
		resp.ValvePosition = status.ValvePosition
		if withDiagnostics {
			d := roundDiagnostics(status.Diagnostics)
			resp.Diagnostics = &d
		}
	}
	return resp
}

func (s *Server) setRoomMode(w http.ResponseWriter, r *http.Request, roomID string) {
	var req RoomModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	mode := model.Mode(req.Mode)
	if !model.ValidMode(mode) {
		s.writeError(w, http.StatusBadRequest, "Invalid mode. Valid modes: off, boost, auto")
		return
	}

	if err := db.UpdateRoomMode(s.db, roomID, mode); err != nil {
		if strings.Contains(err.Error(), "no such room") {
			s.writeError(w, http.StatusNotFound, "Room not found")
		} else {
			log.Error().Err(err).Str("room_id", roomID).Str("mode", req.Mode).Msg("Failed to update room mode")
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	log.Info().Str("room_id", roomID).Str("mode", req.Mode).Msg("Room mode updated via API")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) setRoomTarget(w http.ResponseWriter, r *http.Request, roomID string) {
	var req RoomTargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if math.IsNaN(req.Target) || math.IsInf(req.Target, 0) {
		s.writeError(w, http.StatusBadRequest, "Target must be a finite number")
		return
	}

	roomCfg, ok := s.rooms[roomID]
	if !ok {
		s.writeError(w, http.StatusNotFound, "Room not found")
		return
	}

	// Out-of-range requests are clamped to the room's bounds rather than
	// rejected; the applied value goes back in the response.
	applied := req.Target
	if roomCfg.Model.MaxTemp > roomCfg.Model.MinTemp {
		applied = math.Min(math.Max(applied, roomCfg.Model.MinTemp), roomCfg.Model.MaxTemp)
	}

	if err := db.UpdateRoomTarget(s.db, roomID, applied); err != nil {
		log.Error().Err(err).Str("room_id", roomID).Float64("target", applied).Msg("Failed to update room target")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().Str("room_id", roomID).Float64("target", applied).Msg("Room target updated via API")
	s.writeJSON(w, http.StatusOK, RoomTargetResponse{Target: applied})
}

func (s *Server) postReading(w http.ResponseWriter, r *http.Request) {
	var req ReadingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if req.SensorID == "" {
		s.writeError(w, http.StatusBadRequest, "sensor_id is required")
		return
	}
	if math.IsNaN(req.Value) || math.IsInf(req.Value, 0) {
		s.writeError(w, http.StatusBadRequest, "value must be a finite number")
		return
	}

	if !s.sensors.Set(req.SensorID, req.Value, time.Now()) {
		s.writeError(w, http.StatusUnprocessableEntity, "Reading rejected as anomalous")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

func roundDiagnostics(d model.Diagnostics) model.Diagnostics {
	d.Kc = round3(d.Kc)
	d.Ki = round6(d.Ki)
	d.Error = round3(d.Error)
	d.NormError = round3(d.NormError)
	d.UPi = round3(d.UPi)
	d.UI = round3(d.UI)
	d.UFF = round3(d.UFF)
	d.UTotal = round3(d.UTotal)
	if d.FilteredFlow != nil {
		v := round1(*d.FilteredFlow)
		d.FilteredFlow = &v
	}
	if d.FilteredOutdoor != nil {
		v := round1(*d.FilteredOutdoor)
		d.FilteredOutdoor = &v
	}
	return d
}

func round1(x float64) float64 { return math.Round(x*10) / 10 }
func round3(x float64) float64 { return math.Round(x*1000) / 1000 }
func round6(x float64) float64 { return math.Round(x*1e6) / 1e6 }
