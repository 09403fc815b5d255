package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/trv-controller/db"
	"github.com/thatsimonsguy/trv-controller/internal/config"
	"github.com/thatsimonsguy/trv-controller/internal/controllers/roomcontroller"
	"github.com/thatsimonsguy/trv-controller/internal/model"
	"github.com/thatsimonsguy/trv-controller/internal/sensors"
)

func testRoomConfig(id string) config.RoomConfig {
	return config.RoomConfig{
		ID:            id,
		Label:         id,
		SensorID:      "sensor." + id,
		DefaultTarget: 21.0,
		ActuatorType:  "log",
		Model: model.ProcessModel{
			ProcessGain:  4.0,
			DeadTime:     900,
			TimeConstant: 5400,
			Lambda:       5400,
			MinTemp:      5,
			MaxTemp:      30,
		},
	}
}

func setupTestServer(t *testing.T) (*Server, *sql.DB, *sensors.Service, *roomcontroller.Registry) {
	database, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	cfg := &config.Config{
		Rooms: []config.RoomConfig{testRoomConfig("living_room"), testRoomConfig("bedroom")},
	}

	rooms := make([]model.Room, 0, len(cfg.Rooms))
	for _, r := range cfg.Rooms {
		rooms = append(rooms, r.Room())
	}
	require.NoError(t, db.SeedRooms(database, rooms))

	sensorService := sensors.NewService(15*time.Minute, 0)
	registry := roomcontroller.NewRegistry()

	return NewServer(database, sensorService, registry, cfg), database, sensorService, registry
}

func TestGetRooms(t *testing.T) {
	server, _, sensorService, _ := setupTestServer(t)

	sensorService.Set("sensor.living_room", 20.46, time.Now())

	req := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var rooms []RoomResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&rooms))
	require.Len(t, rooms, 2)

	byID := map[string]RoomResponse{}
	for _, r := range rooms {
		byID[r.ID] = r
	}
	require.NotNil(t, byID["living_room"].CurrentTemp)
	assert.Equal(t, 20.5, *byID["living_room"].CurrentTemp)
	assert.Nil(t, byID["bedroom"].CurrentTemp)
	assert.Equal(t, "auto", byID["bedroom"].Mode)
}

func TestGetRoomIncludesControllerSnapshot(t *testing.T) {
	server, _, _, registry := setupTestServer(t)

	registry.Publish(roomcontroller.Status{
		RoomID:        "living_room",
		Action:        model.ActionHeating,
		ValvePosition: 164,
		Diagnostics:   model.Diagnostics{UPi: 0.6428571428571428, DesiredValvePosition: 164},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/rooms/living_room", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var room RoomResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&room))
	assert.Equal(t, "heating", room.Action)
	assert.Equal(t, 164, room.ValvePosition)
	require.NotNil(t, room.Diagnostics)
	assert.Equal(t, 0.643, room.Diagnostics.UPi)
}

func TestGetUnknownRoomReturns404(t *testing.T) {
	server, _, _, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/rooms/attic", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSetRoomMode(t *testing.T) {
	server, database, _, _ := setupTestServer(t)

	body := bytes.NewBufferString(`{"mode":"boost"}`)
	req := httptest.NewRequest(http.MethodPut, "/api/rooms/living_room/mode", body)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	room, err := db.GetRoomByID(database, "living_room")
	require.NoError(t, err)
	assert.Equal(t, model.ModeBoost, room.Mode)
}

func TestSetRoomModeRejectsUnknownMode(t *testing.T) {
	server, _, _, _ := setupTestServer(t)

	body := bytes.NewBufferString(`{"mode":"defrost"}`)
	req := httptest.NewRequest(http.MethodPut, "/api/rooms/living_room/mode", body)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetRoomTargetClampsToBounds(t *testing.T) {
	server, database, _, _ := setupTestServer(t)

	body := bytes.NewBufferString(`{"target":45.0}`)
	req := httptest.NewRequest(http.MethodPut, "/api/rooms/living_room/target", body)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp RoomTargetResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 30.0, resp.Target)

	room, err := db.GetRoomByID(database, "living_room")
	require.NoError(t, err)
	assert.Equal(t, 30.0, room.TargetTemp)
}

func TestPostReadingFeedsSensorCache(t *testing.T) {
	server, _, sensorService, _ := setupTestServer(t)

	body := bytes.NewBufferString(`{"sensor_id":"sensor.bedroom","value":19.2}`)
	req := httptest.NewRequest(http.MethodPost, "/api/readings", body)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	v, ok := sensorService.Get("sensor.bedroom")
	require.True(t, ok)
	assert.Equal(t, 19.2, v)
}

func TestPostReadingRejectsMissingSensorID(t *testing.T) {
	server, _, _, _ := setupTestServer(t)

	body := bytes.NewBufferString(`{"value":19.2}`)
	req := httptest.NewRequest(http.MethodPost, "/api/readings", body)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStreamDeliversStatusUpdates(t *testing.T) {
	server, _, _, registry := setupTestServer(t)

	srv := httptest.NewServer(server.Handler())
	defer srv.Close()

	registry.Publish(roomcontroller.Status{RoomID: "living_room", Action: model.ActionIdle})

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/rooms/living_room/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Snapshot on connect.
	var status roomcontroller.Status
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&status))
	assert.Equal(t, "living_room", status.RoomID)
	assert.Equal(t, model.ActionIdle, status.Action)

	// Give the handler a moment to register the subscription, then push a
	// live update.
	time.Sleep(100 * time.Millisecond)
	registry.Publish(roomcontroller.Status{RoomID: "living_room", Action: model.ActionHeating, ValvePosition: 200})
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&status))
	assert.Equal(t, model.ActionHeating, status.Action)
	assert.Equal(t, 200, status.ValvePosition)
}
