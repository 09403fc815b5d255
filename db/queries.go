package db

import (
	"database/sql"
	"fmt"

	"github.com/thatsimonsguy/trv-controller/internal/model"
)

// GetAllRooms retrieves all rooms from the database.
func GetAllRooms(conn *sql.DB) ([]model.Room, error) {
	rows, err := conn.Query(`SELECT id, label, sensor_id, target_temp, mode, actuator_type, actuator_url FROM rooms`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rooms: %w", err)
	}
	defer rows.Close()

	var rooms []model.Room
	for rows.Next() {
		var r model.Room
		err = rows.Scan(&r.ID, &r.Label, &r.SensorID, &r.TargetTemp, &r.Mode, &r.ActuatorType, &r.ActuatorURL)
		if err != nil {
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		rooms = append(rooms, r)
	}
	return rooms, nil
}

// GetRoomByID retrieves a specific room by its ID.
func GetRoomByID(conn *sql.DB, id string) (*model.Room, error) {
	var r model.Room
	err := conn.QueryRow(`SELECT id, label, sensor_id, target_temp, mode, actuator_type, actuator_url FROM rooms WHERE id = ?`, id).
		Scan(&r.ID, &r.Label, &r.SensorID, &r.TargetTemp, &r.Mode, &r.ActuatorType, &r.ActuatorURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get room %s: %w", id, err)
	}
	return &r, nil
}
