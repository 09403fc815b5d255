package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/trv-controller/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id            TEXT PRIMARY KEY,
	label         TEXT NOT NULL,
	sensor_id     TEXT NOT NULL,
	target_temp   REAL NOT NULL,
	mode          TEXT NOT NULL,
	actuator_type TEXT NOT NULL,
	actuator_url  TEXT NOT NULL DEFAULT ''
);
`

// Open opens the controller database, creating the schema if needed.
func Open(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return conn, nil
}

// SeedRooms reconciles the rooms table with the configured room list. Rooms
// appearing for the first time are inserted with their configured defaults;
// rooms that already exist keep their persisted target and mode so user
// settings survive restarts; rooms no longer configured are removed.
func SeedRooms(conn *sql.DB, rooms []model.Room) error {
	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	configured := make(map[string]bool, len(rooms))
	for _, r := range rooms {
		configured[r.ID] = true
		_, err = tx.Exec(`INSERT INTO rooms (id, label, sensor_id, target_temp, mode, actuator_type, actuator_url)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				label = excluded.label,
				sensor_id = excluded.sensor_id,
				actuator_type = excluded.actuator_type,
				actuator_url = excluded.actuator_url`,
			r.ID, r.Label, r.SensorID, r.TargetTemp, string(r.Mode), r.ActuatorType, r.ActuatorURL)
		if err != nil {
			return fmt.Errorf("failed to seed room %s: %w", r.ID, err)
		}
	}

	rows, err := tx.Query(`SELECT id FROM rooms`)
	if err != nil {
		return fmt.Errorf("failed to list rooms: %w", err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan room id: %w", err)
		}
		if !configured[id] {
			stale = append(stale, id)
		}
	}
	rows.Close()

	for _, id := range stale {
		if _, err := tx.Exec(`DELETE FROM rooms WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to remove room %s: %w", id, err)
		}
		log.Info().Str("room", id).Msg("Removed room no longer present in config")
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seed transaction: %w", err)
	}
	return nil
}
