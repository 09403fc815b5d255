package db

import (
	"database/sql"
	"fmt"

	"github.com/thatsimonsguy/trv-controller/internal/model"
)

func SetRoomModeCLI(dbPath, roomID, mode string) error {
	if !model.ValidMode(model.Mode(mode)) {
		return fmt.Errorf("invalid mode: %s", mode)
	}
	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	tx, err := StartTransaction(conn)
	if err != nil {
		return err
	}
	if err := UpdateRoomModeWithTx(tx, roomID, model.Mode(mode)); err != nil {
		RollbackTransaction(tx)
		return err
	}
	return CommitTransaction(tx)
}

func SetRoomTargetCLI(dbPath, roomID string, target float64) error {
	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	tx, err := StartTransaction(conn)
	if err != nil {
		return err
	}
	if err := UpdateRoomTargetWithTx(tx, roomID, target); err != nil {
		RollbackTransaction(tx)
		return err
	}
	return CommitTransaction(tx)
}
