package db

import (
	"database/sql"
	"fmt"

	"github.com/thatsimonsguy/trv-controller/internal/model"
)

// StartTransaction starts a new database transaction.
func StartTransaction(conn *sql.DB) (*sql.Tx, error) {
	tx, err := conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	return tx, nil
}

// CommitTransaction commits the given transaction.
func CommitTransaction(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RollbackTransaction rolls back the given transaction.
func RollbackTransaction(tx *sql.Tx) {
	tx.Rollback()
}

func UpdateRoomTarget(conn *sql.DB, id string, target float64) error {
	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("start transaction: %w", err)
	}
	if err := UpdateRoomTargetWithTx(tx, id, target); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func UpdateRoomTargetWithTx(tx *sql.Tx, id string, target float64) error {
	res, err := tx.Exec(`UPDATE rooms SET target_temp = ? WHERE id = ?`, target, id)
	if err != nil {
		return fmt.Errorf("update room target: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("no such room: %s", id)
	}
	return nil
}

func UpdateRoomMode(conn *sql.DB, id string, mode model.Mode) error {
	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("start transaction: %w", err)
	}
	if err := UpdateRoomModeWithTx(tx, id, mode); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func UpdateRoomModeWithTx(tx *sql.Tx, id string, mode model.Mode) error {
	res, err := tx.Exec(`UPDATE rooms SET mode = ? WHERE id = ?`, string(mode), id)
	if err != nil {
		return fmt.Errorf("update room mode: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("no such room: %s", id)
	}
	return nil
}
