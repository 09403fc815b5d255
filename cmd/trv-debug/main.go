package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/thatsimonsguy/trv-controller/db"
)

func main() {
	DebugCLI()
}

func DebugCLI() {
	var dbPath, command, roomID, mode string
	var target float64
	flag.StringVar(&dbPath, "db", "data/trv-controller.db", "Path to the SQLite database file")
	flag.StringVar(&command, "cmd", "", "Command to run: set-room-mode, set-room-target")
	flag.StringVar(&roomID, "room", "", "Room ID")
	flag.StringVar(&mode, "mode", "", "Mode for the room (off, boost, auto)")
	flag.Float64Var(&target, "target", 0, "Target temperature for the room")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help || command == "" {
		fmt.Println("\nUsage of trv-debug:")
		fmt.Println("  -db string\tPath to the SQLite database file (default 'data/trv-controller.db')")
		fmt.Println("  -cmd string\tCommand to run: set-room-mode, set-room-target")
		fmt.Println("  -room string\tRoom ID")
		fmt.Println("  -mode string\tMode for the room (off, boost, auto)")
		fmt.Println("  -target float\tTarget temperature for the room")
		fmt.Println("  -help\tShow this help message")
		os.Exit(0)
	}

	if roomID == "" {
		fmt.Println("Error: room ID is required")
		os.Exit(1)
	}

	var err error
	switch command {
	case "set-room-mode":
		err = db.SetRoomModeCLI(dbPath, roomID, mode)
	case "set-room-target":
		err = db.SetRoomTargetCLI(dbPath, roomID, target)
	default:
		fmt.Println("Invalid command")
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Command %s failed: %v\n", command, err)
		os.Exit(1)
	}
	fmt.Printf("Command %s completed successfully\n", command)
}
