package shutdown

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/trv-controller/internal/model"
	"github.com/thatsimonsguy/trv-controller/internal/valve"
)

var (
	dispatcher *valve.Dispatcher
	rooms      []model.Room
)

// Init registers the valve dispatcher and room set used for the fail-safe
// close on exit. Must be called before Shutdown.
func Init(d *valve.Dispatcher, r []model.Room) {
	dispatcher = d
	rooms = r
}

// Shutdown drives every valve closed and exits. Rooms whose actuator cannot
// be reached are logged and skipped so one dead valve bridge does not keep
// the rest open.
func Shutdown() {
	if dispatcher == nil {
		log.Warn().Msg("Shutdown called before Init, exiting without closing valves")
		os.Exit(0)
	}
	for _, room := range rooms {
		if err := dispatcher.Set(room, model.ValveClosed); err != nil {
			log.Error().Err(err).Str("room", room.ID).Msg("Failed to close valve during shutdown")
			continue
		}
		log.Info().Str("room", room.ID).Msg("Valve closed for shutdown")
	}
	os.Exit(0)
}

func ShutdownWithError(err error, msg string) {
	log.Error().Err(err).Msg(msg)
	Shutdown()
}
