package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/thatsimonsguy/trv-controller/internal/model"
)

// ControlDefaults are the loop parameters shared by every room. Zero values
// are replaced with the defaults at load time.
type ControlDefaults struct {
	BlendHalfWidth         float64 `json:"blend_half_width"`
	DecayTauSeconds        float64 `json:"decay_tau_seconds"`
	BoostMinutes           int     `json:"boost_minutes"`
	MinSendIntervalSeconds int     `json:"min_send_interval_seconds"`
	WindowThresholdPerMin  float64 `json:"window_threshold_per_min"`
	WindowOpenMinutes      int     `json:"window_open_minutes"`
	WindowCheckSeconds     int     `json:"window_check_seconds"`
	HeatingActionThreshold float64 `json:"heating_action_threshold"`
}

type RoomConfig struct {
	ID            string  `json:"id"`
	Label         string  `json:"label"`
	SensorID      string  `json:"sensor_id"`
	DefaultTarget float64 `json:"default_target"`
	ActuatorType  string  `json:"actuator_type"` // "position", "setpoint" or "log"
	ActuatorURL   string  `json:"actuator_url"`

	Model       model.ProcessModel      `json:"process_model"`
	FeedForward model.FeedForwardConfig `json:"feed_forward"`
}

type Config struct {
	ConfigFile string
	LogLevel   zerolog.Level

	DBPath     string `json:"db_path"`
	ListenAddr string `json:"listen_addr"`

	PollIntervalSeconds int     `json:"poll_interval_seconds"`
	SensorMaxAgeSeconds int     `json:"sensor_max_age_seconds"`
	SensorMaxDeltaC     float64 `json:"sensor_max_delta_c"`

	FlowSensorID    string `json:"flow_sensor_id"`
	OutdoorSensorID string `json:"outdoor_sensor_id"`

	EnableDatadog bool     `json:"enable_datadog"`
	DDAgentAddr   string   `json:"dd_agent_addr"`
	DDNamespace   string   `json:"dd_namespace"`
	DDTags        []string `json:"dd_tags"`

	NtfyTopic string `json:"ntfy_topic"`

	Control ControlDefaults `json:"control"`
	Rooms   []RoomConfig    `json:"rooms"`
}

func Load() Config {
	var cfg Config
	var logLevel string

	flag.StringVar(&cfg.ConfigFile, "config-file", "config.json", "Path to controller config file")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	cfg.LogLevel = parseLogLevel(logLevel)

	file, err := os.Open(cfg.ConfigFile)
	if err != nil {
		panic("Failed to load config file: " + err.Error())
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		panic("Failed to parse config file: " + err.Error())
	}

	cfg.applyDefaults()
	cfg.validate()
	return cfg
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg *Config) applyDefaults() {
	if cfg.DBPath == "" {
		cfg.DBPath = "data/trv-controller.db"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.PollIntervalSeconds == 0 {
		cfg.PollIntervalSeconds = 30
	}
	if cfg.SensorMaxAgeSeconds == 0 {
		cfg.SensorMaxAgeSeconds = 900
	}
	if cfg.SensorMaxDeltaC == 0 {
		cfg.SensorMaxDeltaC = 8.0
	}

	c := &cfg.Control
	if c.BlendHalfWidth == 0 {
		c.BlendHalfWidth = 0.2
	}
	if c.DecayTauSeconds == 0 {
		c.DecayTauSeconds = 600
	}
	if c.BoostMinutes == 0 {
		c.BoostMinutes = 15
	}
	if c.MinSendIntervalSeconds == 0 {
		c.MinSendIntervalSeconds = 60
	}
	if c.WindowThresholdPerMin == 0 {
		c.WindowThresholdPerMin = 0.3
	}
	if c.WindowOpenMinutes == 0 {
		c.WindowOpenMinutes = 15
	}
	if c.WindowCheckSeconds == 0 {
		c.WindowCheckSeconds = 30
	}
	if c.HeatingActionThreshold == 0 {
		c.HeatingActionThreshold = 0.10
	}
}

// validate checks the structural parts of the config and panics with every
// problem it found. Gain and timing parameters are deliberately not
// rejected here: a room with an unusable model still starts and holds its
// valve closed, which beats refusing to heat the whole house. The
// temperature bounds are structural (they scope user targets and the error
// normalization), so an inverted range is a load error.
func (cfg *Config) validate() {
	var problems []string

	if len(cfg.Rooms) == 0 {
		problems = append(problems, "no rooms configured")
	}

	seen := map[string]bool{}
	for i, r := range cfg.Rooms {
		where := fmt.Sprintf("rooms[%d]", i)
		if r.ID == "" {
			problems = append(problems, where+": missing id")
		} else if seen[r.ID] {
			problems = append(problems, where+": duplicate id "+r.ID)
		} else {
			seen[r.ID] = true
		}
		if r.SensorID == "" {
			problems = append(problems, where+": missing sensor_id")
		}
		if r.ActuatorType != "position" && r.ActuatorType != "setpoint" && r.ActuatorType != "log" {
			problems = append(problems, fmt.Sprintf("%s: unknown actuator_type %q", where, r.ActuatorType))
		}
		if (r.ActuatorType == "position" || r.ActuatorType == "setpoint") && r.ActuatorURL == "" {
			problems = append(problems, where+": missing actuator_url")
		}
		if r.Model.MaxTemp <= r.Model.MinTemp {
			problems = append(problems, fmt.Sprintf("%s: max_temp %.1f must be above min_temp %.1f",
				where, r.Model.MaxTemp, r.Model.MinTemp))
		} else if r.DefaultTarget < r.Model.MinTemp || r.DefaultTarget > r.Model.MaxTemp {
			problems = append(problems, fmt.Sprintf("%s: default_target %.1f outside [%.1f, %.1f]",
				where, r.DefaultTarget, r.Model.MinTemp, r.Model.MaxTemp))
		}
	}

	if len(problems) > 0 {
		panic("Invalid config: " + strings.Join(problems, "; "))
	}
}

// Room converts the static room definition into the registry record used to
// seed the database.
func (r RoomConfig) Room() model.Room {
	return model.Room{
		ID:           r.ID,
		Label:        r.Label,
		SensorID:     r.SensorID,
		TargetTemp:   r.DefaultTarget,
		Mode:         model.ModeAuto,
		ActuatorType: r.ActuatorType,
		ActuatorURL:  r.ActuatorURL,
		MinTemp:      r.Model.MinTemp,
		MaxTemp:      r.Model.MaxTemp,
	}
}
