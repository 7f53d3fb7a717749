package internal

import (
	"fmt"
	"time"
)

type Config struct {
	Host string `env:"HOST,required=true"`
	Port int    `env:"PORT,required=true"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	LogLevel       string `env:"LOG_LEVEL,required=true"`

	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,required=true"`
	TelemetryBufferSize  int           `env:"TELEMETRY_BUFFER_SIZE,required=true"`
	TimelineCapacity     int           `env:"TIMELINE_CAPACITY,required=true"`
	ResumeWindow         time.Duration `env:"RESUME_WINDOW,required=true"`
	ReaperInterval       time.Duration `env:"REAPER_INTERVAL,required=true"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,required=true"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,required=true"`

	CharReplacement  string `env:"CHARACTER_REPLACEMENT,required=true"`
	EnableModeration bool   `env:"ENABLE_MODERATION,required=true"`

	DebugPort     *int    `env:"DEBUG_PORT"`
	AuditFilepath *string `env:"AUDIT_FILEPATH"`
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
