package logger

import (
	"io"
	"os"
	"strings"
)

var (
	FlagVerboseCount int  // -V
	FlagQuiet        bool // --quiet/-q
	FlagSilent       bool // --silent/-s
	FlagJSON         bool // --log-json
)

// ConfigureLoggerFromFlags applies the root persistent flags. WARDEN_LOG_FORMAT=json
// switches to JSON lines without touching the command line, for the daemon unit.
func ConfigureLoggerFromFlags() {
	var out io.Writer = os.Stdout
	if FlagSilent {
		out = io.Discard
	}
	asJSON := jsonRequested()

	Configure(Options{
		Level: flagLevel(),
		JSON:  asJSON,
		Color: !asJSON,
		Out:   out,
	})
}

func flagLevel() string {
	switch {
	case FlagQuiet, FlagSilent:
		return "error"
	case FlagVerboseCount > 0:
		return "debug"
	default:
		return "info"
	}
}

func jsonRequested() bool {
	return FlagJSON || strings.EqualFold(strings.TrimSpace(os.Getenv("WARDEN_LOG_FORMAT")), "json")
}
