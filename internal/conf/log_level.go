package conf

import (
	"encoding/json"
	"fmt"

	"github.com/bluenviron/mp4mux/internal/logger"
)

var logLevelNames = map[LogLevel]string{
	LogLevel(logger.Error): "error",
	LogLevel(logger.Warn):  "warn",
	LogLevel(logger.Info):  "info",
	LogLevel(logger.Debug): "debug",
}

// LogLevel is the logLevel parameter.
// With "debug", the tracks found in the input are printed too.
type LogLevel logger.Level

// MarshalJSON implements json.Marshaler.
func (d LogLevel) MarshalJSON() ([]byte, error) {
	out, ok := logLevelNames[d]
	if !ok {
		return nil, fmt.Errorf("invalid log level: %v", d)
	}

	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *LogLevel) UnmarshalJSON(b []byte) error {
	var in string
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}

	for lvl, name := range logLevelNames {
		if name == in {
			*d = lvl
			return nil
		}
	}

	return fmt.Errorf("invalid log level: '%s' (valid are error, warn, info, debug)", in)
}

// UnmarshalEnv implements env.Unmarshaler.
func (d *LogLevel) UnmarshalEnv(_ string, v string) error {
	return d.UnmarshalJSON([]byte(`"` + v + `"`))
}
