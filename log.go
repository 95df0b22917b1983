package hawk

import (
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// ParseLogLevel maps a configured level name to an hclog level. The empty
// string means warn and none turns logging off.
func ParseLogLevel(s string) (hclog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return hclog.Warn, nil
	case "none", "off":
		return hclog.Off, nil
	}
	level := hclog.LevelFromString(s)
	if level == hclog.NoLevel {
		return hclog.NoLevel, fmt.Errorf("unknown log level %q (supported: none, error, warn, info, debug, trace)", s)
	}
	return level, nil
}

func newLogger(cfg Config) (hclog.Logger, error) {
	if cfg.Logger != nil {
		return cfg.Logger.Named("hawk"), nil
	}
	level, err := ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:   "hawk",
		Level:  level,
		Output: os.Stderr,
	}), nil
}
