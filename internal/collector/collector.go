package collector

import (
	"errors"
	"winwatch/internal/event"
)

// ErrNoDisplay means the platform needs a display session and there is none.
var ErrNoDisplay = errors.New("DISPLAY environment variable not set")

// ErrUnsupported is returned by NewProbe on platforms without a probe.
var ErrUnsupported = errors.New("active window detection is not supported on this platform")

// Probe reports the currently focused window.
type Probe interface {
	// Sample returns nil, nil when no window has focus. Any error is a
	// platform-level failure for this sample only.
	Sample() (*event.Observation, error)
	Close() error
}

// CheckSession verifies the display session a probe needs is present.
// getenv is usually os.Getenv.
func CheckSession(goos string, getenv func(string) string) error {
	if goos == "linux" && getenv("DISPLAY") == "" {
		return ErrNoDisplay
	}
	return nil
}
