//go:build !linux

package collector

import (
	"fmt"
	"runtime"
)

// NewProbe has no implementation outside linux.
func NewProbe() (Probe, error) {
	return nil, fmt.Errorf("%w (%s)", ErrUnsupported, runtime.GOOS)
}
