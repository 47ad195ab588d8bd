//go:build linux

package collector

import "winwatch/internal/collector/x11"

// NewProbe connects to the X server named by DISPLAY.
func NewProbe() (Probe, error) {
	c, err := x11.NewX11Collector()
	if err != nil {
		return nil, err
	}
	return c, nil
}
