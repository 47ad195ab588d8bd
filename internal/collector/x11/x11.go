package x11

import (
	"fmt"
	"winwatch/internal/event"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
)

const unknown = "unknown"

// windowSource is the subset of X queries the collector needs.
type windowSource interface {
	ActiveWindow() (xproto.Window, error)
	EwmhName(win xproto.Window) (string, error)
	IcccmName(win xproto.Window) (string, error)
	Class(win xproto.Window) (*icccm.WmClass, error)
	Close()
}

type X11Collector struct {
	src windowSource
}

func NewX11Collector() (*X11Collector, error) {
	X, err := xgbutil.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}
	return &X11Collector{src: xutilSource{X}}, nil
}

// Sample reads the active window. Window id 0 means nothing has focus.
func (c *X11Collector) Sample() (*event.Observation, error) {
	win, err := c.src.ActiveWindow()
	if err != nil {
		return nil, fmt.Errorf("could not get active window ID: %w", err)
	}
	if win == 0 {
		return nil, nil
	}

	// _NET_WM_NAME is UTF-8; WM_NAME is the ICCCM fallback.
	title, err := c.src.EwmhName(win)
	if err != nil || title == "" {
		title, err = c.src.IcccmName(win)
		if err != nil || title == "" {
			title = unknown
		}
	}

	appName := unknown
	if class, err := c.src.Class(win); err == nil && class != nil && class.Class != "" {
		appName = class.Class
	}

	return &event.Observation{AppName: appName, Title: title}, nil
}

func (c *X11Collector) Close() error {
	c.src.Close()
	return nil
}

type xutilSource struct {
	X *xgbutil.XUtil
}

func (s xutilSource) ActiveWindow() (xproto.Window, error) {
	return ewmh.ActiveWindowGet(s.X)
}

func (s xutilSource) EwmhName(win xproto.Window) (string, error) {
	return ewmh.WmNameGet(s.X, win)
}

func (s xutilSource) IcccmName(win xproto.Window) (string, error) {
	return icccm.WmNameGet(s.X, win)
}

func (s xutilSource) Class(win xproto.Window) (*icccm.WmClass, error) {
	return icccm.WmClassGet(s.X, win)
}

func (s xutilSource) Close() {
	s.X.Conn().Close()
}
