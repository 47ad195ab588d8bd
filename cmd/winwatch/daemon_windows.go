//go:build windows

package main

import (
	"errors"

	"winwatch/internal/config"
)

func daemonize(*config.Config) (func(), bool, error) {
	return nil, false, errors.New("--daemon is not supported on windows")
}
