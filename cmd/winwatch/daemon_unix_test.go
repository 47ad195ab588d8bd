//go:build !windows

package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"winwatch/internal/config"
)

func TestDaemonOutputWithoutLogFile(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{Queue: config.QueueConfig{Path: filepath.Join(dir, "queue.db")}}

	c := daemonContext(cfg)
	assert.Equal(t, filepath.Join(dir, "winwatch.log"), c.LogFileName)
	assert.Equal(t, filepath.Join(dir, "winwatch.pid"), c.PidFileName)
}

func TestDaemonOutputNeverSharesLogFile(t *testing.T) {
	dir := t.TempDir()
	for _, logFile := range []string{
		filepath.Join(dir, "winwatch.log"),
		filepath.Join(dir, "winwatch.out"),
		filepath.Join(t.TempDir(), "custom.log"),
	} {
		cfg := &config.Config{
			Queue: config.QueueConfig{Path: filepath.Join(dir, "queue.db")},
			Log:   config.LogConfig{File: logFile},
		}
		c := daemonContext(cfg)
		assert.NotEqual(t, logFile, c.LogFileName, logFile)
	}
}
