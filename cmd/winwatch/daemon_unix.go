//go:build !windows

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sevlyar/go-daemon"

	"winwatch/internal/config"
)

// daemonContext describes the detached child. Without --log its stderr is
// the log, in winwatch.log next to the queue. With --log the logger owns that
// file and stdout/stderr go to a different one.
func daemonContext(cfg *config.Config) *daemon.Context {
	dir := filepath.Dir(cfg.Queue.Path)
	out := filepath.Join(dir, "winwatch.log")
	if cfg.Log.File != "" {
		out = filepath.Join(dir, "winwatch.out")
		if filepath.Clean(cfg.Log.File) == out {
			out = filepath.Join(dir, "winwatch.stdout")
		}
	}
	return &daemon.Context{
		PidFileName: filepath.Join(dir, "winwatch.pid"),
		PidFilePerm: 0644,
		LogFileName: out,
		LogFilePerm: 0640,
		WorkDir:     "/",
		Umask:       027,
		Args:        os.Args,
	}
}

// daemonize forks a detached child running the same command line. In the
// parent it returns parent=true; in the child it returns a release func
// that removes the pid file.
func daemonize(cfg *config.Config) (release func(), parent bool, err error) {
	dir := filepath.Dir(cfg.Queue.Path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, false, fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}

	cntxt := daemonContext(cfg)
	child, err := cntxt.Reborn()
	if err != nil {
		return nil, false, err
	}
	if child != nil {
		fmt.Printf("winwatch started in background (pid %d)\n", child.Pid)
		return nil, true, nil
	}
	return func() { cntxt.Release() }, false, nil
}
