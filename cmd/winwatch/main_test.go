package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"winwatch/internal/collector"
	"winwatch/internal/ipc"
	"winwatch/internal/logging"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath, daemonMode = "", false
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func isolate(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	dir, err := os.MkdirTemp("", "ww")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	path := filepath.Join(dir, "s.sock")
	t.Setenv("WINWATCH_SOCKET_PATH", path)
	return path
}

func TestCommandTree(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"run", "current", "ping", "status"} {
		sub, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}
	for _, flag := range []string{"exclude-title", "verbose", "poll-time", "log", "metrics-addr", "daemon"} {
		assert.NotNil(t, root.Flags().Lookup(flag), flag)
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("testing"))
}

func TestPingWithoutWatcher(t *testing.T) {
	isolate(t)
	_, err := execute(t, "ping")
	assert.ErrorContains(t, err, "Is the watcher running?")
}

func TestPingAndStatus(t *testing.T) {
	path := isolate(t)
	srv := ipc.NewServer(path, func(_ context.Context, cmd ipc.Command) ipc.Response {
		if cmd.Name == ipc.CmdPing {
			return ipc.Response{Success: true, Message: "pong"}
		}
		return ipc.Response{Success: true, Data: ipc.StatusData{Bucket: "aw-watcher-window_host", QueuePending: 2}}
	}, logging.Discard())
	require.NoError(t, srv.Listen())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	defer func() { cancel(); <-done }()

	out, err := execute(t, "ping")
	require.NoError(t, err)
	assert.Contains(t, out, "pong")

	out, err = execute(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, `"bucket": "aw-watcher-window_host"`)
	assert.Contains(t, out, `"queue_pending": 2`)
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	isolate(t)
	out, err := execute(t, "run", "--poll-time=0")
	assert.Error(t, err)
	assert.Contains(t, out, "Failed to load configuration")
}

func TestDaemonRequiresDisplayBeforeDetaching(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("display session is only required on linux")
	}
	isolate(t)
	t.Setenv("DISPLAY", "")

	out, err := execute(t, "run", "--daemon")
	assert.ErrorIs(t, err, collector.ErrNoDisplay)
	assert.NotContains(t, out, "started in background")
}
