package collector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func envOf(vals map[string]string) func(string) string {
	return func(k string) string { return vals[k] }
}

func TestCheckSession(t *testing.T) {
	assert.ErrorIs(t, CheckSession("linux", envOf(nil)), ErrNoDisplay)
	assert.ErrorIs(t, CheckSession("linux", envOf(map[string]string{"DISPLAY": ""})), ErrNoDisplay)
	assert.NoError(t, CheckSession("linux", envOf(map[string]string{"DISPLAY": ":0"})))
	assert.NoError(t, CheckSession("darwin", envOf(nil)))
	assert.NoError(t, CheckSession("windows", envOf(nil)))
}
