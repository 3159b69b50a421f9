package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryandielhenn/sudokumesh/pkg/node"
)

func TestFlagDefaults(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"-p", "8001", "-s", "7001", "-a", "10.0.0.2:7000", "-H", "3"}))

	f := cmd.Flags()
	httpPort, _ := f.GetInt("http-port")
	p2pPort, _ := f.GetInt("p2p-port")
	anchor, _ := f.GetString("anchor")
	handicap, _ := f.GetInt("handicap")
	assert.Equal(t, 8001, httpPort)
	assert.Equal(t, 7001, p2pPort)
	assert.Equal(t, "10.0.0.2:7000", anchor)
	assert.Equal(t, 3, handicap)

	interval, _ := f.GetDuration("interval")
	assert.Equal(t, node.DefaultMaintenanceInterval, interval)
}

func TestNewLogger(t *testing.T) {
	_, err := newLogger("debug", "json")
	assert.NoError(t, err)
	_, err = newLogger("loud", "json")
	assert.Error(t, err)
	_, err = newLogger("info", "xml")
	assert.Error(t, err)
}
