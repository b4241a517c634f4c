package forkserve

import (
	"net"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forkserve/internal/config"
)

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Workers = 0
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestNewAppliesOptions(t *testing.T) {
	cfg := config.Default()
	var handlerCalled bool
	handler := func(conn net.Conn) error {
		handlerCalled = true
		return nil
	}

	srv, err := New(cfg, WithHandler(handler))
	require.NoError(t, err)
	require.NotNil(t, srv.handler)

	_ = srv.handler(nil)
	assert.True(t, handlerCalled)
}

func TestDefaultHandlerIsEchoWhenUnset(t *testing.T) {
	cfg := config.Default()
	srv, err := New(cfg)
	require.NoError(t, err)
	assert.NotNil(t, srv.handler)
	assert.Equal(t, reflect.ValueOf(EchoHandler).Pointer(), reflect.ValueOf(srv.handler).Pointer())
}
