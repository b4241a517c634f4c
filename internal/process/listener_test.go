package process

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateListenSocketAcceptsConnections(t *testing.T) {
	file, err := CreateListenSocket("127.0.0.1", 0, 16)
	require.NoError(t, err)
	defer file.Close()

	ln, err := net.FileListener(file)
	require.NoError(t, err)
	defer ln.Close()

	addr := ln.Addr().String()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	conn.Close()
	<-done
}

func TestParseIPv4(t *testing.T) {
	addr, err := parseIPv4("127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, [4]byte{127, 0, 0, 1}, addr)

	_, err = parseIPv4("not-an-ip")
	assert.Error(t, err)
}

func TestParseIPv4Wildcard(t *testing.T) {
	addr, err := parseIPv4("")
	require.NoError(t, err)
	assert.Equal(t, [4]byte{0, 0, 0, 0}, addr)
}
