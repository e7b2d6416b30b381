package transport_test

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ar-tracking/DTrackSDK/pkg/errclass"
	"github.com/ar-tracking/DTrackSDK/pkg/transport"
)

func openDataPort(t *testing.T, opts ...transport.DataOption) *transport.DataPort {
	t.Helper()
	port, err := transport.ListenData(0, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = port.Close() })
	return port
}

func sendDatagrams(t *testing.T, port int, payloads ...string) *net.UDPConn {
	t.Helper()
	conn, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	for _, p := range payloads {
		_, err := conn.Write([]byte(p))
		require.NoError(t, err)
	}
	return conn
}

func TestDataPortReceive(t *testing.T) {
	port := openDataPort(t)
	assert.Nil(t, port.RemoteIP())

	sendDatagrams(t, port.Port(), "fr 1\r\n")

	data, err := port.Receive()
	require.NoError(t, err)
	assert.Equal(t, "fr 1\r\n", string(data))
	assert.True(t, port.RemoteIP().Equal(net.IPv4(127, 0, 0, 1)))
}

func TestDataPortKeepsNewestDatagram(t *testing.T) {
	port := openDataPort(t)
	sendDatagrams(t, port.Port(), "fr 1", "fr 2", "fr 3")
	time.Sleep(20 * time.Millisecond)

	data, err := port.Receive()
	require.NoError(t, err)
	assert.Equal(t, "fr 3", string(data))
}

func TestDataPortTimeout(t *testing.T) {
	port := openDataPort(t, transport.WithDataTimeout(30*time.Millisecond))

	start := time.Now()
	_, err := port.Receive()
	require.Error(t, err)
	assert.True(t, errclass.IsTimeout(err))
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestDataPortOverflow(t *testing.T) {
	port := openDataPort(t, transport.WithDataBufferSize(16))
	assert.Equal(t, 16, port.BufferSize())

	sendDatagrams(t, port.Port(), strings.Repeat("x", 40))
	_, err := port.Receive()
	require.Error(t, err)
	assert.Equal(t, errclass.Network, errclass.Of(err))

	sendDatagrams(t, port.Port(), "fr 7")
	data, err := port.Receive()
	require.NoError(t, err)
	assert.Equal(t, "fr 7", string(data))
}

func TestDataPortSendTo(t *testing.T) {
	port := openDataPort(t)

	peer, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer peer.Close()

	dst := peer.LocalAddr().(*net.UDPAddr)
	require.NoError(t, port.SendTo(dst.IP, dst.Port, "tfb 1 [0 1 1.0 0.5]"))

	buf := make([]byte, 256)
	_ = peer.SetReadDeadline(time.Now().Add(time.Second))
	n, _, err := peer.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.Equal(t, "tfb 1 [0 1 1.0 0.5]\x00", string(buf[:n]))

	assert.Error(t, port.SendTo(nil, dst.Port, "x"))
}

func TestUDPCommandConn(t *testing.T) {
	port := openDataPort(t)
	peer, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer peer.Close()

	dst := peer.LocalAddr().(*net.UDPAddr)
	conn := transport.NewUDPCommandConn(port, dst.IP, dst.Port)
	require.NoError(t, conn.WriteLine("dtrack 10 3", time.Second))

	buf := make([]byte, 64)
	_ = peer.SetReadDeadline(time.Now().Add(time.Second))
	n, _, err := peer.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.Equal(t, "dtrack 10 3\x00", string(buf[:n]))

	_, err = conn.ReadLine(time.Millisecond)
	assert.Equal(t, errclass.Network, errclass.Of(err))
	require.NoError(t, conn.Close())
}
