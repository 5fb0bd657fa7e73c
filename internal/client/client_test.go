package client_test

import (
	"bufio"
	"context"
	"testing"
	"time"

	"github.com/erigontech/erigon-lib/log/v3"
	"github.com/stretchr/testify/require"

	"github.com/biryukovmaxim/ddos-protection-task/internal/client"
	"github.com/biryukovmaxim/ddos-protection-task/internal/server"
	"github.com/biryukovmaxim/ddos-protection-task/internal/xdpmap"
)

func startTestServer(t *testing.T) (udpAddr, tcpAddr string) {
	t.Helper()
	srv := server.New(server.Config{
		UDPAddr:    "127.0.0.1:0",
		TCPAddr:    "127.0.0.1:0",
		Difficulty: 4,
	}, xdpmap.NewFakeMap(), log.New())

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = srv.Run(ctx) }()
	t.Cleanup(cancel)

	require.Eventually(t, func() bool {
		return srv.UDPAddrForTest() != nil && srv.TCPAddrForTest() != nil
	}, time.Second, time.Millisecond)

	return srv.UDPAddrForTest().String(), srv.TCPAddrForTest().String()
}

// S1 end-to-end through the public client API: handshake, solve, connect,
// read the service greeting.
func TestClient_ConnectFullFlow(t *testing.T) {
	udpAddr, tcpAddr := startTestServer(t)

	c := client.New(client.Config{
		ServerUDPAddr: udpAddr,
		ServerTCPAddr: tcpAddr,
		Difficulty:    4,
		ReadTimeout:   2 * time.Second,
	}, log.New())

	conn, err := c.Connect()
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, server.Greeting, line)
}

// A client configured with a lower difficulty than the server enforces
// submits a solution the server's Verify rejects; Connect must surface
// ErrChallengeRejected rather than silently opening TCP.
func TestClient_RejectedSolutionSurfacesError(t *testing.T) {
	srv := server.New(server.Config{
		UDPAddr:    "127.0.0.1:0",
		TCPAddr:    "127.0.0.1:0",
		Difficulty: 24,
	}, xdpmap.NewFakeMap(), log.New())

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = srv.Run(ctx) }()
	t.Cleanup(cancel)
	require.Eventually(t, func() bool {
		return srv.UDPAddrForTest() != nil && srv.TCPAddrForTest() != nil
	}, time.Second, time.Millisecond)

	c := client.New(client.Config{
		ServerUDPAddr: srv.UDPAddrForTest().String(),
		ServerTCPAddr: srv.TCPAddrForTest().String(),
		Difficulty:    0, // solves trivially, but won't satisfy the server's difficulty=24
		ReadTimeout:   2 * time.Second,
	}, log.New())

	_, err := c.Connect()
	require.ErrorIs(t, err, client.ErrChallengeRejected)
}
