// Package client implements the handshake and connect flow described in
// spec.md §4.7: solve a server-issued Hashcash challenge over UDP, then
// open the TCP service from the exact local address the challenge was
// bound to.
package client

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/erigontech/erigon-lib/log/v3"

	"github.com/biryukovmaxim/ddos-protection-task/internal/hashcash"
	"github.com/biryukovmaxim/ddos-protection-task/internal/socketv4"
	"github.com/biryukovmaxim/ddos-protection-task/internal/wire"
)

// ErrWrongUniqKey is returned when the server's SendChallenge names a
// uniq-key that does not match the address this client actually sent
// from — a sign of a misbehaving or spoofed server (spec.md §4.7).
var ErrWrongUniqKey = errors.New("client: server-supplied uniq-key does not match local address")

// ErrChallengeRejected is returned when the server's Confirmation carries
// Success=false.
var ErrChallengeRejected = errors.New("client: server rejected solution")

// Config configures a Client's handshake and connect attempt.
type Config struct {
	ServerUDPAddr string
	ServerTCPAddr string
	Difficulty    uint32
	ReadTimeout   time.Duration
}

func (c Config) readTimeout() time.Duration {
	if c.ReadTimeout > 0 {
		return c.ReadTimeout
	}
	return 5 * time.Second
}

// Client performs the UDP challenge handshake, then hands back a TCP
// connection opened from the same local port the challenge was solved for.
type Client struct {
	cfg    Config
	logger log.Logger
}

// New returns a Client for cfg.
func New(cfg Config, logger log.Logger) *Client {
	return &Client{cfg: cfg, logger: logger}
}

// Connect runs the full handshake (spec.md §4.7 steps 1-6) and returns a
// connected *net.TCPConn to the service, bound from the uniq-key address.
func (c *Client) Connect() (*net.TCPConn, error) {
	udpConn, localKey, err := c.handshake()
	if err != nil {
		if udpConn != nil {
			_ = udpConn.Close()
		}
		return nil, err
	}
	defer udpConn.Close()

	tcpAddr, err := net.ResolveTCPAddr("tcp4", c.cfg.ServerTCPAddr)
	if err != nil {
		return nil, err
	}
	localTCPAddr := &net.TCPAddr{IP: localKey.IP(), Port: int(localKey.Port)}
	conn, err := net.DialTCP("tcp4", localTCPAddr, tcpAddr)
	if err != nil {
		return nil, fmt.Errorf("client: tcp dial from %s: %w", localTCPAddr, err)
	}
	return conn, nil
}

// handshake performs the UDP exchange and returns the still-open UDP
// socket (whose local address is the uniq-key the TCP dial must reuse)
// together with that uniq-key.
func (c *Client) handshake() (*net.UDPConn, socketv4.SocketV4, error) {
	serverAddr, err := net.ResolveUDPAddr("udp4", c.cfg.ServerUDPAddr)
	if err != nil {
		return nil, socketv4.SocketV4{}, err
	}
	localAddr, err := net.ResolveUDPAddr("udp4", "0.0.0.0:0")
	if err != nil {
		return nil, socketv4.SocketV4{}, err
	}
	conn, err := net.DialUDP("udp4", localAddr, serverAddr)
	if err != nil {
		return nil, socketv4.SocketV4{}, err
	}

	localKey := socketv4.FromUDPAddr(conn.LocalAddr().(*net.UDPAddr))
	c.logger.Debug("dialed challenge server", "local", localKey, "server", serverAddr)

	if _, err := conn.Write(wire.EncodeRequest(wire.ChallengeRequest{})); err != nil {
		return conn, socketv4.SocketV4{}, fmt.Errorf("client: send challenge request: %w", err)
	}

	sc, err := c.readSendChallenge(conn)
	if err != nil {
		return conn, socketv4.SocketV4{}, err
	}
	if sc.UniqKey != localKey {
		return conn, socketv4.SocketV4{}, fmt.Errorf("%w: got %s, want %s", ErrWrongUniqKey, sc.UniqKey, localKey)
	}

	hc := hashcash.New(sha256.New, localKey.PoWPrefix(sc.Challenge))
	sum, nonce, err := hc.Compute(c.cfg.Difficulty)
	if err != nil {
		return conn, socketv4.SocketV4{}, fmt.Errorf("client: solve challenge: %w", err)
	}
	c.logger.Info("solved challenge", "peer", localKey, "nonce", nonce, "difficulty", c.cfg.Difficulty)

	var hashArr [32]byte
	copy(hashArr[:], sum)
	if _, err := conn.Write(wire.EncodeRequest(wire.SolutionRequest{Hash: hashArr, Nonce: nonce})); err != nil {
		return conn, socketv4.SocketV4{}, fmt.Errorf("client: send solution: %w", err)
	}

	conf, err := c.readConfirmation(conn)
	if err != nil {
		return conn, socketv4.SocketV4{}, err
	}
	if !conf.Success {
		return conn, socketv4.SocketV4{}, ErrChallengeRejected
	}
	return conn, localKey, nil
}

func (c *Client) readSendChallenge(conn *net.UDPConn) (wire.SendChallenge, error) {
	resp, err := c.readResponse(conn)
	if err != nil {
		return wire.SendChallenge{}, err
	}
	sc, ok := resp.(wire.SendChallenge)
	if !ok {
		return wire.SendChallenge{}, fmt.Errorf("client: expected SendChallenge, got %T", resp)
	}
	return sc, nil
}

func (c *Client) readConfirmation(conn *net.UDPConn) (wire.Confirmation, error) {
	resp, err := c.readResponse(conn)
	if err != nil {
		return wire.Confirmation{}, err
	}
	conf, ok := resp.(wire.Confirmation)
	if !ok {
		return wire.Confirmation{}, fmt.Errorf("client: expected Confirmation, got %T", resp)
	}
	return conf, nil
}

func (c *Client) readResponse(conn *net.UDPConn) (wire.Response, error) {
	if err := conn.SetReadDeadline(time.Now().Add(c.cfg.readTimeout())); err != nil {
		return nil, err
	}
	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("client: read response: %w", err)
	}
	return wire.DecodeResponse(buf[:n])
}
