// Package server implements the userspace server loop: it binds the UDP
// challenge plane and TCP service plane, wires them to a challenge engine
// and a shared whitelist, and runs until its context is cancelled
// (spec.md §4.6).
package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"github.com/erigontech/erigon-lib/log/v3"

	"github.com/biryukovmaxim/ddos-protection-task/internal/engine"
	"github.com/biryukovmaxim/ddos-protection-task/internal/socketv4"
	"github.com/biryukovmaxim/ddos-protection-task/internal/udpproc"
	"github.com/biryukovmaxim/ddos-protection-task/internal/wire"
	"github.com/biryukovmaxim/ddos-protection-task/internal/xdpmap"
)

// Greeting is the payload written to every accepted TCP connection. The
// service itself is out of scope (spec.md §1); this is the trivial
// stand-in the spec names.
const Greeting = "Hello World\n"

// Stats holds the server's counters, the Go-idiom descendant of the
// teacher's UDPv4.errors map (p2p/discover/v4_udp.go), surfaced for
// observability (SPEC_FULL.md §C.3). ParseErrors, ChallengeNotFound and
// InternalEngineErrors count dropped datagrams by cause; ConnectionsServed
// and WhitelistRemoveFails count TCP-side events. A SolutionRequest with no
// pending challenge is answered with Confirmation(false) by udpproc rather
// than dropped, so it is not counted in ChallengeNotFound.
type Stats struct {
	ParseErrors          atomic.Uint64
	ChallengeNotFound    atomic.Uint64
	InternalEngineErrors atomic.Uint64
	ConnectionsServed    atomic.Uint64
	WhitelistRemoveFails atomic.Uint64
}

// Config configures a Server.
type Config struct {
	UDPAddr    string
	TCPAddr    string
	Difficulty uint32
}

// Server owns the UDP and TCP sockets, the challenge engine, and the
// whitelist map shared with the kernel filter.
type Server struct {
	cfg    Config
	logger log.Logger

	engine    *engine.Engine
	processor *udpproc.Processor
	whitelist xdpmap.Map

	udpConn *net.UDPConn
	tcpLn   *net.TCPListener

	boundUDPAddr atomic.Pointer[net.UDPAddr]
	boundTCPAddr atomic.Pointer[net.TCPAddr]

	Stats Stats

	wg sync.WaitGroup
}

// New constructs a Server. whitelist is shared with the kernel filter in
// production (an *xdpmap.EbpfMap); tests pass an *xdpmap.FakeMap.
func New(cfg Config, whitelist xdpmap.Map, logger log.Logger) *Server {
	eng := engine.New(cfg.Difficulty, whitelist, logger)
	return &Server{
		cfg:       cfg,
		logger:    logger,
		engine:    eng,
		processor: udpproc.New(eng),
		whitelist: whitelist,
	}
}

// Run binds both sockets and blocks, serving until ctx is cancelled. It
// always returns a non-nil error: context.Canceled on orderly shutdown.
func (s *Server) Run(ctx context.Context) error {
	udpAddr, err := net.ResolveUDPAddr("udp4", s.cfg.UDPAddr)
	if err != nil {
		return err
	}
	udpConn, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		return err
	}
	s.udpConn = udpConn

	tcpAddr, err := net.ResolveTCPAddr("tcp4", s.cfg.TCPAddr)
	if err != nil {
		_ = udpConn.Close()
		return err
	}
	tcpLn, err := net.ListenTCP("tcp4", tcpAddr)
	if err != nil {
		_ = udpConn.Close()
		return err
	}
	s.tcpLn = tcpLn

	s.boundUDPAddr.Store(udpConn.LocalAddr().(*net.UDPAddr))
	s.boundTCPAddr.Store(tcpLn.Addr().(*net.TCPAddr))

	s.logger.Info("server listening", "udp", s.cfg.UDPAddr, "tcp", s.cfg.TCPAddr, "difficulty", s.cfg.Difficulty)

	s.wg.Add(2)
	go s.udpLoop(ctx)
	go s.tcpLoop(ctx)

	<-ctx.Done()
	_ = s.udpConn.Close()
	_ = s.tcpLn.Close()
	s.wg.Wait()
	s.engine.Close()
	return ctx.Err()
}

func (s *Server) udpLoop(ctx context.Context) {
	defer s.wg.Done()
	buf := make([]byte, 41)
	for {
		n, addr, err := s.udpConn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Trace("udp read error", "err", err)
			continue
		}
		ip4 := addr.IP.To4()
		if ip4 == nil {
			// Non-IPv4 peers are dropped (spec.md §4.6, Non-goals: no IPv6).
			continue
		}
		peer := socketv4.FromUDPAddr(addr)
		resp, err := s.processor.Process(append([]byte(nil), buf[:n]...), peer)
		if err != nil {
			s.countProcessError(err)
			s.logger.Warn("dropping malformed or unprocessable datagram", "peer", peer, "err", err)
			continue
		}
		if _, err := s.udpConn.WriteToUDP(resp, addr); err != nil {
			s.logger.Trace("udp write error", "peer", peer, "err", err)
		}
	}
}

func (s *Server) countProcessError(err error) {
	if errIsChallengeNotFound(err) {
		s.Stats.ChallengeNotFound.Add(1)
		return
	}
	if isParseError(err) {
		s.Stats.ParseErrors.Add(1)
		return
	}
	s.Stats.InternalEngineErrors.Add(1)
}

func (s *Server) tcpLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		conn, err := s.tcpLn.AcceptTCP()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Trace("tcp accept error", "err", err)
			continue
		}
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn *net.TCPConn) {
	defer conn.Close()
	peerAddr, ok := conn.RemoteAddr().(*net.TCPAddr)
	if !ok || peerAddr.IP.To4() == nil {
		return
	}
	peer := socketv4.SocketV4{
		Address: ipToUint32(peerAddr.IP.To4()),
		Port:    uint16(peerAddr.Port),
	}
	s.logger.Debug("accepted connection", "peer", peer)

	if _, err := conn.Write([]byte(Greeting)); err != nil {
		s.logger.Trace("write failed", "peer", peer, "err", err)
	}
	s.Stats.ConnectionsServed.Add(1)

	// Removal happens AFTER the write completes (spec.md §9's decided
	// open question): the response must fully drain before the peer's
	// whitelist entry is revoked.
	if err := s.whitelist.Remove(peer); err != nil {
		s.Stats.WhitelistRemoveFails.Add(1)
		s.logger.Error("failed to remove whitelist entry", "peer", peer, "err", err)
	}
}

// UDPAddrForTest returns the UDP socket's bound address once Run has
// started listening, or nil beforehand. Exported for use by tests that
// need the ephemeral port Run chose.
func (s *Server) UDPAddrForTest() *net.UDPAddr {
	return s.boundUDPAddr.Load()
}

// TCPAddrForTest is the TCP analog of UDPAddrForTest.
func (s *Server) TCPAddrForTest() *net.TCPAddr {
	return s.boundTCPAddr.Load()
}

func ipToUint32(ip4 net.IP) uint32 {
	return uint32(ip4[0])<<24 | uint32(ip4[1])<<16 | uint32(ip4[2])<<8 | uint32(ip4[3])
}

func errIsChallengeNotFound(err error) bool {
	return errors.Is(err, engine.ErrChallengeNotFound)
}

func isParseError(err error) bool {
	if errors.Is(err, wire.ErrEmptyRequest) || errors.Is(err, wire.ErrBadRequestLength) {
		return true
	}
	var unknownType wire.ErrUnknownRequestType
	return errors.As(err, &unknownType)
}
