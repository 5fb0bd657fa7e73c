// Package udpproc adapts a raw UDP datagram to the challenge engine: it
// decodes a request, dispatches it, and produces a response frame, or
// signals that the datagram should be dropped silently (spec.md §4.4).
package udpproc

import (
	"errors"

	"github.com/biryukovmaxim/ddos-protection-task/internal/engine"
	"github.com/biryukovmaxim/ddos-protection-task/internal/socketv4"
	"github.com/biryukovmaxim/ddos-protection-task/internal/wire"
)

// Engine is the subset of engine.Engine's surface the processor needs,
// kept as an interface so tests can substitute a stub without a real
// whitelist map.
type Engine interface {
	CreateChallenge(uk socketv4.SocketV4) ([8]byte, error)
	CheckSolution(uk socketv4.SocketV4, hash [32]byte, nonce uint64) (bool, error)
}

// Processor is stateless: all state lives in the Engine it wraps.
type Processor struct {
	engine Engine
}

// New returns a Processor dispatching to e.
func New(e Engine) *Processor {
	return &Processor{engine: e}
}

// Process parses datagram as a request from peer and returns the
// encoded response frame to send back. A nil slice with a non-nil error
// means the datagram must be dropped without any response — malformed
// traffic must never amplify (spec.md §4.4, §7).
func (p *Processor) Process(datagram []byte, peer socketv4.SocketV4) ([]byte, error) {
	req, err := wire.DecodeRequest(datagram)
	if err != nil {
		return nil, err
	}

	switch r := req.(type) {
	case wire.ChallengeRequest:
		challenge, err := p.engine.CreateChallenge(peer)
		if err != nil {
			return nil, err
		}
		return wire.EncodeResponse(wire.SendChallenge{Challenge: challenge, UniqKey: peer}), nil

	case wire.SolutionRequest:
		ok, err := p.engine.CheckSolution(peer, r.Hash, r.Nonce)
		if errors.Is(err, engine.ErrChallengeNotFound) {
			return wire.EncodeResponse(wire.Confirmation{Success: false}), nil
		}
		if err != nil {
			return nil, err
		}
		return wire.EncodeResponse(wire.Confirmation{Success: ok}), nil

	default:
		// Unreachable: wire.DecodeRequest only ever returns the two
		// variants switched on above.
		return nil, errors.New("udpproc: unexpected request variant")
	}
}
