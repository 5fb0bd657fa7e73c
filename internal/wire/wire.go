// Package wire implements the fixed-offset, big-endian binary codec for
// the four UDP challenge-protocol frames described in spec.md §4.2.
//
// Type bytes are sparse (0x00-0x03) to leave room for future frames, per
// spec.md §9.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/biryukovmaxim/ddos-protection-task/internal/socketv4"
)

// Frame type bytes. Canonical per spec.md §4.2 (ChallengeRequest=0x00,
// SendChallenge=0x01, SolutionRequest=0x02, Confirmation=0x03) — not the
// 0x01/0x02 revision found in one branch of the original source.
const (
	TypeChallengeRequest byte = 0x00
	TypeSendChallenge    byte = 0x01
	TypeSolutionRequest  byte = 0x02
	TypeConfirmation     byte = 0x03
)

const (
	lenChallengeRequest = 1
	lenSendChallenge    = 15
	lenSolutionRequest  = 41
	lenConfirmation     = 2

	hashLen      = 32
	challengeLen = 8
)

// Request is the set of frames a client may send.
type Request interface {
	isRequest()
}

// ChallengeRequest asks the engine to mint a new challenge bound to the
// sender's observed (IP, port).
type ChallengeRequest struct{}

func (ChallengeRequest) isRequest() {}

// SolutionRequest submits a candidate Hashcash solution for the challenge
// previously issued to the sender.
type SolutionRequest struct {
	Hash  [hashLen]byte
	Nonce uint64
}

func (SolutionRequest) isRequest() {}

// Response is the set of frames a server may send.
type Response interface {
	isResponse()
}

// SendChallenge carries the freshly minted challenge plus the uniq-key
// (the sender's own IPv4 socket, as observed by the server) the client
// must reuse when later opening TCP.
type SendChallenge struct {
	Challenge [challengeLen]byte
	UniqKey   socketv4.SocketV4
}

func (SendChallenge) isResponse() {}

// Confirmation reports whether a submitted solution verified.
type Confirmation struct {
	Success bool
}

func (Confirmation) isResponse() {}

// ErrEmptyRequest is returned when decoding a zero-length datagram.
var ErrEmptyRequest = fmt.Errorf("wire: empty request")

// ErrEmptyResponse is returned when decoding a zero-length datagram.
var ErrEmptyResponse = fmt.Errorf("wire: empty response")

// ErrUnknownRequestType is returned for a type byte outside the known set.
type ErrUnknownRequestType struct{ Type byte }

func (e ErrUnknownRequestType) Error() string {
	return fmt.Sprintf("wire: unknown request type 0x%02x", e.Type)
}

// ErrUnknownResponseType is returned for a type byte outside the known set.
type ErrUnknownResponseType struct{ Type byte }

func (e ErrUnknownResponseType) Error() string {
	return fmt.Sprintf("wire: unknown response type 0x%02x", e.Type)
}

// ErrBadRequestLength is returned when a recognised request type's payload
// is shorter than required. Trailing bytes are NOT an error (spec.md §4.2).
var ErrBadRequestLength = fmt.Errorf("wire: request too short")

// ErrBadResponseLength is returned when a recognised response type's
// payload is shorter than required.
var ErrBadResponseLength = fmt.Errorf("wire: response too short")

// DecodeRequest parses a datagram into a Request. It rejects empty
// datagrams, unknown type bytes, and payloads shorter than the type
// requires; it never panics on attacker-controlled input (spec.md P6).
func DecodeRequest(b []byte) (Request, error) {
	if len(b) == 0 {
		return nil, ErrEmptyRequest
	}
	switch b[0] {
	case TypeChallengeRequest:
		return ChallengeRequest{}, nil
	case TypeSolutionRequest:
		if len(b) < lenSolutionRequest {
			return nil, ErrBadRequestLength
		}
		var req SolutionRequest
		copy(req.Hash[:], b[1:33])
		req.Nonce = binary.BigEndian.Uint64(b[33:41])
		return req, nil
	default:
		return nil, ErrUnknownRequestType{Type: b[0]}
	}
}

// EncodeRequest serialises req into its canonical-length wire form.
func EncodeRequest(req Request) []byte {
	switch r := req.(type) {
	case ChallengeRequest:
		return []byte{TypeChallengeRequest}
	case SolutionRequest:
		buf := make([]byte, lenSolutionRequest)
		buf[0] = TypeSolutionRequest
		copy(buf[1:33], r.Hash[:])
		binary.BigEndian.PutUint64(buf[33:41], r.Nonce)
		return buf
	default:
		panic(fmt.Sprintf("wire: unencodable request type %T", req))
	}
}

// DecodeResponse parses a datagram into a Response. Extra trailing bytes
// on SendChallenge are ignored per spec.md §4.2.
func DecodeResponse(b []byte) (Response, error) {
	if len(b) == 0 {
		return nil, ErrEmptyResponse
	}
	switch b[0] {
	case TypeSendChallenge:
		if len(b) < lenSendChallenge {
			return nil, ErrBadResponseLength
		}
		address := binary.BigEndian.Uint32(b[1:5])
		port := binary.BigEndian.Uint16(b[5:7])
		var resp SendChallenge
		copy(resp.Challenge[:], b[7:15])
		resp.UniqKey = socketv4.SocketV4{Address: address, Port: port}
		return resp, nil
	case TypeConfirmation:
		if len(b) < lenConfirmation {
			return nil, ErrBadResponseLength
		}
		return Confirmation{Success: b[1] != 0}, nil
	default:
		return nil, ErrUnknownResponseType{Type: b[0]}
	}
}

// EncodeResponse serialises resp into its canonical-length wire form.
func EncodeResponse(resp Response) []byte {
	switch r := resp.(type) {
	case SendChallenge:
		buf := make([]byte, lenSendChallenge)
		buf[0] = TypeSendChallenge
		octets := r.UniqKey.Octets()
		copy(buf[1:5], octets[:])
		portBytes := r.UniqKey.PortBytes()
		copy(buf[5:7], portBytes[:])
		copy(buf[7:15], r.Challenge[:])
		return buf
	case Confirmation:
		buf := make([]byte, lenConfirmation)
		buf[0] = TypeConfirmation
		if r.Success {
			buf[1] = 1
		}
		return buf
	default:
		panic(fmt.Sprintf("wire: unencodable response type %T", resp))
	}
}
