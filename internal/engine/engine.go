// Package engine implements the per-server challenge engine: challenge
// issuance, solution verification, and whitelist mutation (spec.md §4.3).
package engine

import (
	"crypto/rand"
	"crypto/sha256"
	"sync"
	"time"

	"github.com/erigontech/erigon-lib/log/v3"

	"github.com/biryukovmaxim/ddos-protection-task/internal/hashcash"
	"github.com/biryukovmaxim/ddos-protection-task/internal/socketv4"
	"github.com/biryukovmaxim/ddos-protection-task/internal/xdpmap"
)

// pendingTTL bounds how long an unconsulted challenge lives before the
// sweep reclaims it. Resolves the open question in spec.md §9: the
// original leaks pending entries forever; here they are removed on
// consult (success or failure) AND aged out regardless.
const pendingTTL = 60 * time.Second

const sweepInterval = 10 * time.Second

type pendingEntry struct {
	challenge [8]byte
	createdAt time.Time
}

// Engine holds the difficulty, the per-client pending-challenge table, and
// a handle to the shared whitelist map. The pending table tolerates
// concurrent readers and writers even though today's UDP loop is
// single-threaded (spec.md §3).
type Engine struct {
	difficulty uint32
	whitelist  xdpmap.Map
	logger     log.Logger

	pending sync.Map // socketv4.SocketV4 -> pendingEntry

	stop chan struct{}
	wg   sync.WaitGroup
}

// New constructs an Engine with the given difficulty and whitelist map,
// and starts its background pending-entry sweep.
func New(difficulty uint32, whitelist xdpmap.Map, logger log.Logger) *Engine {
	e := &Engine{
		difficulty: difficulty,
		whitelist:  whitelist,
		logger:     logger,
		stop:       make(chan struct{}),
	}
	e.wg.Add(1)
	go e.sweepLoop()
	return e
}

// Close stops the background sweep. It does not close the whitelist map,
// which outlives individual engines (it is shared with the kernel).
func (e *Engine) Close() {
	close(e.stop)
	e.wg.Wait()
}

func (e *Engine) sweepLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			e.sweepExpired()
		}
	}
}

func (e *Engine) sweepExpired() {
	now := time.Now()
	e.pending.Range(func(key, value any) bool {
		entry := value.(pendingEntry)
		if now.Sub(entry.createdAt) > pendingTTL {
			e.pending.Delete(key)
		}
		return true
	})
}

// CreateChallenge generates a fresh 8-byte challenge from a CSPRNG and
// (over)writes pending[uk]. Matches the "overwrite on duplicate" rule in
// spec.md §3.
func (e *Engine) CreateChallenge(uk socketv4.SocketV4) ([8]byte, error) {
	var challenge [8]byte
	if _, err := rand.Read(challenge[:]); err != nil {
		return challenge, err
	}
	e.pending.Store(uk, pendingEntry{challenge: challenge, createdAt: time.Now()})
	e.logger.Debug("issued challenge", "peer", uk, "challenge", challenge)
	return challenge, nil
}

// CheckSolution verifies a (hash, nonce) pair against the challenge
// previously issued to uk. On success it inserts uk into the whitelist
// (spec.md I1) and consumes the pending entry; on failure the entry is
// also consumed (spec.md §9: never left to leak). Returns
// ErrChallengeNotFound if uk never requested a challenge (or its entry
// already aged out).
func (e *Engine) CheckSolution(uk socketv4.SocketV4, hash [32]byte, nonce uint64) (bool, error) {
	value, ok := e.pending.Load(uk)
	if !ok {
		return false, ErrChallengeNotFound
	}
	entry := value.(pendingEntry)
	e.pending.Delete(uk)

	prefix := uk.PoWPrefix(entry.challenge)
	hc := hashcash.New(sha256.New, prefix)
	success := hc.Verify(hash[:], nonce, e.difficulty)
	if !success {
		return false, nil
	}

	if err := e.whitelist.Insert(uk); err != nil {
		return false, err
	}
	e.logger.Info("whitelisted peer", "peer", uk)
	return true, nil
}
