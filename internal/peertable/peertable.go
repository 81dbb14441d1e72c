// Package peertable implements the set of known peers (spec §3, §4.5):
// keyed by peer id (self-declared display name), storing MAC, last-seen,
// next outgoing sequence number, and at most one outstanding expected-ack.
//
// Every shared map in the teacher is guarded by its own embedded mutex
// (e.g. client2/arq.go's ARQ.lock sync.RWMutex over surbIDMap); Table
// follows the same shape. The expected-ack slot is a pointer, not a map
// key's presence, matching spec §9's "tagged record with explicit optional
// fields ... absence is represented by a sum-type/optional, not by key
// presence."
package peertable

import (
	"errors"
	"net"
	"sort"
	"sync"
	"time"
)

// AckKind distinguishes a regular-message ack wait from a file-transfer ack
// wait; the two use different backoff bases (spec §4.4) and different
// failure semantics (spec §4.4: regular failure removes the peer, file
// failure only clears the slot).
type AckKind uint8

const (
	AckKindRegular AckKind = iota
	AckKindFile
)

// ExpectedAck is the single-slot per-peer record of an outstanding
// acknowledgement (spec §3, GLOSSARY).
type ExpectedAck struct {
	MsgID    uint32
	Kind     AckKind
	Attempt  int
	Deadline time.Time
}

// Peer is one known participant (spec §3).
type Peer struct {
	ID          string
	MAC         net.HardwareAddr
	LastSeen    time.Time
	NextSeq     uint32
	ExpectedAck *ExpectedAck
}

// ErrUnknownPeer is returned when an operation references a peer id the
// table does not know about.
var ErrUnknownPeer = errors.New("peertable: unknown peer")

// ErrNoMAC is returned when a send is attempted against a peer whose MAC
// has not yet been observed.
var ErrNoMAC = errors.New("peertable: peer has no known MAC")

// Table is the mutex-protected set of known peers. The zero value is not
// ready for use; call New.
type Table struct {
	mu    sync.Mutex
	cond  *sync.Cond
	peers map[string]*Peer

	onNewPeer func(p *Peer)
}

// New creates an empty Table. onNewPeer, if non-nil, is invoked (outside
// the table's lock) whenever a peer id is seen for the first time —
// grounded on the Python original's "{name} has joined the network" print
// in update_peer, generalized here into a hook so the CLI/bridge can render
// it instead of the table itself doing I/O under lock.
func New(onNewPeer func(p *Peer)) *Table {
	t := &Table{
		peers:     make(map[string]*Peer),
		onNewPeer: onNewPeer,
	}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Mutex exposes the table's lock so callers that need compound read-modify
// operations spanning peertable and another subsystem (notably
// internal/reliability's condition variable, bound to this same mutex per
// spec §9) can take it directly.
func (t *Table) Mutex() *sync.Mutex { return &t.mu }

// Cond returns the condition variable bound to the table's mutex, signalled
// whenever any peer's ExpectedAck slot is set or cleared. This is spec §9's
// "timer event variable ... a condition variable bound to the state mutex."
func (t *Table) Cond() *sync.Cond { return t.cond }

// Upsert merges fields into the existing peer record for id, or creates a
// new one. mac and lastSeen are applied when non-nil/non-zero. name is not
// stored separately: a peer's display name is its id.
func (t *Table) Upsert(id string, name string, mac net.HardwareAddr, lastSeen time.Time) *Peer {
	t.mu.Lock()
	p, existed := t.peers[id]
	if !existed {
		p = &Peer{ID: id}
		t.peers[id] = p
	}
	if name != "" {
		p.ID = id
	}
	if mac != nil {
		p.MAC = mac
	}
	if !lastSeen.IsZero() {
		p.LastSeen = lastSeen
	}
	t.mu.Unlock()

	if !existed && t.onNewPeer != nil {
		t.onNewPeer(p)
	}
	return p
}

// Remove deletes the peer record for id, if present.
func (t *Table) Remove(id string) {
	t.mu.Lock()
	delete(t.peers, id)
	t.mu.Unlock()
}

// Rekey moves the record at oldID to newID, used by RENAME handling (spec
// §4.3). A no-op if oldID is unknown.
func (t *Table) Rekey(oldID, newID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[oldID]
	if !ok {
		return
	}
	delete(t.peers, oldID)
	p.ID = newID
	t.peers[newID] = p
}

// Get returns a copy of the peer record for id, and whether it exists.
func (t *Table) Get(id string) (Peer, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[id]
	if !ok {
		return Peer{}, false
	}
	return *p, true
}

// LookupByMAC does a linear scan for the peer whose most recently observed
// MAC matches addr, returning at most one id (spec §4.5). Small peer counts
// on a single LAN broadcast domain make an index unnecessary (see
// DESIGN.md).
func (t *Table) LookupByMAC(addr net.HardwareAddr) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, p := range t.peers {
		if equalMAC(p.MAC, addr) {
			return id, true
		}
	}
	return "", false
}

// NextMessageSeq returns and increments the outgoing sequence number
// recorded for peer id.
func (t *Table) NextMessageSeq(id string) (uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[id]
	if !ok {
		return 0, ErrUnknownPeer
	}
	seq := p.NextSeq
	p.NextSeq++
	return seq, nil
}

// InstallExpectedAck arms the expected-ack slot for id, block-replacing any
// existing slot (spec §3 invariant: at most one expected-ack per peer).
// Reports ErrUnknownPeer if id is not known.
func (t *Table) InstallExpectedAck(id string, ack ExpectedAck) error {
	t.mu.Lock()
	p, ok := t.peers[id]
	if !ok {
		t.mu.Unlock()
		return ErrUnknownPeer
	}
	p.ExpectedAck = &ack
	t.mu.Unlock()
	t.cond.Broadcast()
	return nil
}

// ClearExpectedAck removes the expected-ack slot for id if its MsgID
// matches. Reports whether a slot was cleared.
func (t *Table) ClearExpectedAck(id string, msgID uint32) bool {
	t.mu.Lock()
	p, ok := t.peers[id]
	cleared := false
	if ok && p.ExpectedAck != nil && p.ExpectedAck.MsgID == msgID {
		p.ExpectedAck = nil
		cleared = true
	}
	t.mu.Unlock()
	if cleared {
		t.cond.Broadcast()
	}
	return cleared
}

// AnyExpectedAck reports whether any peer currently holds an expected-ack
// slot — the predicate the reliability engine's condition variable waits
// on (spec §5, §9).
func (t *Table) AnyExpectedAck() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.peers {
		if p.ExpectedAck != nil {
			return true
		}
	}
	return false
}

// ExpiredAcks returns, by peer id, every expected-ack whose deadline is at
// or before now. Used by the reliability engine's timer worker.
func (t *Table) ExpiredAcks(now time.Time) map[string]ExpectedAck {
	t.mu.Lock()
	defer t.mu.Unlock()
	due := make(map[string]ExpectedAck)
	for id, p := range t.peers {
		if p.ExpectedAck != nil && !now.Before(p.ExpectedAck.Deadline) {
			due[id] = *p.ExpectedAck
		}
	}
	return due
}

// AdvanceAck updates the attempt counter and deadline for the given peer's
// expected-ack slot, if it still matches msgID. Reports whether it was
// updated.
func (t *Table) AdvanceAck(id string, msgID uint32, attempt int, deadline time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[id]
	if !ok || p.ExpectedAck == nil || p.ExpectedAck.MsgID != msgID {
		return false
	}
	p.ExpectedAck.Attempt = attempt
	p.ExpectedAck.Deadline = deadline
	return true
}

// ClearExpectedAckSlot clears id's expected-ack slot unconditionally
// (used on ack-exhaustion for file transfers, spec §4.4, which keeps the
// peer but clears the slot).
func (t *Table) ClearExpectedAckSlot(id string) {
	t.mu.Lock()
	p, ok := t.peers[id]
	if ok {
		p.ExpectedAck = nil
	}
	t.mu.Unlock()
	t.cond.Broadcast()
}

// Snapshot returns every known peer, sorted by id, for read-only display
// (operator CLI `ls`, bridge.KnownPeers).
func (t *Table) Snapshot() []Peer {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Peer, 0, len(t.peers))
	for _, p := range t.peers {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func equalMAC(a, b net.HardwareAddr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
