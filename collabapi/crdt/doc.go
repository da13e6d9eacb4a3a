// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

// Package crdt implements the op-log CRDT document hosted by collab rooms.
//
// A document is a set of operations, each identified by (clientID, clock).
// Clocks are contiguous per client starting at zero, so document state is
// fully described by a state vector mapping each client to the next clock it
// will produce. Merging is a set union: an update re-delivering operations
// the document already holds is a no-op, which makes merge idempotent and
// commutative for updates produced by distinct clients.
package crdt

import (
	"fmt"
	"sort"
)

// Doc is a CRDT document replica. It is not safe for concurrent use; rooms
// serialize all access through their actor.
type Doc struct {
	ops map[uint64][][]byte
}

// NewDoc returns an empty document. Its encoded state is the two-byte
// sentinel 0x00 0x00.
func NewDoc() *Doc {
	return &Doc{ops: make(map[uint64][][]byte)}
}

// updateSection is one client's run of operations within a decoded update.
type updateSection struct {
	clientID   uint64
	firstClock uint64
	payloads   [][]byte
}

// decodeUpdate parses an encoded update in full without touching any
// document state.
func decodeUpdate(update []byte) ([]updateSection, error) {
	dec := &decoder{buf: update}
	numClients, err := dec.readVarUint()
	if err != nil {
		return nil, fmt.Errorf("crdt: update header: %w", err)
	}
	sections := make([]updateSection, 0, numClients)
	for i := uint64(0); i < numClients; i++ {
		clientID, err := dec.readVarUint()
		if err != nil {
			return nil, fmt.Errorf("crdt: client id: %w", err)
		}
		numOps, err := dec.readVarUint()
		if err != nil {
			return nil, fmt.Errorf("crdt: op count for client %d: %w", clientID, err)
		}
		firstClock, err := dec.readVarUint()
		if err != nil {
			return nil, fmt.Errorf("crdt: first clock for client %d: %w", clientID, err)
		}
		payloads := make([][]byte, 0, numOps)
		for j := uint64(0); j < numOps; j++ {
			payload, err := dec.readVarBytes()
			if err != nil {
				return nil, fmt.Errorf("crdt: op payload for client %d: %w", clientID, err)
			}
			payloads = append(payloads, payload)
		}
		sections = append(sections, updateSection{clientID: clientID, firstClock: firstClock, payloads: payloads})
	}
	// Reserved trailing section marker.
	if _, err := dec.readVarUint(); err != nil {
		return nil, fmt.Errorf("crdt: trailing marker: %w", err)
	}
	return sections, nil
}

// ApplyUpdate merges the operations carried by the encoded update into the
// document. Operations already present are skipped. An update whose first
// clock for some client lies beyond that client's next clock cannot be
// integrated and fails the whole apply. The update is decoded and checked
// in full before any operation is integrated, so a rejected update leaves
// the document untouched.
func (d *Doc) ApplyUpdate(update []byte) error {
	sections, err := decodeUpdate(update)
	if err != nil {
		return err
	}
	// Validate clock continuity across every section first, tracking the
	// would-be next clocks as sections for the same client stack up.
	next := make(map[uint64]uint64, len(sections))
	for _, sec := range sections {
		n, ok := next[sec.clientID]
		if !ok {
			n = uint64(len(d.ops[sec.clientID]))
		}
		if sec.firstClock > n {
			return fmt.Errorf("crdt: update for client %d starts at clock %d but document is at %d", sec.clientID, sec.firstClock, n)
		}
		if end := sec.firstClock + uint64(len(sec.payloads)); end > n {
			n = end
		}
		next[sec.clientID] = n
	}
	for _, sec := range sections {
		n := uint64(len(d.ops[sec.clientID]))
		for j, payload := range sec.payloads {
			clock := sec.firstClock + uint64(j)
			if clock < n {
				continue // already integrated
			}
			buf := make([]byte, len(payload))
			copy(buf, payload)
			d.ops[sec.clientID] = append(d.ops[sec.clientID], buf)
			n = clock + 1
		}
	}
	return nil
}

// EncodeStateAsUpdate encodes the full document as a single update that
// reconstructs it when applied to a fresh document.
func (d *Doc) EncodeStateAsUpdate() []byte {
	return d.encodeSince(nil)
}

// EncodeStateVector returns the document's state vector: for every client,
// the next clock this document expects.
func (d *Doc) EncodeStateVector() []byte {
	enc := &encoder{}
	enc.writeVarUint(uint64(len(d.ops)))
	for _, clientID := range d.clientIDs() {
		enc.writeVarUint(clientID)
		enc.writeVarUint(uint64(len(d.ops[clientID])))
	}
	return enc.bytes()
}

// DiffUpdate encodes the operations the holder of the given state vector is
// missing.
func (d *Doc) DiffUpdate(stateVector []byte) ([]byte, error) {
	sv, err := decodeStateVector(stateVector)
	if err != nil {
		return nil, err
	}
	return d.encodeSince(sv), nil
}

// IsEmpty reports whether the document holds no operations.
func (d *Doc) IsEmpty() bool {
	return len(d.ops) == 0
}

// Ops returns the number of operations held across all clients.
func (d *Doc) Ops() int {
	n := 0
	for _, ops := range d.ops {
		n += len(ops)
	}
	return n
}

func (d *Doc) clientIDs() []uint64 {
	ids := make([]uint64, 0, len(d.ops))
	for id := range d.ops {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// encodeSince encodes every op with clock >= since[clientID]. A nil map
// encodes everything.
func (d *Doc) encodeSince(since map[uint64]uint64) []byte {
	var clients []uint64
	for _, clientID := range d.clientIDs() {
		if int(since[clientID]) < len(d.ops[clientID]) {
			clients = append(clients, clientID)
		}
	}
	enc := &encoder{}
	enc.writeVarUint(uint64(len(clients)))
	for _, clientID := range clients {
		from := since[clientID]
		ops := d.ops[clientID][from:]
		enc.writeVarUint(clientID)
		enc.writeVarUint(uint64(len(ops)))
		enc.writeVarUint(from)
		for _, payload := range ops {
			enc.writeVarBytes(payload)
		}
	}
	enc.writeVarUint(0)
	return enc.bytes()
}

func decodeStateVector(b []byte) (map[uint64]uint64, error) {
	dec := &decoder{buf: b}
	numClients, err := dec.readVarUint()
	if err != nil {
		return nil, fmt.Errorf("crdt: state vector header: %w", err)
	}
	sv := make(map[uint64]uint64, numClients)
	for i := uint64(0); i < numClients; i++ {
		clientID, err := dec.readVarUint()
		if err != nil {
			return nil, fmt.Errorf("crdt: state vector client: %w", err)
		}
		clock, err := dec.readVarUint()
		if err != nil {
			return nil, fmt.Errorf("crdt: state vector clock: %w", err)
		}
		sv[clientID] = clock
	}
	return sv, nil
}

// NewUpdate builds an update carrying ops for a single client starting at
// the given clock. Test and client helper; the server treats updates from
// the wire as opaque.
func NewUpdate(clientID, firstClock uint64, payloads ...[]byte) []byte {
	enc := &encoder{}
	enc.writeVarUint(1)
	enc.writeVarUint(clientID)
	enc.writeVarUint(uint64(len(payloads)))
	enc.writeVarUint(firstClock)
	for _, p := range payloads {
		enc.writeVarBytes(p)
	}
	enc.writeVarUint(0)
	return enc.bytes()
}
