// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package crdt

import (
	"fmt"
)

// Binary frame layout, following the y-websocket shape: an outer message
// type, then for sync messages an inner step, then a length-prefixed
// payload.
const (
	MsgSync      = 0
	MsgAwareness = 1
)

const (
	// SyncStep1 carries a state vector; the receiver replies with the diff
	// the sender is missing. Always admitted, even for viewers.
	SyncStep1 = 0
	// SyncStep2 carries the update computed in reply to a step 1.
	SyncStep2 = 1
	// SyncUpdate carries an incremental update produced by local edits.
	SyncUpdate = 2
)

// Message is a decoded inbound binary frame.
type Message struct {
	Type    uint64
	Step    uint64 // only meaningful when Type == MsgSync
	Payload []byte
}

// DecodeMessage parses a binary frame. Awareness payloads are returned
// as-is after the type marker; sync payloads are length-prefixed.
func DecodeMessage(frame []byte) (*Message, error) {
	dec := &decoder{buf: frame}
	msgType, err := dec.readVarUint()
	if err != nil {
		return nil, fmt.Errorf("crdt: message type: %w", err)
	}
	switch msgType {
	case MsgSync:
		step, err := dec.readVarUint()
		if err != nil {
			return nil, fmt.Errorf("crdt: sync step: %w", err)
		}
		switch step {
		case SyncStep1, SyncStep2, SyncUpdate:
		default:
			return nil, fmt.Errorf("crdt: unknown sync step %d", step)
		}
		payload, err := dec.readVarBytes()
		if err != nil {
			return nil, fmt.Errorf("crdt: sync payload: %w", err)
		}
		return &Message{Type: MsgSync, Step: step, Payload: payload}, nil
	case MsgAwareness:
		return &Message{Type: MsgAwareness, Payload: frame[dec.off:]}, nil
	default:
		return nil, fmt.Errorf("crdt: unknown message type %d", msgType)
	}
}

// EncodeSyncStep1 frames a state vector request.
func EncodeSyncStep1(stateVector []byte) []byte {
	return encodeSync(SyncStep1, stateVector)
}

// EncodeSyncStep2 frames the reply to a step 1.
func EncodeSyncStep2(update []byte) []byte {
	return encodeSync(SyncStep2, update)
}

// EncodeSyncUpdate frames an incremental update.
func EncodeSyncUpdate(update []byte) []byte {
	return encodeSync(SyncUpdate, update)
}

// EncodeAwareness frames an awareness payload for relay.
func EncodeAwareness(payload []byte) []byte {
	enc := &encoder{}
	enc.writeVarUint(MsgAwareness)
	enc.buf = append(enc.buf, payload...)
	return enc.bytes()
}

func encodeSync(step uint64, payload []byte) []byte {
	enc := &encoder{}
	enc.writeVarUint(MsgSync)
	enc.writeVarUint(step)
	enc.writeVarBytes(payload)
	return enc.bytes()
}
