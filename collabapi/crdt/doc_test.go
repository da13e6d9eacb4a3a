// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package crdt

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyDocEncodesToTwoZeroBytes(t *testing.T) {
	doc := NewDoc()
	assert.Equal(t, []byte{0x00, 0x00}, doc.EncodeStateAsUpdate())
	assert.True(t, doc.IsEmpty())
}

func TestApplyAndEncodeRoundTrip(t *testing.T) {
	doc := NewDoc()
	require.NoError(t, doc.ApplyUpdate(NewUpdate(1, 0, []byte("a"), []byte("b"))))
	require.NoError(t, doc.ApplyUpdate(NewUpdate(2, 0, []byte("x"))))
	assert.Equal(t, 3, doc.Ops())

	restored := NewDoc()
	require.NoError(t, restored.ApplyUpdate(doc.EncodeStateAsUpdate()))
	if diff := cmp.Diff(doc.EncodeStateAsUpdate(), restored.EncodeStateAsUpdate()); diff != "" {
		t.Fatalf("restored document differs (-want +got):\n%s", diff)
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	update := NewUpdate(7, 0, []byte("one"), []byte("two"))
	doc := NewDoc()
	require.NoError(t, doc.ApplyUpdate(update))
	before := doc.EncodeStateAsUpdate()

	// Re-delivering the same update must not change the document.
	require.NoError(t, doc.ApplyUpdate(update))
	assert.Equal(t, before, doc.EncodeStateAsUpdate())
	assert.Equal(t, 2, doc.Ops())
}

func TestMergeIsCommutative(t *testing.T) {
	u1 := NewUpdate(1, 0, []byte("from-client-1"))
	u2 := NewUpdate(2, 0, []byte("from-client-2"))

	ab := NewDoc()
	require.NoError(t, ab.ApplyUpdate(u1))
	require.NoError(t, ab.ApplyUpdate(u2))

	ba := NewDoc()
	require.NoError(t, ba.ApplyUpdate(u2))
	require.NoError(t, ba.ApplyUpdate(u1))

	if diff := cmp.Diff(ab.EncodeStateAsUpdate(), ba.EncodeStateAsUpdate()); diff != "" {
		t.Fatalf("merge order changed the result (-ab +ba):\n%s", diff)
	}
}

func TestApplyRejectsClockGap(t *testing.T) {
	doc := NewDoc()
	require.NoError(t, doc.ApplyUpdate(NewUpdate(1, 0, []byte("a"))))
	// Client 1 is at clock 1; an update starting at clock 5 has a gap.
	err := doc.ApplyUpdate(NewUpdate(1, 5, []byte("z")))
	assert.Error(t, err)
}

// multiClientUpdate builds an update carrying one section per entry, in
// order, the way a merged multi-client update arrives off the wire.
func multiClientUpdate(sections ...updateSection) []byte {
	enc := &encoder{}
	enc.writeVarUint(uint64(len(sections)))
	for _, sec := range sections {
		enc.writeVarUint(sec.clientID)
		enc.writeVarUint(uint64(len(sec.payloads)))
		enc.writeVarUint(sec.firstClock)
		for _, p := range sec.payloads {
			enc.writeVarBytes(p)
		}
	}
	enc.writeVarUint(0)
	return enc.bytes()
}

func TestRejectedUpdateLeavesDocumentUntouched(t *testing.T) {
	doc := NewDoc()
	require.NoError(t, doc.ApplyUpdate(NewUpdate(1, 0, []byte("a"))))
	before := doc.EncodeStateAsUpdate()

	// The first section is valid on its own; the second has a clock gap.
	// The whole update must be rejected without integrating either.
	spliced := multiClientUpdate(
		updateSection{clientID: 1, firstClock: 1, payloads: [][]byte{[]byte("smuggled")}},
		updateSection{clientID: 2, firstClock: 5, payloads: [][]byte{[]byte("gap")}},
	)
	err := doc.ApplyUpdate(spliced)
	require.Error(t, err)

	assert.Equal(t, before, doc.EncodeStateAsUpdate())
	assert.Equal(t, 1, doc.Ops())

	// Nothing from the rejected update surfaces in a diff either.
	sv := NewDoc()
	require.NoError(t, sv.ApplyUpdate(before))
	diff, err := doc.DiffUpdate(sv.EncodeStateVector())
	require.NoError(t, err)
	empty := NewDoc()
	require.NoError(t, empty.ApplyUpdate(diff))
	assert.True(t, empty.IsEmpty())
}

func TestMultiClientUpdateAppliesAtomically(t *testing.T) {
	doc := NewDoc()
	update := multiClientUpdate(
		updateSection{clientID: 1, firstClock: 0, payloads: [][]byte{[]byte("a"), []byte("b")}},
		updateSection{clientID: 2, firstClock: 0, payloads: [][]byte{[]byte("x")}},
	)
	require.NoError(t, doc.ApplyUpdate(update))
	assert.Equal(t, 3, doc.Ops())
}

func TestApplyRejectsTruncatedUpdate(t *testing.T) {
	update := NewUpdate(1, 0, []byte("payload"))
	for _, n := range []int{1, 3, len(update) - 1} {
		err := NewDoc().ApplyUpdate(update[:n])
		assert.Error(t, err, "truncated to %d bytes", n)
	}
}

func TestDiffUpdateReturnsOnlyMissingOps(t *testing.T) {
	server := NewDoc()
	require.NoError(t, server.ApplyUpdate(NewUpdate(1, 0, []byte("a"), []byte("b"), []byte("c"))))
	require.NoError(t, server.ApplyUpdate(NewUpdate(2, 0, []byte("x"))))

	// A client that has seen client 1 up to clock 2 but nothing of client 2.
	client := NewDoc()
	require.NoError(t, client.ApplyUpdate(NewUpdate(1, 0, []byte("a"), []byte("b"))))

	diff, err := server.DiffUpdate(client.EncodeStateVector())
	require.NoError(t, err)
	require.NoError(t, client.ApplyUpdate(diff))

	if d := cmp.Diff(server.EncodeStateAsUpdate(), client.EncodeStateAsUpdate()); d != "" {
		t.Fatalf("client did not converge (-server +client):\n%s", d)
	}
}

func TestDiffUpdateAgainstEmptyVectorIsFullState(t *testing.T) {
	doc := NewDoc()
	require.NoError(t, doc.ApplyUpdate(NewUpdate(3, 0, []byte("payload"))))

	diff, err := doc.DiffUpdate(NewDoc().EncodeStateVector())
	require.NoError(t, err)
	assert.Equal(t, doc.EncodeStateAsUpdate(), diff)
}

func TestStateVectorTracksNextClock(t *testing.T) {
	doc := NewDoc()
	require.NoError(t, doc.ApplyUpdate(NewUpdate(9, 0, []byte("a"), []byte("b"))))
	sv, err := decodeStateVector(doc.EncodeStateVector())
	require.NoError(t, err)
	assert.Equal(t, map[uint64]uint64{9: 2}, sv)
}
