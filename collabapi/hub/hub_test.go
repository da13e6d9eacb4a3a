// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package hub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperclast/pagesync/collabapi/types"
)

type fakeSession struct {
	id       string
	capacity int
	frames   [][]byte
	controls []types.ControlMessage
	kicked   string
}

func (s *fakeSession) ID() string { return s.id }

func (s *fakeSession) QueueFrame(frame []byte) bool {
	if len(s.frames) >= s.capacity {
		return false
	}
	s.frames = append(s.frames, frame)
	return true
}

func (s *fakeSession) QueueControl(msg types.ControlMessage) bool {
	if len(s.controls) >= s.capacity {
		return false
	}
	s.controls = append(s.controls, msg)
	return true
}

func (s *fakeSession) Kick(reason string) { s.kicked = reason }

func newFakeSession(id string) *fakeSession {
	return &fakeSession{id: id, capacity: 16}
}

type recordingBackplane struct {
	frames   []Envelope
	controls []Envelope
}

func (b *recordingBackplane) PublishFrame(_ context.Context, roomID string, frame []byte) error {
	b.frames = append(b.frames, Envelope{Kind: KindFrame, RoomID: roomID, Payload: frame})
	return nil
}

func (b *recordingBackplane) PublishControl(_ context.Context, roomID string, msg types.ControlMessage) error {
	b.controls = append(b.controls, Envelope{Kind: KindControl, RoomID: roomID})
	return nil
}

func (b *recordingBackplane) Close() error { return nil }

func TestBroadcastSkipsOriginatorAndPublishes(t *testing.T) {
	backplane := &recordingBackplane{}
	h := NewHub(backplane)

	alice := newFakeSession("alice")
	bob := newFakeSession("bob")
	carol := newFakeSession("carol")
	h.Join("page_a", alice)
	h.Join("page_a", bob)
	h.Join("page_b", carol)

	h.Broadcast(context.Background(), "page_a", []byte{1, 2, 3}, "alice")

	assert.Empty(t, alice.frames, "originator must not receive its own frame")
	require.Len(t, bob.frames, 1)
	assert.Equal(t, []byte{1, 2, 3}, bob.frames[0])
	assert.Empty(t, carol.frames, "frame must stay in its room")
	require.Len(t, backplane.frames, 1)
	assert.Equal(t, "page_a", backplane.frames[0].RoomID)
}

func TestBroadcastLocalDoesNotRepublish(t *testing.T) {
	backplane := &recordingBackplane{}
	h := NewHub(backplane)

	bob := newFakeSession("bob")
	h.Join("page_a", bob)

	h.BroadcastLocal("page_a", []byte{9}, "")

	require.Len(t, bob.frames, 1)
	assert.Empty(t, backplane.frames, "backplane delivery must not echo back out")
}

func TestSendControlReachesAllSessions(t *testing.T) {
	backplane := &recordingBackplane{}
	h := NewHub(backplane)

	alice := newFakeSession("alice")
	bob := newFakeSession("bob")
	h.Join("page_a", alice)
	h.Join("page_a", bob)

	h.SendControl(context.Background(), "page_a", types.ControlMessage{
		Code:   types.ControlAccessRevoked,
		UserID: 42,
	})

	require.Len(t, alice.controls, 1)
	require.Len(t, bob.controls, 1)
	assert.Equal(t, types.ControlAccessRevoked, alice.controls[0].Code)
	require.Len(t, backplane.controls, 1)
}

func TestSlowConsumerIsKicked(t *testing.T) {
	h := NewHub(NoBackplane{})

	slow := &fakeSession{id: "slow", capacity: 0}
	fast := newFakeSession("fast")
	h.Join("page_a", slow)
	h.Join("page_a", fast)

	h.BroadcastLocal("page_a", []byte{1}, "")

	assert.Equal(t, "slow consumer", slow.kicked)
	assert.Empty(t, fast.kicked)
	require.Len(t, fast.frames, 1)
	assert.Equal(t, 1, h.SessionCount("page_a"), "kicked session must be detached")
}

func TestLeaveRemovesEmptyRooms(t *testing.T) {
	h := NewHub(NoBackplane{})
	alice := newFakeSession("alice")
	h.Join("page_a", alice)
	require.Equal(t, []string{"page_a"}, h.RoomIDs())

	h.Leave("page_a", "alice")
	h.Leave("page_a", "alice") // repeat is a no-op
	assert.Empty(t, h.RoomIDs())
}

func TestEnvelopeRoundTrip(t *testing.T) {
	in := Envelope{
		Origin:  "worker-1",
		Kind:    KindFrame,
		RoomID:  "page_abc",
		Payload: []byte{0x00, 0x01, 0xff},
	}
	out, err := DecodeEnvelope(EncodeEnvelope(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	_, err := DecodeEnvelope([]byte("not json"))
	assert.Error(t, err)

	_, err = DecodeEnvelope(EncodeEnvelope(Envelope{Kind: "bogus", RoomID: "page_a"}))
	assert.Error(t, err)

	_, err = DecodeEnvelope(EncodeEnvelope(Envelope{Kind: KindFrame}))
	assert.Error(t, err, "missing room id")
}

func TestRedisChannelNames(t *testing.T) {
	assert.Equal(t, "pagesync.room.page_abc", RedisRoomChannel("page_abc"))

	roomID, ok := RoomIDFromRedisChannel("pagesync.room.page_abc")
	require.True(t, ok)
	assert.Equal(t, "page_abc", roomID)

	_, ok = RoomIDFromRedisChannel("pagesync.control")
	assert.False(t, ok)

	_, ok = RoomIDFromRedisChannel("pagesync.room.")
	assert.False(t, ok)
}
