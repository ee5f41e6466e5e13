package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realzhujunhao/jhchat/internal/wire"
)

func TestLoginThenSendDeliversToHandle(t *testing.T) {
	r := New()
	h := NewHandle(4)
	r.Login("alice", h)

	ok := r.Send("alice", wire.SendTextMessage("alice", []byte("hi")))
	require.True(t, ok)

	select {
	case msg := <-h.Outbound():
		assert.Equal(t, []byte("hi"), msg.Content)
	case <-time.After(time.Second):
		t.Fatal("message never arrived")
	}
}

func TestSendToUnknownUIDReportsFalse(t *testing.T) {
	r := New()
	ok := r.Send("ghost", wire.HelpMessage())
	assert.False(t, ok)
}

func TestDuplicateLoginEvictsThePreviousHandle(t *testing.T) {
	r := New()
	first := NewHandle(1)
	second := NewHandle(1)

	r.Login("alice", first)
	r.Login("alice", second)

	select {
	case <-first.Evicted():
	case <-time.After(time.Second):
		t.Fatal("previous handle was never evicted")
	}

	select {
	case <-second.Evicted():
		t.Fatal("the new handle must not be evicted")
	default:
	}

	assert.True(t, r.Online("alice"))
}

func TestLogoutIgnoresAStaleHandle(t *testing.T) {
	r := New()
	first := NewHandle(1)
	second := NewHandle(1)

	r.Login("alice", first)
	r.Login("alice", second)

	// The evicted connection's teardown path calls Logout with its own
	// (now-stale) handle; it must not delete the handle that replaced it.
	r.Logout("alice", first)
	assert.True(t, r.Online("alice"))

	r.Logout("alice", second)
	assert.False(t, r.Online("alice"))
}

func TestSnapshotIsSorted(t *testing.T) {
	r := New()
	r.Login("carol", NewHandle(1))
	r.Login("alice", NewHandle(1))
	r.Login("bob", NewHandle(1))

	assert.Equal(t, []string{"alice", "bob", "carol"}, r.Snapshot())
}

func TestOnlineListMessageJoinsSnapshot(t *testing.T) {
	r := New()
	r.Login("bob", NewHandle(1))
	r.Login("alice", NewHandle(1))

	msg := r.OnlineListMessage()
	assert.Equal(t, wire.CommandOnlineList, msg.Command)
	assert.Equal(t, "alice\nbob", string(msg.Content))
}

func TestHandleSendNonBlockingWhenQueueFull(t *testing.T) {
	h := NewHandle(1)
	assert.True(t, h.Send(wire.HelpMessage()))
	assert.False(t, h.Send(wire.HelpMessage()))
}
