package chat_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HMasataka/fanout/internal/chat"
)

func TestLifecycle_JoinAssignsSanitizedName(t *testing.T) {
	hub := newTestHub(t)
	ctx := context.Background()

	link := &fakeLink{}
	sess := hub.lifecycle.Connect(link, "10.0.0.1")
	hub.lifecycle.HandleEvent(ctx, sess, joinEvent("Bob!!"))

	msgs := link.received(t)
	require.Len(t, msgs, 3)

	assert.Equal(t, "welcome", msgs[0].Type)
	assert.Equal(t, "Bob", msgs[0].Username)

	assert.Equal(t, "join", msgs[1].Type)
	assert.Equal(t, "Bob", msgs[1].From)

	assert.Equal(t, "users", msgs[2].Type)
	assert.Equal(t, []string{"Bob"}, msgs[2].Users)

	assert.Equal(t, "Bob", sess.Name())
}

func TestLifecycle_SecondJoinerGetsSuffixedName(t *testing.T) {
	hub := newTestHub(t)
	ctx := context.Background()

	first := &fakeLink{}
	s1 := hub.lifecycle.Connect(first, "10.0.0.1")
	hub.lifecycle.HandleEvent(ctx, s1, joinEvent("Bob"))

	second := &fakeLink{}
	s2 := hub.lifecycle.Connect(second, "10.0.0.2")
	hub.lifecycle.HandleEvent(ctx, s2, joinEvent("Bob"))

	msgs := second.received(t)
	require.NotEmpty(t, msgs)
	assert.Equal(t, "welcome", msgs[0].Type)
	assert.Equal(t, "Bob-2", msgs[0].Username)

	assert.Equal(t, []string{"Bob", "Bob-2"}, hub.registry.ListNames())
}

func TestLifecycle_NinthActionWithinOneSecondIsRateLimited(t *testing.T) {
	hub := newTestHub(t)
	ctx := context.Background()

	sender := &fakeLink{}
	sess := hub.lifecycle.Connect(sender, "10.0.0.1")

	observer := &fakeLink{}
	hub.lifecycle.Connect(observer, "10.0.0.2")

	for i := 0; i < 9; i++ {
		hub.lifecycle.HandleEvent(ctx, sess, messageEvent("spam"))
	}

	assert.Equal(t, 8, observer.count(), "only eight messages are broadcast")

	msgs := sender.received(t)
	require.Len(t, msgs, 9)
	last := msgs[8]
	assert.Equal(t, "rate_limited", last.Type)
	assert.Equal(t, 1, last.RetryAfter)
}

func TestLifecycle_FourthLoginFromSameAddressIsRejected(t *testing.T) {
	hub := newTestHub(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		link := &fakeLink{}
		s := hub.lifecycle.Connect(link, "10.0.0.1")
		hub.lifecycle.HandleEvent(ctx, s, joinEvent("user"))
	}
	require.Equal(t, 3, hub.registry.NamedCount("10.0.0.1"))

	fourth := &fakeLink{}
	s4 := hub.lifecycle.Connect(fourth, "10.0.0.1")
	hub.lifecycle.HandleEvent(ctx, s4, joinEvent("late"))

	msgs := fourth.received(t)
	require.NotEmpty(t, msgs)

	var rejection *wireMsg
	for i := range msgs {
		if msgs[i].Type == "too_many_logins" {
			rejection = &msgs[i]
		}
	}
	require.NotNil(t, rejection, "the fourth join is rejected")
	assert.Equal(t, 3, rejection.Limit)

	assert.False(t, s4.Named(), "the rejected session stays unnamed")
	assert.Len(t, hub.registry.ListNames(), 3)
}

// The rate token is charged even for a join the login cap later rejects.
func TestLifecycle_CapRejectedJoinStillChargesToken(t *testing.T) {
	hub := newTestHub(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		link := &fakeLink{}
		s := hub.lifecycle.Connect(link, "10.0.0.1")
		hub.lifecycle.HandleEvent(ctx, s, joinEvent("user"))
	}

	rejected := &fakeLink{}
	s4 := hub.lifecycle.Connect(rejected, "10.0.0.1")
	hub.lifecycle.HandleEvent(ctx, s4, joinEvent("late"))

	// Four tokens of the eight are gone: one per join attempt, rejected
	// or not. Four more actions pass, the fifth is denied.
	for i := 0; i < 4; i++ {
		allowed, _ := hub.limiter.TryConsume("10.0.0.1", 1)
		require.True(t, allowed, "action %d", i+1)
	}
	allowed, _ := hub.limiter.TryConsume("10.0.0.1", 1)
	assert.False(t, allowed)
}

func TestLifecycle_LongMessageTruncated(t *testing.T) {
	hub := newTestHub(t)
	ctx := context.Background()

	sender := &fakeLink{}
	sess := hub.lifecycle.Connect(sender, "10.0.0.1")
	hub.lifecycle.HandleEvent(ctx, sess, joinEvent("Bob"))

	hub.lifecycle.HandleEvent(ctx, sess, messageEvent(strings.Repeat("x", 2500)))

	msgs := sender.received(t)
	last := msgs[len(msgs)-1]
	require.Equal(t, "message", last.Type)
	assert.Len(t, last.Text, 2000)
}

func TestLifecycle_MessageControlCharactersStripped(t *testing.T) {
	hub := newTestHub(t)
	ctx := context.Background()

	sender := &fakeLink{}
	sess := hub.lifecycle.Connect(sender, "10.0.0.1")
	hub.lifecycle.HandleEvent(ctx, sess, joinEvent("Bob"))

	hub.lifecycle.HandleEvent(ctx, sess, messageEvent("a\x00b\tc\nd\x1be"))

	msgs := sender.received(t)
	last := msgs[len(msgs)-1]
	require.Equal(t, "message", last.Type)
	assert.Equal(t, "ab\tc\nde", last.Text, "tab and newline survive, other controls do not")
}

func TestLifecycle_UnnamedSenderIsAnonymous(t *testing.T) {
	hub := newTestHub(t)
	ctx := context.Background()

	sender := &fakeLink{}
	sess := hub.lifecycle.Connect(sender, "10.0.0.1")
	hub.lifecycle.HandleEvent(ctx, sess, messageEvent("hello"))

	msgs := sender.received(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, "message", msgs[0].Type)
	assert.Equal(t, chat.AnonymousName, msgs[0].From)
}

func TestLifecycle_MalformedPayloadsAreDropped(t *testing.T) {
	hub := newTestHub(t)
	ctx := context.Background()

	link := &fakeLink{}
	sess := hub.lifecycle.Connect(link, "10.0.0.1")

	hub.lifecycle.HandleEvent(ctx, sess, []byte("not json"))
	hub.lifecycle.HandleEvent(ctx, sess, []byte(`{"type":"shrug"}`))
	hub.lifecycle.HandleEvent(ctx, sess, []byte(`{}`))

	assert.Equal(t, 0, link.count(), "no reply for dropped payloads")
	assert.False(t, sess.Named())
	assert.Equal(t, 1, hub.registry.Len())
}

func TestLifecycle_DisconnectAnnouncesLeaveAndRoster(t *testing.T) {
	hub := newTestHub(t)
	ctx := context.Background()

	leaver := &fakeLink{}
	s1 := hub.lifecycle.Connect(leaver, "10.0.0.1")
	hub.lifecycle.HandleEvent(ctx, s1, joinEvent("Bob"))

	stayer := &fakeLink{}
	s2 := hub.lifecycle.Connect(stayer, "10.0.0.2")
	hub.lifecycle.HandleEvent(ctx, s2, joinEvent("Alice"))

	before := stayer.count()
	hub.lifecycle.Disconnect(ctx, s1)

	msgs := stayer.received(t)[before:]
	require.Len(t, msgs, 2)
	assert.Equal(t, "leave", msgs[0].Type)
	assert.Equal(t, "Bob", msgs[0].From)
	assert.Equal(t, "users", msgs[1].Type)
	assert.Equal(t, []string{"Alice"}, msgs[1].Users)

	assert.Equal(t, 0, hub.registry.NamedCount("10.0.0.1"))
	assert.Equal(t, 1, hub.registry.Len())
}

func TestLifecycle_DisconnectWithoutJoinIsSilent(t *testing.T) {
	hub := newTestHub(t)
	ctx := context.Background()

	observer := &fakeLink{}
	s1 := hub.lifecycle.Connect(observer, "10.0.0.1")
	hub.lifecycle.HandleEvent(ctx, s1, joinEvent("Bob"))

	quiet := &fakeLink{}
	s2 := hub.lifecycle.Connect(quiet, "10.0.0.2")

	before := observer.count()
	hub.lifecycle.Disconnect(ctx, s2)

	assert.Equal(t, before, observer.count(), "no leave broadcast for an unnamed session")
}

func TestLifecycle_RejoinRebindsWithoutLeakingOldName(t *testing.T) {
	hub := newTestHub(t)
	ctx := context.Background()

	link := &fakeLink{}
	sess := hub.lifecycle.Connect(link, "10.0.0.1")
	hub.lifecycle.HandleEvent(ctx, sess, joinEvent("Bob"))
	hub.lifecycle.HandleEvent(ctx, sess, joinEvent("Carol"))

	assert.Equal(t, "Carol", sess.Name())
	assert.Equal(t, []string{"Carol"}, hub.registry.ListNames())
	assert.Equal(t, 1, hub.registry.NamedCount("10.0.0.1"), "a rebind is not a second login")
}

func TestLifecycle_RejoinWithSameNameKeepsIt(t *testing.T) {
	hub := newTestHub(t)
	ctx := context.Background()

	link := &fakeLink{}
	sess := hub.lifecycle.Connect(link, "10.0.0.1")
	hub.lifecycle.HandleEvent(ctx, sess, joinEvent("Bob"))
	hub.lifecycle.HandleEvent(ctx, sess, joinEvent("Bob"))

	assert.Equal(t, "Bob", sess.Name(), "no self-collision suffix on rejoin")
	assert.Equal(t, []string{"Bob"}, hub.registry.ListNames())
}

func TestLifecycle_RateLimitSharedAcrossSessionsFromSameAddress(t *testing.T) {
	hub := newTestHub(t)
	ctx := context.Background()

	a := &fakeLink{}
	sa := hub.lifecycle.Connect(a, "10.0.0.1")
	b := &fakeLink{}
	sb := hub.lifecycle.Connect(b, "10.0.0.1")

	for i := 0; i < 8; i++ {
		hub.lifecycle.HandleEvent(ctx, sa, messageEvent("spam"))
	}

	hub.lifecycle.HandleEvent(ctx, sb, messageEvent("hi"))

	msgs := b.received(t)
	last := msgs[len(msgs)-1]
	assert.Equal(t, "rate_limited", last.Type, "sessions share the address bucket")
}
