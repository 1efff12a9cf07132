package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"mentorlink/domain/event"
)

type nopSink struct {
	name string
}

func (s *nopSink) Consume(ctx context.Context, e event.ChannelEvent) error {
	return nil
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	sink := &nopSink{name: "c1"}

	// Given no channel is connected
	req.Empty(registry.AllSinks())

	// When a channel registers
	registry.Register("c1", "u1", sink)

	// Then it is reachable by user and globally
	req.Len(registry.SinksForUser("u1"), 1)
	req.Len(registry.AllSinks(), 1)

	userID, conversation, ok := registry.Selected("c1")
	req.True(ok)
	req.Equal("u1", userID)
	req.Empty(conversation)
}

func TestRegistry_MultipleChannelsSameUser(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	registry.Register("c1", "u1", &nopSink{name: "c1"})
	registry.Register("c2", "u1", &nopSink{name: "c2"})
	registry.Register("c3", "u2", &nopSink{name: "c3"})

	req.Len(registry.SinksForUser("u1"), 2)
	req.Len(registry.SinksForUser("u2"), 1)
	req.Len(registry.AllSinks(), 3)
}

func TestRegistry_UnregisterCleansUp(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	registry.Register("c1", "u1", &nopSink{name: "c1"})
	registry.Unregister("c1")

	req.Empty(registry.SinksForUser("u1"))
	req.Empty(registry.AllSinks())
	_, _, ok := registry.Selected("c1")
	req.False(ok)

	// Unregistering twice is a no-op
	registry.Unregister("c1")
}

func TestRegistry_ConversationScoping(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	a := &nopSink{name: "a"}
	b := &nopSink{name: "b"}
	c := &nopSink{name: "c"}

	registry.Register("ca", "u1", a)
	registry.Register("cb", "u2", b)
	registry.Register("cc", "u3", c)

	registry.Subscribe("ca", "u1_u2")
	registry.Subscribe("cb", "u1_u2")
	registry.Subscribe("cc", "u1_u3")

	// Typing in u1_u2 must reach u2 only: u1 is excluded as the typist
	// and u3 is scoped to another conversation
	sinks := registry.SinksForConversation("u1_u2", "u1")
	req.Len(sinks, 1)
	req.Same(b, sinks[0])
}

func TestRegistry_SubscribeReplacesPrevious(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	a := &nopSink{name: "a"}

	registry.Register("ca", "u1", a)
	registry.Subscribe("ca", "u1_u2")

	// When the channel switches to another conversation
	registry.Subscribe("ca", "u1_u3")

	// Then the previous subscription is gone, no cross-talk possible
	req.Empty(registry.SinksForConversation("u1_u2", ""))
	req.Len(registry.SinksForConversation("u1_u3", ""), 1)

	registry.Unsubscribe("ca")
	req.Empty(registry.SinksForConversation("u1_u3", ""))
}
