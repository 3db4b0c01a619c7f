package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/chatsync/internal/model"
	natsclient "github.com/capitalize-ai/chatsync/internal/nats"
	"github.com/capitalize-ai/chatsync/pkg/logger"
)

type fakeSub struct {
	ch     *fakeChannel
	chatID string
}

func (s *fakeSub) Unsubscribe() error {
	s.ch.mu.Lock()
	defer s.ch.mu.Unlock()
	delete(s.ch.handlers, s.chatID)
	return nil
}

type fakeChannel struct {
	mu         sync.Mutex
	handlers   map[string]func(model.Event)
	subscribes int
	closed     bool
}

func (f *fakeChannel) SubscribeRoom(chatID string, h func(model.Event)) (subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[chatID] = h
	f.subscribes++
	return &fakeSub{ch: f, chatID: chatID}, nil
}

func (f *fakeChannel) IsConnected() bool { return !f.closed }

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func (f *fakeChannel) deliver(ev model.Event) bool {
	f.mu.Lock()
	h, ok := f.handlers[ev.ChatID]
	f.mu.Unlock()
	if ok {
		h(ev)
	}
	return ok
}

func newFakeRealtime(t *testing.T) (*Client, *fakeChannel) {
	t.Helper()
	fc := &fakeChannel{handlers: map[string]func(model.Event){}}
	gw := New(Config{BaseURL: "http://unused", Logger: logger.Nop()})
	dials := 0
	gw.rt.dial = func(context.Context, natsclient.Config, *logger.Logger) (channel, error) {
		dials++
		require.Equal(t, 1, dials, "the channel is shared and dialed once")
		return fc, nil
	}
	return gw, fc
}

func TestJoinChat_RequiresConnection(t *testing.T) {
	gw, _ := newFakeRealtime(t)

	err := gw.JoinChat("c1", func(model.Event) {})
	assert.True(t, errors.Is(err, model.ErrChannel))
}

func TestRooms(t *testing.T) {
	ctx := context.Background()
	gw, fc := newFakeRealtime(t)

	require.NoError(t, gw.Connect(ctx))
	require.NoError(t, gw.Connect(ctx))
	assert.True(t, gw.Connected())

	var first, second []int64
	require.NoError(t, gw.JoinChat("c1", func(ev model.Event) { first = append(first, ev.MessageID) }))
	require.NoError(t, gw.JoinChat("c1", func(ev model.Event) { second = append(second, ev.MessageID) }))
	assert.Equal(t, 1, fc.subscribes, "rejoining replaces the handler")

	fc.deliver(model.Event{Type: model.EventDeleteMessage, ChatID: "c1", MessageID: 5})
	assert.Empty(t, first)
	assert.Equal(t, []int64{5}, second)

	require.NoError(t, gw.JoinChat("c2", func(model.Event) {}))
	assert.Equal(t, []string{"c1", "c2"}, gw.Rooms())

	require.NoError(t, gw.LeaveChat("c1"))
	require.NoError(t, gw.LeaveChat("c1"), "leaving twice is a no-op")
	assert.False(t, fc.deliver(model.Event{ChatID: "c1"}))

	err := gw.JoinChat("c1.>", func(model.Event) {})
	assert.True(t, errors.Is(err, model.ErrValidation))

	require.NoError(t, gw.Close())
	assert.True(t, fc.closed)
	assert.Empty(t, gw.Rooms())
	assert.False(t, gw.Connected())
}

func TestConnectionHooks(t *testing.T) {
	gw, _ := newFakeRealtime(t)

	var downs, ups int
	gw.OnDisconnect(func(error) { downs++ })
	gw.OnReconnect(func() { ups++ })

	gw.rt.cfg.OnDisconnect(errors.New("gone"))
	gw.rt.cfg.OnReconnect()
	gw.rt.cfg.OnReconnect()

	assert.Equal(t, 1, downs)
	assert.Equal(t, 2, ups)
}
