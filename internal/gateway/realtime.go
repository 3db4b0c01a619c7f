package gateway

import (
	"context"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chatsync/internal/model"
	natsclient "github.com/capitalize-ai/chatsync/internal/nats"
	"github.com/capitalize-ai/chatsync/pkg/logger"
	"github.com/capitalize-ai/chatsync/pkg/metrics"
)

type subscription interface {
	Unsubscribe() error
}

// channel is the shared realtime connection rooms are subscribed on.
type channel interface {
	SubscribeRoom(chatID string, handler func(model.Event)) (subscription, error)
	IsConnected() bool
	Close() error
}

type natsChannel struct {
	*natsclient.Client
}

func (n natsChannel) SubscribeRoom(chatID string, handler func(model.Event)) (subscription, error) {
	sub, err := n.Client.SubscribeRoom(chatID, handler)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

type dialFunc func(ctx context.Context, cfg natsclient.Config, log *logger.Logger) (channel, error)

func dialNATS(ctx context.Context, cfg natsclient.Config, log *logger.Logger) (channel, error) {
	c, err := natsclient.Connect(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return natsChannel{c}, nil
}

type room struct {
	mu      sync.Mutex
	handler func(model.Event)
	sub     subscription
}

func (r *room) setHandler(h func(model.Event)) {
	r.mu.Lock()
	r.handler = h
	r.mu.Unlock()
}

func (r *room) dispatch(ev model.Event) {
	r.mu.Lock()
	h := r.handler
	r.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

type realtime struct {
	mu    sync.Mutex
	cfg   natsclient.Config
	log   *logger.Logger
	dial  dialFunc
	conn  channel
	rooms map[string]*room

	hooksMu   sync.Mutex
	downHooks []func(error)
	upHooks   []func()
}

func (rt *realtime) init(cfg natsclient.Config, log *logger.Logger) {
	userDown, userUp := cfg.OnDisconnect, cfg.OnReconnect
	cfg.OnDisconnect = func(err error) {
		if userDown != nil {
			userDown(err)
		}
		rt.fireDown(err)
	}
	cfg.OnReconnect = func() {
		if userUp != nil {
			userUp()
		}
		rt.fireUp()
	}
	rt.cfg = cfg
	rt.log = log
	rt.dial = dialNATS
	rt.rooms = make(map[string]*room)
}

func (rt *realtime) fireDown(err error) {
	rt.hooksMu.Lock()
	hooks := append([]func(error){}, rt.downHooks...)
	rt.hooksMu.Unlock()
	for _, h := range hooks {
		h(err)
	}
}

func (rt *realtime) fireUp() {
	rt.hooksMu.Lock()
	hooks := append([]func(){}, rt.upHooks...)
	rt.hooksMu.Unlock()
	for _, h := range hooks {
		h()
	}
}

// OnDisconnect registers f to run whenever the realtime channel drops.
func (c *Client) OnDisconnect(f func(error)) {
	c.rt.hooksMu.Lock()
	c.rt.downHooks = append(c.rt.downHooks, f)
	c.rt.hooksMu.Unlock()
}

// OnReconnect registers f to run after the realtime channel comes back.
// Room subscriptions survive a reconnect.
func (c *Client) OnReconnect(f func()) {
	c.rt.hooksMu.Lock()
	c.rt.upHooks = append(c.rt.upHooks, f)
	c.rt.hooksMu.Unlock()
}

// Connect opens the shared realtime channel. It is a no-op when already
// connected.
func (c *Client) Connect(ctx context.Context) error {
	rt := &c.rt
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.conn != nil {
		return nil
	}
	conn, err := rt.dial(ctx, rt.cfg, rt.log)
	if err != nil {
		return model.WrapError(model.KindChannel, "realtime.connect", err)
	}
	rt.conn = conn
	return nil
}

// Connected reports whether the realtime channel is up.
func (c *Client) Connected() bool {
	rt := &c.rt
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.conn != nil && rt.conn.IsConnected()
}

// Disconnect leaves every room and closes the realtime channel.
func (c *Client) Disconnect() error {
	rt := &c.rt
	rt.mu.Lock()
	defer rt.mu.Unlock()

	var result *multierror.Error
	for id, r := range rt.rooms {
		if err := r.sub.Unsubscribe(); err != nil {
			result = multierror.Append(result, err)
		}
		delete(rt.rooms, id)
	}
	metrics.RoomsJoined.Set(0)

	if rt.conn != nil {
		if err := rt.conn.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		rt.conn = nil
	}
	return result.ErrorOrNil()
}

// JoinChat subscribes to a chat's room. Joining a room that is already
// joined only replaces the handler.
func (c *Client) JoinChat(chatID string, handler func(model.Event)) error {
	if err := natsclient.ValidateChatID(chatID); err != nil {
		return err
	}

	rt := &c.rt
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.conn == nil {
		return model.NewError(model.KindChannel, "realtime.join", "realtime channel is not connected")
	}
	if r, ok := rt.rooms[chatID]; ok {
		r.setHandler(handler)
		return nil
	}

	r := &room{handler: handler}
	sub, err := rt.conn.SubscribeRoom(chatID, r.dispatch)
	if err != nil {
		return model.WrapError(model.KindChannel, "realtime.join", err)
	}
	r.sub = sub
	rt.rooms[chatID] = r
	metrics.RoomsJoined.Set(float64(len(rt.rooms)))

	rt.log.Debug("joined room", zap.String("chat_id", chatID))
	return nil
}

// LeaveChat unsubscribes from a chat's room. Leaving a room that is not
// joined is a no-op.
func (c *Client) LeaveChat(chatID string) error {
	rt := &c.rt
	rt.mu.Lock()
	defer rt.mu.Unlock()

	r, ok := rt.rooms[chatID]
	if !ok {
		return nil
	}
	delete(rt.rooms, chatID)
	metrics.RoomsJoined.Set(float64(len(rt.rooms)))

	if err := r.sub.Unsubscribe(); err != nil {
		return model.WrapError(model.KindChannel, "realtime.leave", err)
	}
	rt.log.Debug("left room", zap.String("chat_id", chatID))
	return nil
}

// Rooms returns the joined chat ids, sorted.
func (c *Client) Rooms() []string {
	rt := &c.rt
	rt.mu.Lock()
	defer rt.mu.Unlock()

	ids := make([]string, 0, len(rt.rooms))
	for id := range rt.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close releases the realtime channel. The REST side needs no teardown.
func (c *Client) Close() error {
	return c.Disconnect()
}
