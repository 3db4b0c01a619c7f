// Package realtime turns room events from the shared channel into message
// log mutations and keeps the selected chat's room joined across reconnects.
package realtime

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chatsync/internal/model"
	"github.com/capitalize-ai/chatsync/pkg/logger"
	"github.com/capitalize-ai/chatsync/pkg/metrics"
)

const resyncTimeout = 30 * time.Second

// Channel is the room side of the gateway.
type Channel interface {
	JoinChat(chatID string, handler func(model.Event)) error
	LeaveChat(chatID string) error
	OnDisconnect(f func(error))
	OnReconnect(f func())
}

// EventSink applies one event and reports whether it changed anything.
type EventSink interface {
	ApplyEvent(ev model.Event) bool
}

// ErrorReporter receives channel failures.
type ErrorReporter interface {
	ReportError(err error)
}

// Resyncer re-fetches the selected chat after the channel comes back.
type Resyncer interface {
	Resync(ctx context.Context) error
}

// Bridge joins and leaves rooms on behalf of the chat store.
type Bridge struct {
	ch     Channel
	sink   EventSink
	logger *logger.Logger

	mu       sync.Mutex
	current  string
	reporter ErrorReporter
	resyncer Resyncer
}

// New creates a bridge and registers its connection hooks on ch.
func New(ch Channel, sink EventSink, log *logger.Logger) *Bridge {
	if log == nil {
		log = logger.Nop()
	}
	b := &Bridge{
		ch:     ch,
		sink:   sink,
		logger: log.Component("realtime"),
	}
	ch.OnDisconnect(b.disconnected)
	ch.OnReconnect(b.reconnected)
	return b
}

// SetErrorReporter sets where channel errors are recorded.
func (b *Bridge) SetErrorReporter(r ErrorReporter) {
	b.mu.Lock()
	b.reporter = r
	b.mu.Unlock()
}

// SetResyncer sets what runs after a reconnect.
func (b *Bridge) SetResyncer(r Resyncer) {
	b.mu.Lock()
	b.resyncer = r
	b.mu.Unlock()
}

// Current returns the room the bridge wants joined.
func (b *Bridge) Current() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// JoinChat joins the room of chatID. The room is remembered even when the
// join fails so that a later reconnect picks it up.
func (b *Bridge) JoinChat(chatID string) error {
	b.mu.Lock()
	b.current = chatID
	b.mu.Unlock()

	if err := b.ch.JoinChat(chatID, b.handle); err != nil {
		if model.KindOf(err) == "" {
			err = model.WrapError(model.KindChannel, "realtime.join", err)
		}
		return err
	}
	b.logger.Debug("room joined", zap.String("chat_id", chatID))
	return nil
}

// LeaveChat leaves the room of chatID.
func (b *Bridge) LeaveChat(chatID string) error {
	b.mu.Lock()
	if b.current == chatID {
		b.current = ""
	}
	b.mu.Unlock()

	if err := b.ch.LeaveChat(chatID); err != nil {
		return model.WrapError(model.KindChannel, "realtime.leave", err)
	}
	b.logger.Debug("room left", zap.String("chat_id", chatID))
	return nil
}

// Close leaves the current room.
func (b *Bridge) Close() error {
	if id := b.Current(); id != "" {
		return b.LeaveChat(id)
	}
	return nil
}

func (b *Bridge) handle(ev model.Event) {
	outcome := "ignored"
	if b.sink.ApplyEvent(ev) {
		outcome = "applied"
	}
	metrics.RecordRealtimeEvent(string(ev.Type), outcome)
}

func (b *Bridge) disconnected(err error) {
	b.logger.Warn("realtime channel disconnected", zap.Error(err))

	b.mu.Lock()
	r := b.reporter
	b.mu.Unlock()
	if r == nil {
		return
	}
	if err == nil {
		r.ReportError(model.NewError(model.KindChannel, "realtime", "channel disconnected"))
		return
	}
	r.ReportError(model.WrapError(model.KindChannel, "realtime", err))
}

func (b *Bridge) reconnected() {
	b.mu.Lock()
	id, r := b.current, b.resyncer
	b.mu.Unlock()

	b.logger.Info("realtime channel reconnected", zap.String("chat_id", id))
	if id == "" {
		return
	}
	if err := b.ch.JoinChat(id, b.handle); err != nil {
		b.logger.Warn("failed to rejoin room", zap.String("chat_id", id), zap.Error(err))
	}
	if r == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), resyncTimeout)
	defer cancel()
	if err := r.Resync(ctx); err != nil {
		b.logger.Warn("resync after reconnect failed", zap.String("chat_id", id), zap.Error(err))
	}
}
