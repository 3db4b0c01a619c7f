package store

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chatsync/internal/model"
	"github.com/capitalize-ai/chatsync/internal/settings"
	"github.com/capitalize-ai/chatsync/pkg/logger"
)

// SettingsState is a point-in-time view of the settings store.
type SettingsState struct {
	ChatID   string
	Settings *model.Settings
	Saving   bool
	Err      error
}

// SettingsStore mirrors the settings of the selected chat and writes every
// change back to it.
type SettingsStore struct {
	model  *settings.Model
	gw     ChatAPI
	logger *logger.Logger

	mu     sync.Mutex
	chatID string
	saving int
	err    error
}

// NewSettingsStore creates a settings store with every field disabled.
func NewSettingsStore(gw ChatAPI, log *logger.Logger) *SettingsStore {
	if log == nil {
		log = logger.Nop()
	}
	return &SettingsStore{
		model:  settings.New(),
		gw:     gw,
		logger: log.Component("settings"),
	}
}

// Update sets one field and persists the whole settings object to the
// selected chat. On a failed save the local change is kept.
func (s *SettingsStore) Update(ctx context.Context, category, field string, value any) error {
	s.mu.Lock()
	if err := s.model.Update(category, field, value); err != nil {
		s.mu.Unlock()
		return s.fail("update", err)
	}
	chatID, snap := s.chatID, s.model.Snapshot()
	s.mu.Unlock()

	if chatID == "" {
		return nil
	}
	return s.save(ctx, chatID, snap)
}

// Save writes the current settings to chatID, which must be the chat the
// settings belong to.
func (s *SettingsStore) Save(ctx context.Context, chatID string) error {
	s.mu.Lock()
	held, snap := s.chatID, s.model.Snapshot()
	s.mu.Unlock()

	if held == "" || held != chatID {
		return s.fail("save", model.NewError(model.KindValidation, "settings.save",
			"settings belong to chat %q, not %q", held, chatID))
	}
	return s.save(ctx, chatID, snap)
}

func (s *SettingsStore) save(ctx context.Context, chatID string, snap *model.Settings) error {
	s.mu.Lock()
	s.saving++
	s.err = nil
	s.mu.Unlock()

	_, err := s.gw.UpdateChat(ctx, chatID, model.ChatUpdate{Settings: snap})

	s.mu.Lock()
	s.saving--
	s.mu.Unlock()

	if err != nil {
		return s.fail("save", err)
	}
	s.logger.Debug("settings saved", zap.String("chat_id", chatID))
	return nil
}

// Replace swaps in the settings of chatID. A nil value resets every field.
func (s *SettingsStore) Replace(chatID string, v *model.Settings) {
	s.mu.Lock()
	s.chatID = chatID
	s.model.Replace(v)
	s.mu.Unlock()
}

// Reset disables every field and detaches the store from any chat.
func (s *SettingsStore) Reset() {
	s.mu.Lock()
	s.chatID = ""
	s.model.Reset()
	s.mu.Unlock()
}

// ChatID returns the chat the settings belong to.
func (s *SettingsStore) ChatID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatID
}

// Settings returns a deep copy of the current settings.
func (s *SettingsStore) Settings() *model.Settings {
	return s.model.Snapshot()
}

// GenerationOptions returns the enabled LLM sampling options.
func (s *SettingsStore) GenerationOptions() map[string]any {
	return s.model.GenerationOptions()
}

// ModelName returns the configured model, or fallback.
func (s *SettingsStore) ModelName(fallback string) string {
	return s.model.ModelName(fallback)
}

// SystemPrompt returns the configured system prompt and whether it is set.
func (s *SettingsStore) SystemPrompt() (string, bool) {
	return s.model.SystemPrompt()
}

// Snapshot returns the current state.
func (s *SettingsStore) Snapshot() SettingsState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SettingsState{
		ChatID:   s.chatID,
		Settings: s.model.Snapshot(),
		Saving:   s.saving > 0,
		Err:      s.err,
	}
}

// ClearError forgets the last error.
func (s *SettingsStore) ClearError() {
	s.mu.Lock()
	s.err = nil
	s.mu.Unlock()
}

func (s *SettingsStore) fail(op string, err error) error {
	record(s.logger, "settings", op, err)
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	return err
}
