// Package settings holds the per-chat generation configuration and its
// field-level update rules.
package settings

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"

	"github.com/capitalize-ai/chatsync/internal/model"
)

// Category names one sub-record of the settings.
type Category string

const (
	CategorySTT       Category = "stt"
	CategoryLLM       Category = "llm"
	CategoryTTS       Category = "tts"
	CategoryTelephony Category = "telephony"
)

// ParseCategory resolves a category name. Wire keys and the asterisk alias
// are accepted.
func ParseCategory(name string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "stt", "sttsettings":
		return CategorySTT, nil
	case "llm", "llmsettings":
		return CategoryLLM, nil
	case "tts", "ttssettings":
		return CategoryTTS, nil
	case "telephony", "asterisk", "asterisksettings":
		return CategoryTelephony, nil
	}
	return "", model.NewError(model.KindValidation, "settings.update", "unknown settings category %q", name)
}

// Model is the settings of one chat. It is safe for concurrent use.
type Model struct {
	mu sync.RWMutex
	s  *model.Settings
}

// New creates a model with every field disabled.
func New() *Model {
	return &Model{s: &model.Settings{}}
}

// Update sets one field of one sub-record. A nil value disables the field.
// Unknown categories, unknown fields and values of the wrong type fail with
// a validation error and leave the model unchanged.
func (m *Model) Update(category, field string, value any) error {
	cat, err := ParseCategory(category)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.s.Clone()
	var target any
	switch cat {
	case CategorySTT:
		target = &next.STT
	case CategoryLLM:
		target = &next.LLM
	case CategoryTTS:
		target = &next.TTS
	case CategoryTelephony:
		target = &next.Telephony
		if !strings.HasPrefix(field, "asterisk_") {
			field = "asterisk_" + field
		}
	}

	if err := setField(target, field, value); err != nil {
		return model.WrapError(model.KindValidation, "settings.update", err)
	}
	m.s = next
	return nil
}

// setField round-trips the sub-record through its JSON form so that field
// names and value types follow the wire format exactly.
func setField(target any, field string, value any) error {
	raw, err := json.Marshal(target)
	if err != nil {
		return err
	}
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return err
	}
	if _, ok := fields[field]; !ok {
		return &fieldError{field: field}
	}
	fields[field] = value

	raw, err = json.Marshal(fields)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}

type fieldError struct {
	field string
}

func (e *fieldError) Error() string {
	return "unknown settings field " + e.field
}

// GenerationOptions projects the LLM sub-record into the options payload of a
// completion request. Disabled fields are left out, as are model and
// system_prompt which travel separately.
func (m *Model) GenerationOptions() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return GenerationOptions(m.s.LLM)
}

// GenerationOptions builds the options payload from an LLM sub-record.
func GenerationOptions(l model.LLMSettings) map[string]any {
	opts := map[string]any{}
	addOption(opts, "seed", l.Seed)
	addOption(opts, "mirostat", l.Mirostat)
	addOption(opts, "mirostat_eta", l.MirostatEta)
	addOption(opts, "mirostat_tau", l.MirostatTau)
	addOption(opts, "num_ctx", l.NumCtx)
	addOption(opts, "repeat_last_n", l.RepeatLastN)
	addOption(opts, "repeat_penalty", l.RepeatPenalty)
	addOption(opts, "temperature", l.Temperature)
	addOption(opts, "tfs_z", l.TfsZ)
	addOption(opts, "num_predict", l.NumPredict)
	addOption(opts, "top_k", l.TopK)
	addOption(opts, "top_p", l.TopP)
	addOption(opts, "min_p", l.MinP)
	return opts
}

func addOption[T any](opts map[string]any, key string, v *T) {
	if v != nil {
		opts[key] = *v
	}
}

// ModelName returns the configured model, or fallback when unset.
func (m *Model) ModelName(fallback string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.s.LLM.Model != nil && strings.TrimSpace(*m.s.LLM.Model) != "" {
		return *m.s.LLM.Model
	}
	return fallback
}

// SystemPrompt returns the configured system prompt and whether it is set.
func (m *Model) SystemPrompt() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.s.LLM.SystemPrompt == nil {
		return "", false
	}
	return *m.s.LLM.SystemPrompt, true
}

// Reset disables every field.
func (m *Model) Reset() {
	m.mu.Lock()
	m.s = &model.Settings{}
	m.mu.Unlock()
}

// Replace swaps the whole model for a copy of s. A nil s resets.
func (m *Model) Replace(s *model.Settings) {
	next := s.Clone()
	m.mu.Lock()
	m.s = next
	m.mu.Unlock()
}

// Snapshot returns a deep copy of the current settings.
func (m *Model) Snapshot() *model.Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.Clone()
}
