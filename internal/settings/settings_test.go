package settings

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/chatsync/internal/model"
)

func TestUpdate_GenerationOptionsRoundTrip(t *testing.T) {
	fields := []struct {
		field string
		value any
	}{
		{"seed", 42},
		{"mirostat", 1},
		{"mirostat_eta", 0.1},
		{"mirostat_tau", 5.0},
		{"num_ctx", 4096},
		{"repeat_last_n", 64},
		{"repeat_penalty", 1.1},
		{"temperature", 0.8},
		{"tfs_z", 1.0},
		{"num_predict", 128},
		{"top_k", 40},
		{"top_p", 0.9},
		{"min_p", 0.05},
	}

	for _, f := range fields {
		t.Run(f.field, func(t *testing.T) {
			m := New()

			require.NoError(t, m.Update("llm", f.field, f.value))
			assert.Contains(t, m.GenerationOptions(), f.field)

			require.NoError(t, m.Update("llm", f.field, nil))
			assert.NotContains(t, m.GenerationOptions(), f.field)
		})
	}
}

func TestGenerationOptions_ExcludesModelAndSystemPrompt(t *testing.T) {
	m := New()
	require.NoError(t, m.Update("llmSettings", "model", "llama3"))
	require.NoError(t, m.Update("llm", "system_prompt", "be brief"))
	require.NoError(t, m.Update("llm", "temperature", 0.2))

	opts := m.GenerationOptions()
	assert.Equal(t, map[string]any{"temperature": 0.2}, opts)
	assert.Equal(t, "llama3", m.ModelName("gemma2:9b"))

	prompt, ok := m.SystemPrompt()
	assert.True(t, ok)
	assert.Equal(t, "be brief", prompt)
}

func TestUpdate_Validation(t *testing.T) {
	tests := []struct {
		name     string
		category string
		field    string
		value    any
	}{
		{"unknown category", "video", "fps", 30},
		{"unknown field", "llm", "beam_width", 3},
		{"wrong type", "llm", "temperature", "hot"},
		{"fraction for integer field", "stt", "beam_size", 2.5},
		{"string field given number", "tts", "voice", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			err := m.Update(tt.category, tt.field, tt.value)
			require.Error(t, err)
			assert.True(t, errors.Is(err, model.ErrValidation))
			assert.True(t, m.Snapshot().IsZero(), "failed update must not change the model")
		})
	}
}

func TestUpdate_TelephonyFieldNames(t *testing.T) {
	m := New()
	require.NoError(t, m.Update("asterisk", "host", "http://pbx:8088"))
	require.NoError(t, m.Update("telephony", "asterisk_number", "1001"))
	require.NoError(t, m.Update("asteriskSettings", "silence_threshold", 0.3))

	s := m.Snapshot()
	require.NotNil(t, s.Telephony.Host)
	assert.Equal(t, "http://pbx:8088", *s.Telephony.Host)
	require.NotNil(t, s.Telephony.Number)
	assert.Equal(t, "1001", *s.Telephony.Number)
	require.NotNil(t, s.Telephony.SilenceThreshold)
	assert.Equal(t, 0.3, *s.Telephony.SilenceThreshold)
}

func TestReplaceAndReset(t *testing.T) {
	voice := "anna"
	src := &model.Settings{TTS: model.TTSSettings{Voice: &voice}}

	m := New()
	require.NoError(t, m.Update("stt", "language", "ru"))
	m.Replace(src)

	s := m.Snapshot()
	assert.Nil(t, s.STT.Language, "replace must not carry over fields from the previous chat")
	require.NotNil(t, s.TTS.Voice)
	assert.Equal(t, "anna", *s.TTS.Voice)

	voice = "boris"
	assert.Equal(t, "anna", *m.Snapshot().TTS.Voice, "replace must copy its input")

	m.Reset()
	assert.True(t, m.Snapshot().IsZero())
	assert.Equal(t, "gemma2:9b", m.ModelName("gemma2:9b"))
	_, ok := m.SystemPrompt()
	assert.False(t, ok)
}

func TestSnapshotIsACopy(t *testing.T) {
	m := New()
	require.NoError(t, m.Update("llm", "top_k", 10))

	s := m.Snapshot()
	*s.LLM.TopK = 99

	assert.Equal(t, 10, m.GenerationOptions()["top_k"])
}
