package model

// STTSettings configures speech-to-text. A nil field is disabled.
type STTSettings struct {
	Language                      *string  `json:"language"`
	BeamSize                      *int     `json:"beam_size"`
	BestOf                        *int     `json:"best_of"`
	Patience                      *float64 `json:"patience"`
	NoSpeechThreshold             *float64 `json:"no_speech_threshold"`
	Temperature                   *float64 `json:"temperature"`
	HallucinationSilenceThreshold *float64 `json:"hallucination_silence_threshold"`
}

// LLMSettings configures generation. A nil field is disabled and left out of
// the options sent to the model.
type LLMSettings struct {
	Seed          *int     `json:"seed"`
	Model         *string  `json:"model"`
	SystemPrompt  *string  `json:"system_prompt"`
	Mirostat      *int     `json:"mirostat"`
	MirostatEta   *float64 `json:"mirostat_eta"`
	MirostatTau   *float64 `json:"mirostat_tau"`
	NumCtx        *int     `json:"num_ctx"`
	RepeatLastN   *int     `json:"repeat_last_n"`
	RepeatPenalty *float64 `json:"repeat_penalty"`
	Temperature   *float64 `json:"temperature"`
	TfsZ          *float64 `json:"tfs_z"`
	NumPredict    *int     `json:"num_predict"`
	TopK          *int     `json:"top_k"`
	TopP          *float64 `json:"top_p"`
	MinP          *float64 `json:"min_p"`
}

// TTSSettings configures text-to-speech.
type TTSSettings struct {
	Voice *string  `json:"voice"`
	Speed *float64 `json:"speed"`
}

// TelephonySettings configures the Asterisk bridge. Wire names keep the
// asterisk_ prefix the backend stores.
type TelephonySettings struct {
	MinAudioLength   *float64 `json:"asterisk_min_audio_length"`
	SilenceThreshold *float64 `json:"asterisk_silence_threshold"`
	Host             *string  `json:"asterisk_host"`
	Number           *string  `json:"asterisk_number"`
}

// Settings is the per-chat configuration. The zero value has every field
// disabled.
type Settings struct {
	STT       STTSettings       `json:"sttSettings"`
	LLM       LLMSettings       `json:"llmSettings"`
	TTS       TTSSettings       `json:"ttsSettings"`
	Telephony TelephonySettings `json:"asteriskSettings"`
}

// Clone returns a deep copy of s.
func (s *Settings) Clone() *Settings {
	if s == nil {
		return &Settings{}
	}
	return &Settings{
		STT: STTSettings{
			Language:                      clonePtr(s.STT.Language),
			BeamSize:                      clonePtr(s.STT.BeamSize),
			BestOf:                        clonePtr(s.STT.BestOf),
			Patience:                      clonePtr(s.STT.Patience),
			NoSpeechThreshold:             clonePtr(s.STT.NoSpeechThreshold),
			Temperature:                   clonePtr(s.STT.Temperature),
			HallucinationSilenceThreshold: clonePtr(s.STT.HallucinationSilenceThreshold),
		},
		LLM: LLMSettings{
			Seed:          clonePtr(s.LLM.Seed),
			Model:         clonePtr(s.LLM.Model),
			SystemPrompt:  clonePtr(s.LLM.SystemPrompt),
			Mirostat:      clonePtr(s.LLM.Mirostat),
			MirostatEta:   clonePtr(s.LLM.MirostatEta),
			MirostatTau:   clonePtr(s.LLM.MirostatTau),
			NumCtx:        clonePtr(s.LLM.NumCtx),
			RepeatLastN:   clonePtr(s.LLM.RepeatLastN),
			RepeatPenalty: clonePtr(s.LLM.RepeatPenalty),
			Temperature:   clonePtr(s.LLM.Temperature),
			TfsZ:          clonePtr(s.LLM.TfsZ),
			NumPredict:    clonePtr(s.LLM.NumPredict),
			TopK:          clonePtr(s.LLM.TopK),
			TopP:          clonePtr(s.LLM.TopP),
			MinP:          clonePtr(s.LLM.MinP),
		},
		TTS: TTSSettings{
			Voice: clonePtr(s.TTS.Voice),
			Speed: clonePtr(s.TTS.Speed),
		},
		Telephony: TelephonySettings{
			MinAudioLength:   clonePtr(s.Telephony.MinAudioLength),
			SilenceThreshold: clonePtr(s.Telephony.SilenceThreshold),
			Host:             clonePtr(s.Telephony.Host),
			Number:           clonePtr(s.Telephony.Number),
		},
	}
}

// IsZero reports whether every field is disabled.
func (s *Settings) IsZero() bool {
	return s == nil || *s == Settings{}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
