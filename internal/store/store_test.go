package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/chatsync/internal/model"
	"github.com/capitalize-ai/chatsync/internal/persist"
)

type harness struct {
	gw       *fakeGateway
	llm      *fakeLLM
	titler   *fakeLLM
	auth     *AuthStore
	settings *SettingsStore
	messages *MessageStore
	chats    *ChatStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	gw := newFakeGateway()
	gw.SetToken("tok")
	h := &harness{
		gw:     gw,
		llm:    &fakeLLM{gw: gw, reply: "reply"},
		titler: &fakeLLM{reply: "title"},
	}
	h.auth = NewAuthStore(gw, nil, nil)
	h.settings = NewSettingsStore(gw, nil)
	h.messages = NewMessageStore(gw, h.llm, h.settings, "default-model", nil)
	h.chats = NewChatStore(ChatDeps{
		Gateway:    gw,
		Identity:   h.auth,
		Rooms:      fakeRooms{gw: gw},
		Settings:   h.settings,
		Messages:   h.messages,
		Titler:     h.titler,
		TitleModel: "title-model",
	})

	_, err := h.auth.FetchUser(context.Background())
	require.NoError(t, err)
	return h
}

// selectChat loads the chat list and selects id.
func (h *harness) selectChat(t *testing.T, id string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.chats.Refresh(ctx))
	require.NoError(t, h.chats.Select(ctx, id))
}

func float(v float64) *float64 { return &v }

func TestSelect_LatestSelectionWins(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.gw.addChat("a", nil)
	h.gw.addChat("b", &model.Settings{LLM: model.LLMSettings{Temperature: float(0.5)}})
	h.gw.addMessage("a", model.RoleUser, "from a")
	h.gw.addMessage("b", model.RoleUser, "from b")
	require.NoError(t, h.chats.Refresh(ctx))

	entered := make(chan struct{})
	release := make(chan struct{})
	h.gw.getChatHook = func(id string) {
		if id == "a" {
			close(entered)
			<-release
		}
	}

	done := make(chan error, 1)
	go func() { done <- h.chats.Select(ctx, "a") }()
	<-entered

	require.NoError(t, h.chats.Select(ctx, "b"))
	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, "b", h.chats.Selected())
	msgs := h.messages.Snapshot()
	assert.Equal(t, "b", msgs.ChatID)
	assert.Equal(t, []string{"from b"}, contents(msgs.Messages))
	st := h.settings.Snapshot()
	assert.Equal(t, "b", st.ChatID)
	require.NotNil(t, st.Settings.LLM.Temperature)
	assert.Equal(t, 0.5, *st.Settings.LLM.Temperature)
	assert.Nil(t, h.chats.Snapshot().Err)
}

func TestSelect_LeavesOldRoomBeforeJoiningNew(t *testing.T) {
	h := newHarness(t)
	h.gw.addChat("a", nil)
	h.gw.addChat("b", nil)
	h.selectChat(t, "a")

	h.gw.resetCalls()
	require.NoError(t, h.chats.Select(context.Background(), "b"))

	rooms := append(withPrefix(h.gw.callLog(), "leave"), withPrefix(h.gw.callLog(), "join")...)
	assert.Equal(t, []string{"leave a", "join b"}, rooms)
	calls := h.gw.callLog()
	assert.Less(t, indexOf(calls, "leave a"), indexOf(calls, "join b"))
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}

func TestSelect_NotFound(t *testing.T) {
	h := newHarness(t)
	h.gw.addChat("a", nil)
	h.selectChat(t, "a")

	err := h.chats.Select(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNotFound))
	assert.Equal(t, "a", h.chats.Selected())
	assert.Equal(t, err, h.chats.Snapshot().Err)

	h.chats.ClearError()
	assert.Nil(t, h.chats.Snapshot().Err)
}

func TestApplyEvent(t *testing.T) {
	h := newHarness(t)
	at := epoch
	h.messages.SetMessages("a", []model.Message{
		{ID: 2, ChatID: "a", Role: model.RoleAssistant, Content: "second", SentAt: at.Add(2)},
		{ID: 1, ChatID: "a", Role: model.RoleUser, Content: "first", SentAt: at.Add(1)},
	})
	newMsg := &model.Message{ID: 3, ChatID: "a", Role: model.RoleUser, Content: "third", SentAt: at.Add(3)}

	t.Run("duplicate create", func(t *testing.T) {
		assert.True(t, h.messages.ApplyEvent(model.Event{Type: model.EventNewMessage, ChatID: "a", Message: newMsg}))
		assert.False(t, h.messages.ApplyEvent(model.Event{Type: model.EventNewMessage, ChatID: "a", Message: newMsg}))
		assert.Equal(t, []string{"first", "second", "third"}, contents(h.messages.Snapshot().Messages))
	})

	t.Run("delete unknown id", func(t *testing.T) {
		before := h.messages.Snapshot().Messages
		assert.NotPanics(t, func() {
			assert.False(t, h.messages.ApplyEvent(model.Event{Type: model.EventDeleteMessage, ChatID: "a", MessageID: 42}))
		})
		assert.Equal(t, before, h.messages.Snapshot().Messages)
		assert.Nil(t, h.messages.Snapshot().Err)
	})

	t.Run("update unknown id", func(t *testing.T) {
		ev := model.Event{Type: model.EventUpdateMessage, ChatID: "a", Message: &model.Message{ID: 42, Content: "x"}}
		assert.False(t, h.messages.ApplyEvent(ev))
	})

	t.Run("update in place", func(t *testing.T) {
		ev := model.Event{Type: model.EventUpdateMessage, ChatID: "a", Message: &model.Message{ID: 1, Content: "edited", SentAt: at.Add(9)}}
		assert.True(t, h.messages.ApplyEvent(ev))
		assert.Equal(t, []string{"edited", "second", "third"}, contents(h.messages.Snapshot().Messages))
	})

	t.Run("other chat", func(t *testing.T) {
		ev := model.Event{Type: model.EventNewMessage, ChatID: "b", Message: &model.Message{ID: 7, ChatID: "b", Content: "elsewhere"}}
		assert.False(t, h.messages.ApplyEvent(ev))
		assert.Len(t, h.messages.Snapshot().Messages, 3)
	})

	t.Run("late insert keeps order", func(t *testing.T) {
		ev := model.Event{Type: model.EventNewMessage, ChatID: "a", Message: &model.Message{ID: 9, ChatID: "a", Content: "between", SentAt: at.Add(2)}}
		assert.True(t, h.messages.ApplyEvent(ev))
		assert.Equal(t, []string{"edited", "second", "between", "third"}, contents(h.messages.Snapshot().Messages))
	})

	t.Run("delete", func(t *testing.T) {
		assert.True(t, h.messages.ApplyEvent(model.Event{Type: model.EventDeleteMessage, ChatID: "a", MessageID: 2}))
		assert.Equal(t, []string{"edited", "between", "third"}, contents(h.messages.Snapshot().Messages))
	})
}

func TestSettings_UpdateAndGenerationOptions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.gw.addChat("a", nil)
	h.selectChat(t, "a")

	tests := []struct {
		category string
		field    string
		value    any
		key      string
		want     any
	}{
		{"llm", "temperature", 0.7, "temperature", 0.7},
		{"llm", "seed", 42, "seed", 42},
		{"llm", "top_k", 40, "top_k", 40},
		{"llmSettings", "min_p", 0.05, "min_p", 0.05},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			require.NoError(t, h.settings.Update(ctx, tt.category, tt.field, tt.value))
			assert.Equal(t, tt.want, h.settings.GenerationOptions()[tt.key])

			require.NoError(t, h.settings.Update(ctx, tt.category, tt.field, nil))
			assert.NotContains(t, h.settings.GenerationOptions(), tt.key)
		})
	}

	require.NoError(t, h.settings.Update(ctx, "llm", "temperature", 0.3))
	stored := h.gw.chat("a").Settings
	require.NotNil(t, stored.LLM.Temperature)
	assert.Equal(t, 0.3, *stored.LLM.Temperature)

	require.NoError(t, h.settings.Update(ctx, "llm", "model", "llama3"))
	assert.NotContains(t, h.settings.GenerationOptions(), "model")
	assert.Equal(t, "llama3", h.settings.ModelName("default"))
}

func TestSettings_Failures(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.gw.addChat("a", nil)
	h.selectChat(t, "a")

	err := h.settings.Update(ctx, "llm", "warmth", 1)
	assert.True(t, errors.Is(err, model.ErrValidation))
	assert.Equal(t, err, h.settings.Snapshot().Err)

	h.gw.updateErr = &model.Error{Kind: model.KindServer, Op: "PUT /chats/{id}", Status: 500}
	err = h.settings.Update(ctx, "tts", "speed", 1.5)
	assert.True(t, errors.Is(err, model.ErrServer))
	speed := h.settings.Settings().TTS.Speed
	require.NotNil(t, speed, "local change survives a failed save")
	assert.Equal(t, 1.5, *speed)
}

func TestSettings_NoChatSelected(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.settings.Update(context.Background(), "stt", "language", "ru"))
	assert.Empty(t, withPrefix(h.gw.callLog(), "UpdateChat"))
}

func TestSettings_SaveOnlyTargetsHeldChat(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	voice := "b-voice"
	h.gw.addChat("a", nil)
	h.gw.addChat("b", &model.Settings{TTS: model.TTSSettings{Voice: &voice}})
	h.selectChat(t, "b")
	h.gw.resetCalls()

	err := h.settings.Save(ctx, "a")
	assert.True(t, errors.Is(err, model.ErrValidation))
	assert.Empty(t, withPrefix(h.gw.callLog(), "UpdateChat"))
	assert.Nil(t, h.gw.chat("a").Settings.TTS.Voice)

	require.NoError(t, h.settings.Save(ctx, "b"))
	assert.Equal(t, []string{"UpdateChat b"}, withPrefix(h.gw.callLog(), "UpdateChat"))
}

func TestSettings_UpdateFollowsSelection(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.gw.addChat("a", nil)
	h.gw.addChat("b", nil)
	h.selectChat(t, "a")
	require.NoError(t, h.chats.Select(ctx, "b"))
	h.gw.resetCalls()

	require.NoError(t, h.settings.Update(ctx, "tts", "voice", "alto"))
	assert.Equal(t, []string{"UpdateChat b"}, withPrefix(h.gw.callLog(), "UpdateChat"))
	assert.Nil(t, h.gw.chat("a").Settings.TTS.Voice)
	require.NotNil(t, h.gw.chat("b").Settings.TTS.Voice)
	assert.Equal(t, "alto", *h.gw.chat("b").Settings.TTS.Voice)
}

func TestSendMessage_PersistsBeforeGenerating(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.gw.addChat("a", nil)
	h.gw.addMessage("a", model.RoleAssistant, "welcome")
	h.selectChat(t, "a")
	h.gw.resetCalls()

	res, err := h.messages.SendMessage(ctx, "hi")
	require.NoError(t, err)

	assert.Equal(t, []string{"SendMessage a user", "Complete", "SendMessage a assistant"}, h.gw.callLog())
	assert.Equal(t, StateCompleted, res.State)
	require.NotNil(t, res.Reply)
	assert.Equal(t, "reply", res.Reply.Content)

	req := h.llm.lastRequest()
	require.NotNil(t, req)
	assert.Equal(t, "default-model", req.Model)
	assert.Equal(t, []model.ChatMessage{
		{Role: model.RoleAssistant, Content: "welcome"},
		{Role: model.RoleUser, Content: "hi"},
	}, req.Messages)
	assert.Empty(t, req.Options)

	snap := h.messages.Snapshot()
	assert.Equal(t, []string{"welcome", "hi", "reply"}, contents(snap.Messages))
	assert.False(t, snap.Generating)
}

func TestSendMessage_SystemPromptAndOptions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	prompt, name := "be brief", "llama3"
	h.gw.addChat("a", &model.Settings{LLM: model.LLMSettings{
		SystemPrompt: &prompt,
		Model:        &name,
		TopP:         float(0.9),
	}})
	h.selectChat(t, "a")

	_, err := h.messages.SendMessage(ctx, "hi")
	require.NoError(t, err)

	req := h.llm.lastRequest()
	assert.Equal(t, "llama3", req.Model)
	assert.Equal(t, map[string]any{"top_p": 0.9}, req.Options)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, model.ChatMessage{Role: model.RoleSystem, Content: "be brief"}, req.Messages[0])
}

func TestSendMessage_BlankIsNoop(t *testing.T) {
	h := newHarness(t)
	h.gw.addChat("a", nil)
	h.selectChat(t, "a")
	h.gw.resetCalls()

	for _, content := range []string{"", "   ", "\n\t"} {
		res, err := h.messages.SendMessage(context.Background(), content)
		require.NoError(t, err)
		assert.Equal(t, StateComposed, res.State)
	}
	assert.Empty(t, h.gw.callLog())
}

func TestSendMessage_NoChatIsNoop(t *testing.T) {
	h := newHarness(t)

	res, err := h.messages.SendMessage(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, StateComposed, res.State)
	assert.Empty(t, withPrefix(h.gw.callLog(), "SendMessage"))
}

func TestSendMessage_GenerationFailureKeepsUserMessage(t *testing.T) {
	h := newHarness(t)
	h.gw.addChat("a", nil)
	h.selectChat(t, "a")
	h.llm.err = errors.New("model crashed")

	res, err := h.messages.SendMessage(context.Background(), "hi")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrGeneration))
	assert.Equal(t, StateFailed, res.State)
	require.NotNil(t, res.User)

	snap := h.messages.Snapshot()
	assert.Equal(t, []string{"hi"}, contents(snap.Messages))
	assert.Equal(t, err, snap.Err)
	assert.Len(t, h.gw.stored("a"), 1)
}

func TestSendMessage_EmptyReply(t *testing.T) {
	h := newHarness(t)
	h.gw.addChat("a", nil)
	h.selectChat(t, "a")
	h.llm.reply = "  "

	_, err := h.messages.SendMessage(context.Background(), "hi")
	assert.True(t, errors.Is(err, model.ErrGeneration))
	assert.Len(t, h.gw.stored("a"), 1)
}

func TestSendMessage_ReplyAfterSwitchGoesToItsChat(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.gw.addChat("a", nil)
	h.gw.addChat("b", nil)
	h.gw.addMessage("b", model.RoleUser, "from b")
	h.selectChat(t, "a")

	h.llm.entered = make(chan struct{})
	h.llm.gate = make(chan struct{})
	done := make(chan *SendResult, 1)
	go func() {
		res, _ := h.messages.SendMessage(ctx, "hi")
		done <- res
	}()
	<-h.llm.entered

	require.NoError(t, h.chats.Select(ctx, "b"))
	close(h.llm.gate)
	res := <-done

	assert.Equal(t, StateCompleted, res.State)
	assert.True(t, res.Rerouted)
	assert.Equal(t, []string{"hi", "reply"}, contents(h.gw.stored("a")))
	snap := h.messages.Snapshot()
	assert.Equal(t, "b", snap.ChatID)
	assert.Equal(t, []string{"from b"}, contents(snap.Messages))
}

func TestSendMessage_ReplyAfterDeleteIsDiscarded(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.gw.addChat("a", nil)
	h.gw.addChat("b", nil)
	h.selectChat(t, "a")

	h.llm.entered = make(chan struct{})
	h.llm.gate = make(chan struct{})
	done := make(chan *SendResult, 1)
	go func() {
		res, _ := h.messages.SendMessage(ctx, "hi")
		done <- res
	}()
	<-h.llm.entered

	require.NoError(t, h.chats.Delete(ctx, "a"))
	close(h.llm.gate)
	res := <-done

	assert.True(t, res.Discarded)
	assert.Nil(t, res.Reply)
	assert.Empty(t, withPrefix(h.gw.callLog(), "SendMessage a assistant"))
	assert.Equal(t, "b", h.chats.Selected())
	assert.Empty(t, h.messages.Snapshot().Messages)
}

func TestSendMessage_ReplyDuringFailedDeleteIsKept(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.gw.addChat("a", nil)
	h.gw.addChat("b", nil)
	h.selectChat(t, "a")
	h.gw.deleteErr = &model.Error{Kind: model.KindServer, Op: "DELETE /chats/{id}", Status: 500}

	deleting := make(chan struct{})
	releaseDelete := make(chan struct{})
	h.gw.deleteHook = func(string) {
		close(deleting)
		<-releaseDelete
	}

	h.llm.entered = make(chan struct{})
	h.llm.gate = make(chan struct{})
	done := make(chan *SendResult, 1)
	go func() {
		res, _ := h.messages.SendMessage(ctx, "hi")
		done <- res
	}()
	<-h.llm.entered

	deleted := make(chan error, 1)
	go func() { deleted <- h.chats.Delete(ctx, "a") }()
	<-deleting
	close(h.llm.gate)

	select {
	case <-done:
		t.Fatal("reply settled before the delete was answered")
	case <-time.After(50 * time.Millisecond):
	}

	close(releaseDelete)
	assert.True(t, errors.Is(<-deleted, model.ErrServer))
	res := <-done

	assert.False(t, res.Discarded)
	assert.False(t, res.Rerouted)
	require.NotNil(t, res.Reply)
	assert.True(t, h.chats.Has("a"))
	assert.Equal(t, []string{"hi", "reply"}, contents(h.gw.stored("a")))
	assert.Equal(t, []string{"hi", "reply"}, contents(h.messages.Snapshot().Messages))
}

func TestMessageMutations(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.gw.addChat("a", nil)
	first := h.gw.addMessage("a", model.RoleUser, "one")
	second := h.gw.addMessage("a", model.RoleAssistant, "two")
	h.selectChat(t, "a")

	require.NoError(t, h.messages.UpdateMessage(ctx, first.ID, "uno"))
	assert.Equal(t, []string{"uno", "two"}, contents(h.messages.Snapshot().Messages))

	require.NoError(t, h.messages.DeleteMessage(ctx, second.ID))
	assert.Equal(t, []string{"uno"}, contents(h.messages.Snapshot().Messages))

	require.NoError(t, h.messages.DeleteMessage(ctx, second.ID), "already gone counts as deleted")

	err := h.messages.UpdateMessage(ctx, 999, "x")
	assert.True(t, errors.Is(err, model.ErrNotFound))

	require.NoError(t, h.messages.ClearMessages(ctx, "a"))
	assert.Empty(t, h.messages.Snapshot().Messages)
	assert.Empty(t, h.gw.stored("a"))
}

func TestAddChat_FromEmpty(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.chats.Initialize(ctx, ""))
	assert.Empty(t, h.chats.Snapshot().Chats)

	chat, err := h.chats.Add(ctx)
	require.NoError(t, err)

	snap := h.chats.Snapshot()
	require.Len(t, snap.Chats, 1)
	assert.Equal(t, chat.ID, snap.Chats[0].ID)
	assert.Equal(t, chat.ID, snap.Selected)
	msgs := h.messages.Snapshot()
	assert.Equal(t, chat.ID, msgs.ChatID)
	assert.Empty(t, msgs.Messages)
	assert.True(t, h.settings.Settings().IsZero())
}

func TestAddChat_Prepends(t *testing.T) {
	h := newHarness(t)
	h.gw.addChat("a", &model.Settings{TTS: model.TTSSettings{Speed: float(2)}})
	h.gw.addMessage("a", model.RoleUser, "old")
	h.selectChat(t, "a")

	chat, err := h.chats.Add(context.Background())
	require.NoError(t, err)

	snap := h.chats.Snapshot()
	assert.Equal(t, []string{chat.ID, "a"}, []string{snap.Chats[0].ID, snap.Chats[1].ID})
	assert.Empty(t, h.messages.Snapshot().Messages)
	assert.True(t, h.settings.Settings().IsZero())
}

func TestAddChat_RequiresUser(t *testing.T) {
	gw := newFakeGateway()
	auth := NewAuthStore(gw, nil, nil)
	settings := NewSettingsStore(gw, nil)
	messages := NewMessageStore(gw, &fakeLLM{}, settings, "m", nil)
	chats := NewChatStore(ChatDeps{Gateway: gw, Identity: auth, Settings: settings, Messages: messages})

	_, err := chats.Add(context.Background())
	assert.True(t, errors.Is(err, model.ErrAuth))
	assert.Empty(t, withPrefix(gw.callLog(), "StartChat"))
}

func TestDeleteChat_SelectionFallback(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.gw.addChat("a", nil)
	h.gw.addChat("b", &model.Settings{LLM: model.LLMSettings{Temperature: float(0.2)}})
	h.gw.addMessage("b", model.RoleUser, "from b")
	h.selectChat(t, "a")

	require.NoError(t, h.chats.Delete(ctx, "a"))
	assert.Equal(t, "b", h.chats.Selected())
	assert.Equal(t, []string{"from b"}, contents(h.messages.Snapshot().Messages))
	assert.NotNil(t, h.settings.Settings().LLM.Temperature)

	require.NoError(t, h.chats.Delete(ctx, "b"))
	snap := h.chats.Snapshot()
	assert.Empty(t, snap.Chats)
	assert.Empty(t, snap.Selected)
	assert.True(t, h.settings.Settings().IsZero())
	assert.Empty(t, h.settings.ChatID())
	assert.Empty(t, h.messages.Snapshot().Messages)
	assert.Empty(t, h.messages.ChatID())
	assert.Contains(t, h.gw.callLog(), "leave b")
}

func TestDeleteChat_UnselectedKeepsSelection(t *testing.T) {
	h := newHarness(t)
	h.gw.addChat("a", nil)
	h.gw.addChat("b", nil)
	h.selectChat(t, "a")

	require.NoError(t, h.chats.Delete(context.Background(), "b"))
	assert.Equal(t, "a", h.chats.Selected())
	assert.Len(t, h.chats.Snapshot().Chats, 1)
}

func TestDeleteChat_Failure(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantErr  bool
		wantKept bool
	}{
		{"server error restores", &model.Error{Kind: model.KindServer, Status: 500}, true, true},
		{"network error restores", &model.Error{Kind: model.KindNetwork}, true, true},
		{"not found counts as deleted", notFound("DELETE /chats/{id}"), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.gw.addChat("a", nil)
			h.gw.addChat("b", nil)
			h.gw.addChat("c", nil)
			h.selectChat(t, "c")
			h.gw.deleteErr = tt.err

			err := h.chats.Delete(context.Background(), "b")
			snap := h.chats.Snapshot()
			ids := make([]string, len(snap.Chats))
			for i, c := range snap.Chats {
				ids[i] = c.ID
			}

			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, err, snap.Err)
			} else {
				require.NoError(t, err)
			}
			if tt.wantKept {
				assert.Equal(t, []string{"a", "b", "c"}, ids)
			} else {
				assert.Equal(t, []string{"a", "c"}, ids)
			}
			assert.Equal(t, "c", snap.Selected)
		})
	}
}

func TestDeleteChat_Unknown(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.chats.Delete(context.Background(), "nope"))
	assert.Empty(t, withPrefix(h.gw.callLog(), "DeleteChat"))
}

func TestRenameChat_GeneratedTitle(t *testing.T) {
	for _, selected := range []bool{true, false} {
		name := "from log"
		if !selected {
			name = "from backend"
		}
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)
			h.gw.addChat("a", nil)
			h.gw.addChat("b", nil)
			h.gw.addMessage("a", model.RoleUser, "hello")
			h.gw.addMessage("a", model.RoleAssistant, "hi there")
			if selected {
				h.selectChat(t, "a")
			} else {
				h.selectChat(t, "b")
			}
			h.titler.reply = "  Приветствие \n"

			require.NoError(t, h.chats.Rename(ctx, "a", nil))

			req := h.titler.lastRequest()
			require.NotNil(t, req)
			assert.Equal(t, "title-model", req.Model)
			require.Len(t, req.Messages, 1)
			assert.Equal(t, TitlePrompt+"hello hi there", req.Messages[0].Content)

			assert.Equal(t, "Приветствие", *h.gw.chat("a").Title)
			chats := h.chats.Snapshot().Chats
			assert.Equal(t, "Приветствие", chats[0].DisplayTitle(""))
		})
	}
}

func TestRenameChat_Explicit(t *testing.T) {
	h := newHarness(t)
	h.gw.addChat("a", nil)
	h.selectChat(t, "a")
	title := "Weather"

	require.NoError(t, h.chats.Rename(context.Background(), "a", &title))
	assert.Nil(t, h.titler.lastRequest())
	assert.Equal(t, "Weather", h.chats.Snapshot().Chats[0].DisplayTitle(""))
}

func TestRenameChat_BlankTitleIsGenerated(t *testing.T) {
	h := newHarness(t)
	h.gw.addChat("a", nil)
	h.gw.addMessage("a", model.RoleUser, "hello")
	h.selectChat(t, "a")
	blank := "  "

	require.NoError(t, h.chats.Rename(context.Background(), "a", &blank))
	require.NotNil(t, h.titler.lastRequest())
	assert.Equal(t, "title", *h.gw.chat("a").Title)
}

func TestRenameChat_EmptyTitleIsError(t *testing.T) {
	h := newHarness(t)
	h.gw.addChat("a", nil)
	h.selectChat(t, "a")
	h.titler.reply = " "

	err := h.chats.Rename(context.Background(), "a", nil)
	assert.True(t, errors.Is(err, model.ErrGeneration))
	assert.Equal(t, err, h.chats.Snapshot().Err)
	assert.Nil(t, h.gw.chat("a").Title)
}

func TestInitialize(t *testing.T) {
	tests := []struct {
		name      string
		preferred string
		want      string
	}{
		{"preferred chat", "b", "b"},
		{"unknown preferred falls back to first", "zzz", "a"},
		{"no preference", "", "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.gw.addChat("a", nil)
			h.gw.addChat("b", nil)

			require.NoError(t, h.chats.Initialize(context.Background(), tt.preferred))
			assert.Equal(t, tt.want, h.chats.Selected())
		})
	}
}

func TestResync(t *testing.T) {
	h := newHarness(t)
	h.gw.addChat("a", nil)
	h.selectChat(t, "a")
	h.gw.addMessage("a", model.RoleUser, "missed while offline")

	require.NoError(t, h.chats.Resync(context.Background()))
	assert.Equal(t, []string{"missed while offline"}, contents(h.messages.Snapshot().Messages))
}

func TestReportError(t *testing.T) {
	h := newHarness(t)
	h.messages.ReportError(model.NewError(model.KindChannel, "realtime", "channel disconnected"))

	assert.True(t, errors.Is(h.messages.Snapshot().Err, model.ErrChannel))
}

func TestAuthStore(t *testing.T) {
	ctx := context.Background()
	file := &persist.File{Path: filepath.Join(t.TempDir(), "session.toml")}

	gw := newFakeGateway()
	auth := NewAuthStore(gw, file, nil)
	require.NoError(t, auth.Register(ctx, "anna", "anna@example.com", "secret"))
	assert.Equal(t, []string{"CreateUser", "Login", "CurrentUser"}, gw.callLog())
	assert.Equal(t, "tok", auth.Token())
	require.NotNil(t, auth.User())

	sess, err := file.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok", sess.Token)
	require.NotNil(t, sess.User)
	assert.Equal(t, int64(1), sess.User.ID)

	t.Run("restore", func(t *testing.T) {
		gw := newFakeGateway()
		restored := NewAuthStore(gw, file, nil)
		require.NoError(t, restored.Initialize(ctx))
		assert.Equal(t, "tok", gw.Token())
		require.NotNil(t, restored.User())
	})

	t.Run("expired token is dropped", func(t *testing.T) {
		expiredFile := &persist.File{Path: filepath.Join(t.TempDir(), "session.toml")}
		require.NoError(t, expiredFile.Save(&persist.Session{Token: "old", CurrentChat: "a"}))

		gw := newFakeGateway()
		expired := NewAuthStore(gw, expiredFile, nil)
		err := expired.Initialize(ctx)
		assert.True(t, errors.Is(err, model.ErrAuth))
		assert.Empty(t, gw.Token())
		assert.Nil(t, expired.User())

		sess, err := expiredFile.Load()
		require.NoError(t, err)
		assert.Empty(t, sess.Token)
	})

	require.NoError(t, auth.Logout(ctx))
	assert.Empty(t, gw.Token())
	assert.Nil(t, auth.User())
	sess, err = file.Load()
	require.NoError(t, err)
	assert.Empty(t, sess.Token)
	assert.Nil(t, sess.User)
}

func TestChatStore_PersistsSelection(t *testing.T) {
	file := &persist.File{Path: filepath.Join(t.TempDir(), "session.toml")}
	gw := newFakeGateway()
	gw.SetToken("tok")
	gw.addChat("a", nil)
	gw.addChat("b", nil)

	auth := NewAuthStore(gw, file, nil)
	settings := NewSettingsStore(gw, nil)
	messages := NewMessageStore(gw, &fakeLLM{reply: "r"}, settings, "m", nil)
	chats := NewChatStore(ChatDeps{Gateway: gw, Identity: auth, Settings: settings, Messages: messages, Session: file})

	require.NoError(t, chats.Initialize(context.Background(), "b"))
	sess, err := file.Load()
	require.NoError(t, err)
	assert.Equal(t, "b", sess.CurrentChat)
}

func TestChatStore_Reset(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.gw.addChat("a", &model.Settings{LLM: model.LLMSettings{Temperature: float(0.2)}})
	h.gw.addMessage("a", model.RoleUser, "hello")
	h.selectChat(t, "a")
	h.gw.resetCalls()

	h.chats.Reset()

	assert.Equal(t, []string{"leave a"}, withPrefix(h.gw.callLog(), "leave"))
	state := h.chats.Snapshot()
	assert.Empty(t, state.Chats)
	assert.Empty(t, state.Selected)
	assert.Empty(t, h.settings.ChatID())
	assert.Empty(t, h.settings.GenerationOptions())
	assert.Empty(t, h.messages.ChatID())
	assert.Empty(t, h.messages.Snapshot().Messages)

	err := h.settings.Save(ctx, "a")
	assert.True(t, errors.Is(err, model.ErrValidation))
	assert.Empty(t, withPrefix(h.gw.callLog(), "UpdateChat"))
}
