package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/capitalize-ai/chatsync/internal/llm"
	"github.com/capitalize-ai/chatsync/internal/model"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeGateway is an in-memory backend that logs every call in order.
type fakeGateway struct {
	mu         sync.Mutex
	calls      []string
	token      string
	validToken string
	user       model.User
	chats      map[string]*model.Chat
	order      []string
	messages   map[string][]model.Message
	nextMsgID  int64
	nextChat   int

	getChatHook func(id string)
	deleteHook  func(id string)
	deleteErr   error
	updateErr   error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		validToken: "tok",
		user:       model.User{ID: 1, Username: "anna", Email: "anna@example.com", CreatedAt: epoch, UpdatedAt: epoch},
		chats:      map[string]*model.Chat{},
		messages:   map[string][]model.Message{},
	}
}

func (f *fakeGateway) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeGateway) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeGateway) resetCalls() {
	f.mu.Lock()
	f.calls = nil
	f.mu.Unlock()
}

func (f *fakeGateway) addChat(id string, s *model.Settings) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s == nil {
		s = &model.Settings{}
	}
	f.chats[id] = &model.Chat{ID: id, UserID: f.user.ID, StartTime: epoch, Settings: s}
	f.order = append(f.order, id)
}

func (f *fakeGateway) addMessage(chatID string, role model.Role, content string) model.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.appendLocked(chatID, role, content)
}

func (f *fakeGateway) appendLocked(chatID string, role model.Role, content string) model.Message {
	f.nextMsgID++
	m := model.Message{
		ID:      f.nextMsgID,
		ChatID:  chatID,
		Role:    role,
		Content: content,
		SentAt:  epoch.Add(time.Duration(f.nextMsgID) * time.Second),
	}
	f.messages[chatID] = append(f.messages[chatID], m)
	return m
}

func (f *fakeGateway) stored(chatID string) []model.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Message(nil), f.messages[chatID]...)
}

func (f *fakeGateway) chat(id string) *model.Chat {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.chats[id]
	if !ok {
		return nil
	}
	cp := *c
	return &cp
}

func notFound(op string) error {
	return &model.Error{Kind: model.KindNotFound, Op: op, Message: "not found", Status: 404}
}

func (f *fakeGateway) CreateUser(_ context.Context, req model.RegisterRequest) (*model.User, error) {
	f.record("CreateUser")
	u := f.user
	u.Username, u.Email = req.Username, req.Email
	return &u, nil
}

func (f *fakeGateway) Login(context.Context, string, string) (string, error) {
	f.record("Login")
	return f.validToken, nil
}

func (f *fakeGateway) Logout(context.Context) error {
	f.record("Logout")
	return nil
}

func (f *fakeGateway) CurrentUser(context.Context) (*model.User, error) {
	f.record("CurrentUser")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.token != f.validToken {
		return nil, &model.Error{Kind: model.KindAuth, Op: "GET /users/me", Status: 401}
	}
	u := f.user
	return &u, nil
}

func (f *fakeGateway) SetToken(token string) {
	f.mu.Lock()
	f.token = token
	f.mu.Unlock()
}

func (f *fakeGateway) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeGateway) StartChat(_ context.Context, userID int64) (*model.Chat, error) {
	f.record("StartChat")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextChat++
	c := &model.Chat{ID: fmt.Sprintf("new-%d", f.nextChat), UserID: userID, StartTime: epoch, Settings: &model.Settings{}}
	f.chats[c.ID] = c
	f.order = append([]string{c.ID}, f.order...)
	cp := *c
	return &cp, nil
}

func (f *fakeGateway) ListChats(context.Context) ([]model.Chat, error) {
	f.record("ListChats")
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Chat, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, *f.chats[id])
	}
	return out, nil
}

func (f *fakeGateway) GetChat(_ context.Context, id string) (*model.Chat, error) {
	f.record("GetChat " + id)
	if f.getChatHook != nil {
		f.getChatHook(id)
	}
	c := f.chat(id)
	if c == nil {
		return nil, notFound("GET /chats/{id}")
	}
	c.Settings = c.Settings.Clone()
	return c, nil
}

func (f *fakeGateway) UpdateChat(_ context.Context, id string, u model.ChatUpdate) (*model.Chat, error) {
	f.record("UpdateChat " + id)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	c, ok := f.chats[id]
	if !ok {
		return nil, notFound("PUT /chats/{id}")
	}
	if u.Title != nil {
		t := *u.Title
		c.Title = &t
	}
	if u.Settings != nil {
		c.Settings = u.Settings.Clone()
	}
	cp := *c
	return &cp, nil
}

func (f *fakeGateway) DeleteChat(_ context.Context, id string) error {
	f.record("DeleteChat " + id)
	if f.deleteHook != nil {
		f.deleteHook(id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.chats[id]; !ok {
		return notFound("DELETE /chats/{id}")
	}
	delete(f.chats, id)
	delete(f.messages, id)
	for i, o := range f.order {
		if o == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeGateway) SendMessage(_ context.Context, chatID string, role model.Role, content string) (*model.Message, error) {
	f.record(fmt.Sprintf("SendMessage %s %s", chatID, role))
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.chats[chatID]; !ok {
		return nil, notFound("POST /messages")
	}
	m := f.appendLocked(chatID, role, content)
	return &m, nil
}

func (f *fakeGateway) ListMessages(_ context.Context, chatID string) ([]model.Message, error) {
	f.record("ListMessages " + chatID)
	return f.stored(chatID), nil
}

func (f *fakeGateway) UpdateMessage(_ context.Context, id int64, content string) (*model.Message, error) {
	f.record(fmt.Sprintf("UpdateMessage %d", id))
	f.mu.Lock()
	defer f.mu.Unlock()
	for chatID, msgs := range f.messages {
		for i := range msgs {
			if msgs[i].ID == id {
				msgs[i].Content = content
				m := msgs[i]
				m.ChatID = chatID
				return &m, nil
			}
		}
	}
	return nil, notFound("PUT /messages/{id}")
}

func (f *fakeGateway) DeleteMessage(_ context.Context, id int64) error {
	f.record(fmt.Sprintf("DeleteMessage %d", id))
	f.mu.Lock()
	defer f.mu.Unlock()
	for chatID, msgs := range f.messages {
		for i := range msgs {
			if msgs[i].ID == id {
				f.messages[chatID] = append(msgs[:i], msgs[i+1:]...)
				return nil
			}
		}
	}
	return notFound("DELETE /messages/{id}")
}

func (f *fakeGateway) ClearMessages(_ context.Context, chatID string) error {
	f.record("ClearMessages " + chatID)
	f.mu.Lock()
	delete(f.messages, chatID)
	f.mu.Unlock()
	return nil
}

// fakeLLM answers with a fixed reply. With gate set it signals entered and
// waits for the gate before answering.
type fakeLLM struct {
	gw      *fakeGateway
	reply   string
	err     error
	entered chan struct{}
	gate    chan struct{}

	mu   sync.Mutex
	reqs []*llm.CompletionRequest
}

func (l *fakeLLM) Name() string { return "fake" }

func (l *fakeLLM) Models(context.Context) ([]string, error) { return []string{"fake:1"}, nil }

func (l *fakeLLM) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if l.gw != nil {
		l.gw.record("Complete")
	}
	l.mu.Lock()
	l.reqs = append(l.reqs, req)
	l.mu.Unlock()

	if l.gate != nil {
		close(l.entered)
		<-l.gate
	}
	if l.err != nil {
		return nil, l.err
	}
	return &llm.CompletionResponse{Content: l.reply, Model: req.Model}, nil
}

func (l *fakeLLM) lastRequest() *llm.CompletionRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.reqs) == 0 {
		return nil
	}
	return l.reqs[len(l.reqs)-1]
}

// fakeRooms logs joins and leaves into the gateway's call log.
type fakeRooms struct {
	gw *fakeGateway
}

func (r fakeRooms) JoinChat(id string) error {
	r.gw.record("join " + id)
	return nil
}

func (r fakeRooms) LeaveChat(id string) error {
	r.gw.record("leave " + id)
	return nil
}

func contents(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func withPrefix(calls []string, prefix string) []string {
	var out []string
	for _, c := range calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}
