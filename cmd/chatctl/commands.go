package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/capitalize-ai/chatsync/internal/store"
	"github.com/capitalize-ai/chatsync/internal/telephony"
)

type command struct {
	usage string
	help  string
	run   func(a *app, ctx context.Context, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"/help":     {"", "show commands", (*app).cmdHelp},
		"/register": {"<username> <email> <password>", "create an account and log in", (*app).cmdRegister},
		"/login":    {"<email> <password>", "log in", (*app).cmdLogin},
		"/logout":   {"", "log out", (*app).cmdLogout},
		"/whoami":   {"", "show the current user", (*app).cmdWhoami},
		"/chats":    {"", "list chats", (*app).cmdChats},
		"/new":      {"", "start a chat", (*app).cmdNew},
		"/select":   {"<n|id>", "open a chat", (*app).cmdSelect},
		"/delete":   {"<n|id>", "delete a chat", (*app).cmdDelete},
		"/rename":   {"<n|id> [title]", "rename a chat; without a title one is generated", (*app).cmdRename},
		"/log":      {"", "show messages of the open chat", (*app).cmdLog},
		"/edit":     {"<message id> <text>", "replace a message", (*app).cmdEdit},
		"/rm":       {"<message id>", "delete a message", (*app).cmdRemove},
		"/clear":    {"", "delete every message of the open chat", (*app).cmdClear},
		"/settings": {"", "show settings of the open chat", (*app).cmdSettings},
		"/set":      {"<category> <field> <value|null>", "change one setting", (*app).cmdSet},
		"/save":     {"", "save settings of the open chat", (*app).cmdSave},
		"/models":   {"", "list available models", (*app).cmdModels},
		"/call":     {"", "call the configured number for the open chat", (*app).cmdCall},
		"/resync":   {"", "reload messages of the open chat", (*app).cmdResync},
		"/quit":     {"", "exit", nil},
	}
}

func completeCommand(line string) []string {
	if !strings.HasPrefix(line, "/") || strings.Contains(line, " ") {
		return nil
	}
	var out []string
	for name := range commands {
		if strings.HasPrefix(name, line) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// dispatch runs one input line and reports whether the client should exit.
func (a *app) dispatch(ctx context.Context, input string) (bool, error) {
	if !strings.HasPrefix(input, "/") {
		return false, a.send(ctx, input)
	}

	fields := strings.Fields(input)
	cmd, ok := commands[fields[0]]
	if !ok {
		return false, fmt.Errorf("unknown command %s, try /help", fields[0])
	}
	if cmd.run == nil {
		return true, nil
	}
	return false, cmd.run(a, ctx, fields[1:])
}

func (a *app) send(ctx context.Context, content string) error {
	if a.chats.Selected() == "" {
		return fmt.Errorf("no chat is open, use /new or /select")
	}
	res, err := a.messages.SendMessage(ctx, content)
	if err != nil {
		if res != nil && res.State == store.StateFailed && res.User != nil {
			fmt.Fprintln(a.out, "message saved, but no reply was generated")
		}
		return err
	}
	switch {
	case res.Discarded:
		fmt.Fprintln(a.out, "chat was deleted before the reply arrived")
	case res.Rerouted:
		fmt.Fprintf(a.out, "reply saved to chat %s\n", shortID(res.ChatID))
	case res.Reply != nil:
		fmt.Fprintf(a.out, "\n%s\n\n", res.Reply.Content)
	}
	return nil
}

func (a *app) cmdHelp(_ context.Context, _ []string) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := commands[name]
		fmt.Fprintf(a.out, "  %-10s %-32s %s\n", name, c.usage, c.help)
	}
	fmt.Fprintln(a.out, "  anything else is sent to the open chat")
	return nil
}

func (a *app) cmdRegister(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return usage("/register")
	}
	if err := a.auth.Register(ctx, args[0], args[1], args[2]); err != nil {
		return err
	}
	return a.afterLogin(ctx)
}

func (a *app) cmdLogin(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usage("/login")
	}
	if err := a.auth.Login(ctx, args[0], args[1]); err != nil {
		return err
	}
	return a.afterLogin(ctx)
}

func (a *app) afterLogin(ctx context.Context) error {
	fmt.Fprintf(a.out, "logged in as %s\n", a.auth.User().Username)
	if err := a.chats.Initialize(ctx, ""); err != nil {
		return err
	}
	a.printChats()
	return nil
}

func (a *app) cmdLogout(ctx context.Context, _ []string) error {
	a.chats.Reset()
	err := a.auth.Logout(ctx)
	fmt.Fprintln(a.out, "logged out")
	return err
}

func (a *app) cmdWhoami(_ context.Context, _ []string) error {
	u := a.auth.User()
	if u == nil {
		fmt.Fprintln(a.out, "not logged in")
		return nil
	}
	fmt.Fprintf(a.out, "%s <%s> id=%d\n", u.Username, u.Email, u.ID)
	return nil
}

func (a *app) cmdChats(ctx context.Context, _ []string) error {
	if err := a.chats.Refresh(ctx); err != nil {
		return err
	}
	a.printChats()
	return nil
}

func (a *app) printChats() {
	snap := a.chats.Snapshot()
	if len(snap.Chats) == 0 {
		fmt.Fprintln(a.out, "no chats yet, use /new")
		return
	}
	for i, c := range snap.Chats {
		mark := " "
		if c.ID == snap.Selected {
			mark = "*"
		}
		fmt.Fprintf(a.out, "%s %2d  %-30s %s  %s\n", mark, i+1, c.DisplayTitle("(untitled)"), shortID(c.ID), c.StartTime.Local().Format("2006-01-02 15:04"))
	}
}

func (a *app) cmdNew(ctx context.Context, _ []string) error {
	chat, err := a.chats.Add(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "started chat %s\n", shortID(chat.ID))
	return nil
}

func (a *app) cmdSelect(ctx context.Context, args []string) error {
	id, err := a.resolveChat(args)
	if err != nil {
		return err
	}
	if err := a.chats.Select(ctx, id); err != nil {
		return err
	}
	return a.cmdLog(ctx, nil)
}

func (a *app) cmdDelete(ctx context.Context, args []string) error {
	id, err := a.resolveChat(args)
	if err != nil {
		return err
	}
	if err := a.chats.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "deleted chat %s\n", shortID(id))
	return nil
}

func (a *app) cmdRename(ctx context.Context, args []string) error {
	id, err := a.resolveChat(args)
	if err != nil {
		return err
	}
	var title *string
	if len(args) > 1 {
		t := strings.Join(args[1:], " ")
		title = &t
	}
	if err := a.chats.Rename(ctx, id, title); err != nil {
		return err
	}
	a.printChats()
	return nil
}

// resolveChat accepts a 1-based position in the chat list or an id prefix.
func (a *app) resolveChat(args []string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("which chat? give a number from /chats or an id")
	}
	chats := a.chats.Snapshot().Chats
	if n, err := strconv.Atoi(args[0]); err == nil {
		if n < 1 || n > len(chats) {
			return "", fmt.Errorf("no chat number %d", n)
		}
		return chats[n-1].ID, nil
	}
	var match string
	for _, c := range chats {
		if strings.HasPrefix(c.ID, args[0]) {
			if match != "" {
				return "", fmt.Errorf("id prefix %q is ambiguous", args[0])
			}
			match = c.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("no chat with id %q", args[0])
	}
	return match, nil
}

func (a *app) cmdLog(_ context.Context, _ []string) error {
	snap := a.messages.Snapshot()
	if snap.ChatID == "" {
		return fmt.Errorf("no chat is open")
	}
	if len(snap.Messages) == 0 {
		fmt.Fprintln(a.out, "(no messages)")
	}
	for _, m := range snap.Messages {
		fmt.Fprintf(a.out, "[%d] %s %-9s %s\n", m.ID, m.SentAt.Local().Format("15:04:05"), m.Role, m.Content)
	}
	if snap.Err != nil {
		fmt.Fprintf(a.out, "last error: %v\n", snap.Err)
	}
	return nil
}

func (a *app) cmdEdit(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return usage("/edit")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid message id %q", args[0])
	}
	return a.messages.UpdateMessage(ctx, id, strings.Join(args[1:], " "))
}

func (a *app) cmdRemove(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("/rm")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid message id %q", args[0])
	}
	return a.messages.DeleteMessage(ctx, id)
}

func (a *app) cmdClear(ctx context.Context, _ []string) error {
	id := a.chats.Selected()
	if id == "" {
		return fmt.Errorf("no chat is open")
	}
	return a.messages.ClearMessages(ctx, id)
}

func (a *app) cmdSettings(_ context.Context, _ []string) error {
	data, err := json.MarshalIndent(a.settings.Settings(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, string(data))
	return nil
}

func (a *app) cmdSet(ctx context.Context, args []string) error {
	if len(args) < 3 {
		return usage("/set")
	}
	return a.settings.Update(ctx, args[0], args[1], parseValue(strings.Join(args[2:], " ")))
}

// parseValue reads a setting value as JSON, falling back to a plain string.
// "null" disables the field.
func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

func (a *app) cmdSave(ctx context.Context, _ []string) error {
	id := a.chats.Selected()
	if id == "" {
		return fmt.Errorf("no chat is open")
	}
	return a.settings.Save(ctx, id)
}

func (a *app) cmdModels(ctx context.Context, _ []string) error {
	models, err := a.llm.Models(ctx)
	if err != nil {
		return err
	}
	current := a.settings.ModelName(a.cfg.DefaultModel)
	for _, m := range models {
		mark := " "
		if m == current {
			mark = "*"
		}
		fmt.Fprintf(a.out, "%s %s\n", mark, m)
	}
	return nil
}

func (a *app) cmdCall(ctx context.Context, _ []string) error {
	id := a.chats.Selected()
	if id == "" {
		return fmt.Errorf("no chat is open")
	}
	tel := a.settings.Settings().Telephony
	endpoint, err := telephony.EndpointFor(tel)
	if err != nil {
		return err
	}
	resp, err := a.phone.ForSettings(tel).Originate(ctx, endpoint, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s (channel %s)\n", resp.Message, resp.ChannelID)
	return nil
}

func (a *app) cmdResync(ctx context.Context, _ []string) error {
	if err := a.chats.Resync(ctx); err != nil {
		return err
	}
	return a.cmdLog(ctx, nil)
}

func usage(name string) error {
	return fmt.Errorf("usage: %s %s", name, commands[name].usage)
}
