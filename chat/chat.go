package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"
	"golang.org/x/time/rate"

	"github.com/onnwee/modkeeper/commands"
	"github.com/onnwee/modkeeper/permissions"
	"github.com/onnwee/modkeeper/telemetry"
)

// Submitter accepts chat events for the permission engine.
type Submitter interface {
	Submit(ctx context.Context, ev permissions.Event) error
}

// Toucher records usernames seen in the channel.
type Toucher interface {
	Touch(names ...string)
}

// CommandHandler runs a parsed chat command.
type CommandHandler interface {
	Handle(ctx context.Context, inv commands.Invocation) error
}

// Config holds the connection settings for a Bot.
type Config struct {
	Channel  string
	Username string
	Token    string
	Prefix   string
	// SayRate is the number of outbound messages allowed per 30 seconds.
	SayRate   int
	SayBuffer int
}

// Bot connects to Twitch chat and turns what it sees into permission events.
type Bot struct {
	cfg      Config
	client   *twitch.Client
	events   Submitter
	presence Toucher
	commands CommandHandler

	out     chan string
	limiter *rate.Limiter
	send    func(channel, text string)
}

// NewBot returns a Bot for cfg. presence and cmds may be nil.
func NewBot(cfg Config, events Submitter, presence Toucher, cmds CommandHandler) *Bot {
	cfg.Channel = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(cfg.Channel)), "#")
	if cfg.SayRate <= 0 {
		cfg.SayRate = 20
	}
	if cfg.SayBuffer <= 0 {
		cfg.SayBuffer = 64
	}
	token := cfg.Token
	if token != "" && !strings.HasPrefix(token, "oauth:") {
		token = "oauth:" + token
	}
	client := twitch.NewClient(cfg.Username, token)
	client.Capabilities = []string{twitch.TagsCapability, twitch.CommandsCapability, twitch.MembershipCapability}
	b := &Bot{
		cfg:      cfg,
		client:   client,
		events:   events,
		presence: presence,
		commands: cmds,
		out:      make(chan string, cfg.SayBuffer),
		limiter:  rate.NewLimiter(rate.Every(30*time.Second/time.Duration(cfg.SayRate)), 1),
	}
	b.send = client.Say
	return b
}

// SetCommands installs the command handler. It must be called before Run.
func (b *Bot) SetCommands(cmds CommandHandler) { b.commands = cmds }

// Say queues message for the channel. It never blocks; when the queue is full
// the message is dropped.
func (b *Bot) Say(message string) {
	message = strings.TrimSpace(message)
	if message == "" {
		return
	}
	select {
	case b.out <- message:
	default:
		telemetry.IncCounter(telemetry.ChatSayDropped)
		slog.Warn("chat say queue full, dropping message", slog.String("component", "chat"))
	}
}

// Run connects, joins the channel and dispatches chat until ctx is cancelled.
// Failed connections are retried with a growing delay.
func (b *Bot) Run(ctx context.Context) error {
	if b.cfg.Channel == "" || b.cfg.Username == "" || b.cfg.Token == "" {
		return errors.New("chat: channel, username and token are required")
	}
	b.register(ctx)
	b.client.Join(b.cfg.Channel)

	go b.sender(ctx)
	go func() {
		<-ctx.Done()
		if err := b.client.Disconnect(); err != nil && !errors.Is(err, twitch.ErrConnectionIsNotOpen) {
			slog.Debug("chat disconnect", slog.Any("err", err), slog.String("component", "chat"))
		}
	}()

	backoff := time.Second
	for {
		err := b.client.Connect()
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, twitch.ErrLoginAuthenticationFailed) {
			return fmt.Errorf("chat login failed: %w", err)
		}
		slog.Warn("chat connection lost", slog.Any("err", err), slog.Duration("retry_in", backoff), slog.String("component", "chat"))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if backoff < time.Minute {
			backoff *= 2
		}
	}
}

func (b *Bot) register(ctx context.Context) {
	b.client.OnConnect(func() {
		slog.Info("chat connected", slog.String("channel", b.cfg.Channel), slog.String("component", "chat"))
	})
	b.client.OnPrivateMessage(func(m twitch.PrivateMessage) { b.onPrivateMessage(ctx, m) })
	b.client.OnUserJoinMessage(func(m twitch.UserJoinMessage) { b.onJoin(ctx, m.Channel, m.User) })
	b.client.OnUserPartMessage(func(m twitch.UserPartMessage) { b.onPart(ctx, m.Channel, m.User) })
	b.client.OnNamesMessage(func(m twitch.NamesMessage) { b.onNames(m.Channel, m.Users) })
	b.client.OnNoticeMessage(func(m twitch.NoticeMessage) { b.onNotice(ctx, m.Channel, m.MsgID, m.Message) })
	b.client.OnUserNoticeMessage(func(m twitch.UserNoticeMessage) { b.onUserNotice(ctx, m) })
	b.client.OnUnsetMessage(func(m twitch.RawMessage) { b.onRaw(ctx, m.Raw) })
}

func (b *Bot) ours(channel string) bool {
	return strings.EqualFold(strings.TrimPrefix(channel, "#"), b.cfg.Channel)
}

func (b *Bot) submit(ctx context.Context, ev permissions.Event) {
	if err := b.events.Submit(ctx, ev); err != nil && ctx.Err() == nil {
		slog.Warn("dropping chat event", slog.String("kind", string(ev.Kind())), slog.Any("err", err), slog.String("component", "chat"))
	}
}

func (b *Bot) touch(names ...string) {
	if b.presence != nil {
		b.presence.Touch(names...)
	}
}

func (b *Bot) onPrivateMessage(ctx context.Context, m twitch.PrivateMessage) {
	if !b.ours(m.Channel) {
		return
	}
	sender := m.User.Name
	if sender == "" {
		return
	}
	tags := tagsFrom(m.Tags)
	b.touch(sender)
	b.submit(ctx, permissions.MessageEvent{Sender: sender, Tags: tags})
	// Moderators are tracked through MODE and the roster; a subscriber badge
	// must not pull them down to the Subscriber tier.
	if !tags.Moderator {
		b.submit(ctx, permissions.SpecialUserEvent{Username: sender, Subscriber: tags.Subscriber})
	}

	if b.commands == nil {
		return
	}
	inv, ok := commands.Parse(b.cfg.Prefix, sender, m.Message)
	if !ok || !commands.Handles(inv.Command) {
		return
	}
	if err := b.commands.Handle(ctx, inv); err != nil && ctx.Err() == nil {
		slog.Warn("command failed", slog.String("command", inv.Command), slog.Any("err", err), slog.String("component", "chat"))
	}
}

func (b *Bot) onJoin(ctx context.Context, channel, user string) {
	if !b.ours(channel) || user == "" {
		return
	}
	b.touch(user)
	b.submit(ctx, permissions.JoinEvent{Username: user})
}

func (b *Bot) onPart(ctx context.Context, channel, user string) {
	if !b.ours(channel) || user == "" {
		return
	}
	b.submit(ctx, permissions.LeaveEvent{Username: user})
}

func (b *Bot) onNames(channel string, users []string) {
	if !b.ours(channel) {
		return
	}
	b.touch(users...)
}

func (b *Bot) onNotice(ctx context.Context, channel, msgID, text string) {
	if !b.ours(channel) {
		return
	}
	switch msgID {
	case "room_mods", "no_mods":
		b.submit(ctx, permissions.RosterEvent{Moderators: parseRoster(text)})
	}
}

func (b *Bot) onUserNotice(ctx context.Context, m twitch.UserNoticeMessage) {
	if !b.ours(m.Channel) {
		return
	}
	for _, name := range subscribersIn(m.MsgID, m.User.Name, m.MsgParams) {
		b.submit(ctx, permissions.SpecialUserEvent{Username: name, Subscriber: true})
	}
}

func (b *Bot) onRaw(ctx context.Context, raw string) {
	channel, ev, ok := parseMode(raw)
	if !ok || !b.ours(channel) {
		return
	}
	b.submit(ctx, ev)
}

// sender drains the outbound queue at the configured pace.
func (b *Bot) sender(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.out:
			if err := b.limiter.Wait(ctx); err != nil {
				return
			}
			b.send(b.cfg.Channel, msg)
			telemetry.IncCounter(telemetry.ChatSaid)
		}
	}
}
