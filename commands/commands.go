// Package commands implements the permission chat commands: mods,
// permission and permissionpoints. Each runs on the permission engine
// goroutine so it sees and changes state like any other event.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/onnwee/modkeeper/permissions"
	"github.com/onnwee/modkeeper/telemetry"
)

// maxListedMods is the longest moderator list sent to chat.
const maxListedMods = 20

// Sayer sends a message to chat.
type Sayer interface {
	Say(message string)
}

// Invocation is one parsed chat command.
type Invocation struct {
	Sender  string
	Command string
	Args    []string
}

// Parse splits text into a command when it starts with prefix.
func Parse(prefix, sender, text string) (Invocation, bool) {
	text = strings.TrimSpace(text)
	if prefix == "" || !strings.HasPrefix(text, prefix) {
		return Invocation{}, false
	}
	fields := strings.Fields(strings.TrimPrefix(text, prefix))
	if len(fields) == 0 {
		return Invocation{}, false
	}
	return Invocation{Sender: sender, Command: strings.ToLower(fields[0]), Args: fields[1:]}, true
}

// Handler answers permission commands.
type Handler struct {
	engine *permissions.Engine
	say    Sayer
}

// New returns a Handler replying through say.
func New(engine *permissions.Engine, say Sayer) *Handler {
	return &Handler{engine: engine, say: say}
}

// Handles reports whether name is one of this package's commands.
func Handles(name string) bool {
	switch strings.ToLower(name) {
	case "mods", "permission", "permissionpoints":
		return true
	}
	return false
}

// Handle runs inv on the engine goroutine. Unknown commands are ignored.
func (h *Handler) Handle(ctx context.Context, inv Invocation) error {
	if !Handles(inv.Command) {
		return nil
	}
	return h.engine.Do(ctx, func(ctx context.Context) {
		h.run(ctx, inv)
	})
}

func (h *Handler) run(ctx context.Context, inv Invocation) {
	p := h.engine.Permissions()
	cmd := strings.ToLower(inv.Command)
	if !p.IsAdmin(inv.Sender) {
		slog.Debug("command denied",
			slog.String("component", "commands"),
			slog.String("command", cmd),
			slog.String("user", inv.Sender))
		telemetry.RecordCommand(cmd + "_denied")
		return
	}
	telemetry.RecordCommand(cmd)
	switch cmd {
	case "mods":
		h.mods(inv)
	case "permission":
		h.permission(ctx, inv)
	case "permissionpoints":
		h.permissionPoints(ctx, inv)
	}
}

func (h *Handler) reply(inv Invocation, format string, args ...any) {
	h.say.Say("@" + inv.Sender + ", " + fmt.Sprintf(format, args...))
}

func (h *Handler) mods(inv Invocation) {
	mods := h.engine.Permissions().UsernamesInGroup(permissions.Moderator)
	if len(mods) > maxListedMods {
		h.reply(inv, "there are too many moderators to list (%d).", len(mods))
		return
	}
	h.reply(inv, "moderators in chat: %s", strings.Join(mods, ", "))
}

func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func (h *Handler) permission(ctx context.Context, inv Invocation) {
	p := h.engine.Permissions()
	action, user, value := strings.ToLower(arg(inv.Args, 0)), arg(inv.Args, 1), arg(inv.Args, 2)
	switch action {
	case "set":
		id, err := strconv.Atoi(value)
		if user == "" || err != nil {
			h.reply(inv, "usage: !permission set [username] [permission id]")
			return
		}
		h.reply(inv, "permission for %s has been changed to %s", user, permissions.NameOf(id))
		p.SetGroup(ctx, user, id)
	case "get":
		if user == "" {
			h.reply(inv, "usage: !permission get [username]")
			return
		}
		h.reply(inv, "permission for %s is currently set to %s", user, p.GroupName(user))
	case "list":
		parts := make([]string, 0, permissions.GroupCount)
		for _, g := range permissions.Groups() {
			parts = append(parts, fmt.Sprintf("(%d - %s)", g, g))
		}
		h.reply(inv, "current permissions: %s", strings.Join(parts, ", "))
	default:
		h.reply(inv, "usage: !permission [set / get / list]")
	}
}

func (h *Handler) permissionPoints(ctx context.Context, inv Invocation) {
	rawID, mode, rawAmount := arg(inv.Args, 0), strings.ToLower(arg(inv.Args, 1)), arg(inv.Args, 2)
	id, err := strconv.Atoi(rawID)
	if err != nil || mode == "" || id < 0 || id >= permissions.GroupCount {
		h.reply(inv, "usage: !permissionpoints [permission id] [online / offline]")
		return
	}
	if mode != "online" && mode != "offline" {
		h.reply(inv, "usage: !permissionpoints [permission id] [online / offline]")
		return
	}
	amount, err := strconv.Atoi(rawAmount)
	if err != nil {
		h.reply(inv, "usage: !permissionpoints [permission id] %s [amount] - using -1 will reset to default settings.", mode)
		return
	}
	g := permissions.GroupID(id)
	h.engine.Permissions().SetPointMultiplier(ctx, g, mode == "online", amount)
	h.reply(inv, "%s points for %s set to %d.", mode, g, amount)
}
