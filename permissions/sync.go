package permissions

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
)

// materialize creates name in the registry if absent, marking first-time
// visitors and asking the subscription checker about newcomers.
func (e *Engine) materialize(ctx context.Context, name string) {
	if e.perms.reg.Exists(name) {
		return
	}
	if !exists(ctx, e.perms.store, SectionVisited, name) {
		SetBool(ctx, e.perms.store, SectionVisited, name, true)
	}
	e.perms.reg.GetOrCreate(ctx, name)
	if e.subs != nil {
		e.subs.Check(name)
	}
}

func (e *Engine) handleJoin(ctx context.Context, ev JoinEvent) {
	if name := Normalize(ev.Username); name != "" {
		e.materialize(ctx, name)
	}
}

// A chat message proves presence just like a join, but never demotes.
func (e *Engine) handleMessage(ctx context.Context, ev MessageEvent) {
	if name := Normalize(ev.Sender); name != "" {
		e.materialize(ctx, name)
	}
}

func (e *Engine) handleLeave(ctx context.Context, ev LeaveEvent) {
	name := Normalize(ev.Username)
	if !e.perms.reg.Exists(name) {
		return
	}
	e.evict(ctx, name)
}

// evict resets the persisted group of name to Viewer (only when a record
// exists) and forgets the user.
func (e *Engine) evict(ctx context.Context, name string) {
	e.perms.SetGroupIfPersisted(ctx, name, int(Viewer))
	if e.presence != nil {
		e.presence.Remove(name)
	}
	e.perms.reg.Remove(name)
}

// handleMode applies operator grants and revocations. hasMode makes both
// directions idempotent under redelivery.
func (e *Engine) handleMode(ctx context.Context, ev ModeEvent) {
	if !strings.EqualFold(ev.Mode, OperatorMode) {
		return
	}
	name := Normalize(ev.Username)
	if name == "" {
		return
	}
	p := e.perms
	u := p.reg.GetOrCreate(ctx, name)

	if ev.Add {
		if u.HasMode {
			return
		}
		target := Moderator
		switch {
		case p.IsOwner(name):
			target = Caster
		case u.Group <= Administrator:
			target = Administrator
		}
		p.SetGroup(ctx, name, int(target))
		p.reg.setMode(name, true)
		return
	}

	if !u.HasMode {
		return
	}
	p.SetGroup(ctx, name, int(Viewer))
	p.reg.setMode(name, false)
}

// handleRoster treats the moderator list as the complete current staff:
// persisted Moderator and Subscriber records are cleared, then every listed
// user below Administrator is written back as Moderator. Cached groups are
// only ever promoted; an unlisted cached moderator keeps the group until it
// leaves or is swept.
func (e *Engine) handleRoster(ctx context.Context, ev RosterEvent) {
	p := e.perms
	logger := slog.Default().With(slog.String("component", "permissions_roster"))

	entries, err := Entries(ctx, p.store, SectionGroup)
	if err != nil {
		logger.Warn("list persisted groups failed", slog.Any("err", err))
	}
	cleared := 0
	for _, ent := range entries {
		n, err := strconv.Atoi(ent.Value)
		if err != nil {
			continue
		}
		switch GroupID(n) {
		case Moderator, Subscriber:
			if err := p.store.Delete(ctx, SectionGroup, ent.Key); err != nil {
				logStoreErr("delete", SectionGroup, ent.Key, err)
				continue
			}
			cleared++
		}
	}

	listed := make(map[string]bool, len(ev.Moderators))
	applied := 0
	for _, raw := range ev.Moderators {
		name := Normalize(raw)
		if name == "" || listed[name] {
			continue
		}
		listed[name] = true
		if name == p.ident.Bot {
			continue
		}
		u, cached := p.reg.Get(name)
		current := u.Group
		if !cached {
			current = Clamp(GetInt(ctx, p.store, SectionGroup, name, int(Viewer)))
		}
		if current <= Administrator {
			continue
		}
		if cached {
			p.assign(ctx, name, Moderator)
		} else {
			SetInt(ctx, p.store, SectionGroup, name, int(Moderator))
		}
		applied++
	}

	logger.Info("moderator roster reconciled",
		slog.Int("listed", len(listed)),
		slog.Int("cleared", cleared),
		slog.Int("applied", applied))
}

// handleSpecialUser keeps the Subscriber tier in line with service notices.
// The guard in SetGroupIfNotModerator keeps staff untouched.
func (e *Engine) handleSpecialUser(ctx context.Context, ev SpecialUserEvent) {
	name := Normalize(ev.Username)
	if name == "" {
		return
	}
	p := e.perms
	u, cached := p.reg.Get(name)

	if ev.Subscriber {
		if !cached || u.Group != Subscriber {
			p.SetGroupIfNotModerator(ctx, name, int(Subscriber))
		}
		return
	}
	if cached && u.Group == Subscriber && !GetBool(ctx, p.store, SectionSubOverride, name, false) {
		p.SetGroupIfNotModerator(ctx, name, int(Viewer))
	}
}
