package permissions

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/onnwee/modkeeper/telemetry"
)

// Identity names the accounts that get special treatment.
type Identity struct {
	Bot     string // the bot's own login
	Owner   string // the configured channel owner
	Channel string // the channel being moderated
}

func (id Identity) normalized() Identity {
	return Identity{Bot: Normalize(id.Bot), Owner: Normalize(id.Owner), Channel: Normalize(id.Channel)}
}

// Tags carries per-message facts asserted by the chat service about the sender.
// A nil *Tags means no assertion was made.
type Tags struct {
	Moderator  bool
	Subscriber bool
}

// GroupChange describes one effective group write.
type GroupChange struct {
	Username string
	From     GroupID
	To       GroupID
}

// ChangeFunc observes group writes. It runs on the engine goroutine and must
// not block.
type ChangeFunc func(GroupChange)

// Permissions answers capability questions and performs group writes against
// a registry and its store.
type Permissions struct {
	reg      *Registry
	store    Store
	ident    Identity
	onChange ChangeFunc
}

// New returns Permissions over a fresh registry backed by store.
func New(store Store, ident Identity) *Permissions {
	return &Permissions{reg: NewRegistry(store), store: store, ident: ident.normalized()}
}

// OnChange installs fn as the observer of group writes.
func (p *Permissions) OnChange(fn ChangeFunc) { p.onChange = fn }

// Registry exposes the underlying user cache.
func (p *Permissions) Registry() *Registry { return p.reg }

// Identity returns the configured identities, lower-cased.
func (p *Permissions) Identity() Identity { return p.ident }

// GetUser returns the cached user without creating it.
func (p *Permissions) GetUser(username string) (User, bool) { return p.reg.Get(username) }

// GetOrCreateUser returns the cached user, creating it from the store if needed.
// It writes the registry, so call it on the engine goroutine.
func (p *Permissions) GetOrCreateUser(ctx context.Context, username string) User {
	return p.reg.GetOrCreate(ctx, username)
}

// UserExists reports whether username is cached.
func (p *Permissions) UserExists(username string) bool { return p.reg.Exists(username) }

// Users returns all cached usernames.
func (p *Permissions) Users() []string { return p.reg.Usernames() }

// UsernamesInGroup returns cached usernames currently in g, in discovery order.
func (p *Permissions) UsernamesInGroup(g GroupID) []string { return p.reg.UsernamesInGroup(g) }

// IsBot reports whether username is cached and is the bot itself.
func (p *Permissions) IsBot(username string) bool {
	u, ok := p.reg.Get(username)
	return ok && u.Username == p.ident.Bot
}

// IsOwner reports whether username is cached and is the channel owner.
func (p *Permissions) IsOwner(username string) bool {
	u, ok := p.reg.Get(username)
	return ok && u.Username == p.ident.Owner
}

// IsCaster reports whether username is cached and is the channel itself.
func (p *Permissions) IsCaster(username string) bool {
	u, ok := p.reg.Get(username)
	return ok && u.Username == p.ident.Channel
}

// IsAdmin reports whether username is cached with group Administrator or higher.
func (p *Permissions) IsAdmin(username string) bool {
	u, ok := p.reg.Get(username)
	return ok && u.Group <= Administrator
}

// IsMod reports moderator status. A fresh assertion in tags wins; otherwise
// the cached group decides.
func (p *Permissions) IsMod(username string, tags *Tags) bool {
	if tags != nil && tags.Moderator {
		return true
	}
	u, ok := p.reg.Get(username)
	return ok && u.Group <= Moderator
}

// IsSub reports subscriber status from tags or the cached group.
func (p *Permissions) IsSub(username string, tags *Tags) bool {
	if tags != nil && tags.Subscriber {
		return true
	}
	u, ok := p.reg.Get(username)
	return ok && u.Group == Subscriber
}

// IsDonator reports whether username is cached as a Donator.
func (p *Permissions) IsDonator(username string) bool {
	u, ok := p.reg.Get(username)
	return ok && u.Group == Donator
}

// IsReg reports whether username is cached with group Regular or higher.
func (p *Permissions) IsReg(username string) bool {
	u, ok := p.reg.Get(username)
	return ok && u.Group <= Regular
}

// GroupID returns the cached group for username, Viewer when not cached.
func (p *Permissions) GroupID(username string) GroupID {
	if u, ok := p.reg.Get(username); ok {
		return u.Group
	}
	return Viewer
}

// PersistedGroup returns the stored group for username without caching it.
// ok is false when the store holds no assignment.
func (p *Permissions) PersistedGroup(ctx context.Context, username string) (g GroupID, ok bool) {
	name := Normalize(username)
	if !exists(ctx, p.store, SectionGroup, name) {
		return Viewer, false
	}
	return Clamp(GetInt(ctx, p.store, SectionGroup, name, int(Viewer))), true
}

// GroupName returns the display name of GroupID(username).
func (p *Permissions) GroupName(username string) string {
	return p.GroupID(username).String()
}

// PointMultiplier returns the online point multiplier configured for the
// user's group, 1 when unset.
func (p *Permissions) PointMultiplier(ctx context.Context, username string) int {
	return GetInt(ctx, p.store, SectionGroupPoints, p.GroupName(username), 1)
}

// OfflinePointMultiplier is PointMultiplier for when the stream is offline.
func (p *Permissions) OfflinePointMultiplier(ctx context.Context, username string) int {
	return GetInt(ctx, p.store, SectionGroupPointsOffline, p.GroupName(username), 1)
}

// SetPointMultiplier stores the online or offline multiplier for group g.
// -1 means "use the global default".
func (p *Permissions) SetPointMultiplier(ctx context.Context, g GroupID, online bool, amount int) {
	section := SectionGroupPointsOffline
	if online {
		section = SectionGroupPoints
	}
	SetInt(ctx, p.store, section, Clamp(int(g)).String(), amount)
}

// GroupPointMultiplier returns the stored multiplier for group g, -1 when unset.
func (p *Permissions) GroupPointMultiplier(ctx context.Context, g GroupID, online bool) int {
	section := SectionGroupPointsOffline
	if online {
		section = SectionGroupPoints
	}
	return GetInt(ctx, p.store, section, Clamp(int(g)).String(), -1)
}

// SetGroup assigns id (clamped to Viewer when out of range) to username,
// creating the user if needed, and persists it. Like every write on
// Permissions it must run on the engine goroutine (a handler or Engine.Do).
func (p *Permissions) SetGroup(ctx context.Context, username string, id int) GroupID {
	u := p.reg.GetOrCreate(ctx, username)
	return p.assign(ctx, u.Username, Clamp(id))
}

// SetGroupIfPersisted is SetGroup limited to users the store already holds a
// group for. It reports whether the write happened.
func (p *Permissions) SetGroupIfPersisted(ctx context.Context, username string, id int) bool {
	u := p.reg.GetOrCreate(ctx, username)
	if !exists(ctx, p.store, SectionGroup, u.Username) {
		return false
	}
	p.assign(ctx, u.Username, Clamp(id))
	return true
}

// SetGroupIfNotModerator is SetGroup limited to users below Administrator, so
// lower-trust signals can never overwrite staff. It reports whether the write
// happened.
func (p *Permissions) SetGroupIfNotModerator(ctx context.Context, username string, id int) bool {
	u := p.reg.GetOrCreate(ctx, username)
	if u.Group <= Administrator {
		return false
	}
	p.assign(ctx, u.Username, Clamp(id))
	return true
}

// SetGroupByName resolves name through the catalog and calls SetGroup.
func (p *Permissions) SetGroupByName(ctx context.Context, username, name string) GroupID {
	return p.SetGroup(ctx, username, int(IDOf(name)))
}

func (p *Permissions) assign(ctx context.Context, key string, g GroupID) GroupID {
	prev, _ := p.reg.setGroup(key, g)
	SetInt(ctx, p.store, SectionGroup, key, int(g))
	p.changed(key, prev, g)
	return g
}

func (p *Permissions) changed(key string, from, to GroupID) {
	if from == to {
		return
	}
	telemetry.RecordGroupChange(to.String())
	slog.Debug("group changed",
		slog.String("component", "permissions"),
		slog.String("user", key),
		slog.String("from", from.String()),
		slog.String("to", to.String()))
	if p.onChange != nil {
		p.onChange(GroupChange{Username: key, From: from, To: to})
	}
}

// LoadGroups seeds the catalog, default multipliers and the bot and owner
// Administrator assignments. It is safe to call on every start.
func (p *Permissions) LoadGroups(ctx context.Context) {
	for _, g := range Groups() {
		name := g.String()
		GetOrSetString(ctx, p.store, SectionGroups, strconv.Itoa(int(g)), name)
		GetOrSetString(ctx, p.store, SectionGroupPoints, name, "-1")
		GetOrSetString(ctx, p.store, SectionGroupPointsOffline, name, "-1")
	}
	if p.ident.Bot != "" {
		p.SetGroup(ctx, p.ident.Bot, int(Administrator))
	}
	if p.ident.Owner != "" {
		p.SetGroup(ctx, p.ident.Owner, int(Administrator))
	}
}
