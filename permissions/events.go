package permissions

// Event is one inbound chat signal. The set of implementations is closed.
type Event interface {
	Kind() EventKind
	event()
}

// EventKind names an Event implementation for logs and metrics.
type EventKind string

const (
	KindJoin        EventKind = "join"
	KindLeave       EventKind = "leave"
	KindMessage     EventKind = "message"
	KindMode        EventKind = "mode"
	KindRoster      EventKind = "roster"
	KindSpecialUser EventKind = "special_user"
)

// OperatorMode is the only channel mode that affects groups.
const OperatorMode = "o"

// JoinEvent reports a user joining the channel.
type JoinEvent struct{ Username string }

// LeaveEvent reports a user leaving the channel.
type LeaveEvent struct{ Username string }

// MessageEvent reports a chat message from Sender.
type MessageEvent struct {
	Sender string
	Tags   *Tags
}

// ModeEvent reports a channel mode being granted (Add) or revoked for Username.
type ModeEvent struct {
	Username string
	Mode     string
	Add      bool
}

// RosterEvent carries the complete current moderator list of the channel.
type RosterEvent struct{ Moderators []string }

// SpecialUserEvent asserts (Subscriber true) or retracts subscriber status
// for one user.
type SpecialUserEvent struct {
	Username   string
	Subscriber bool
}

func (JoinEvent) Kind() EventKind        { return KindJoin }
func (LeaveEvent) Kind() EventKind       { return KindLeave }
func (MessageEvent) Kind() EventKind     { return KindMessage }
func (ModeEvent) Kind() EventKind        { return KindMode }
func (RosterEvent) Kind() EventKind      { return KindRoster }
func (SpecialUserEvent) Kind() EventKind { return KindSpecialUser }

func (JoinEvent) event()        {}
func (LeaveEvent) event()       {}
func (MessageEvent) event()     {}
func (ModeEvent) event()        {}
func (RosterEvent) event()      {}
func (SpecialUserEvent) event() {}
