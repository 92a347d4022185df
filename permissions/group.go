package permissions

import "strconv"

// GroupID is a permission level. Lower values are more privileged.
type GroupID int

const (
	Caster GroupID = iota
	Administrator
	Moderator
	Subscriber
	Donator
	Hoster
	Regular
	Viewer
)

// GroupCount is the number of defined groups.
const GroupCount = 8

var groupNames = [GroupCount]string{
	"Caster",
	"Administrator",
	"Moderator",
	"Subscriber",
	"Donator",
	"Hoster",
	"Regular",
	"Viewer",
}

// Valid reports whether g is one of the eight defined groups.
func (g GroupID) Valid() bool { return g >= Caster && g <= Viewer }

// String returns the display name of g, "Viewer" when out of range.
func (g GroupID) String() string { return NameOf(int(g)) }

// NameOf returns the display name for id. Unknown ids map to "Viewer".
func NameOf(id int) string {
	if id < 0 || id >= GroupCount {
		return groupNames[Viewer]
	}
	return groupNames[id]
}

// IDOf returns the group named name (exact, case-sensitive match as stored).
// Unknown names map to Viewer.
func IDOf(name string) GroupID {
	for i, n := range groupNames {
		if n == name {
			return GroupID(i)
		}
	}
	return Viewer
}

// ParseID converts a textual group id such as "3". Non-numeric input and
// out-of-range values both resolve to Viewer; ok is false for non-numeric input.
func ParseID(s string) (g GroupID, ok bool) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return Viewer, false
	}
	return Clamp(n), true
}

// Clamp converts an arbitrary integer into a GroupID, mapping anything outside
// [0,7] to Viewer.
func Clamp(id int) GroupID {
	if id < int(Caster) || id > int(Viewer) {
		return Viewer
	}
	return GroupID(id)
}

// Groups returns all group ids from most to least privileged.
func Groups() []GroupID {
	out := make([]GroupID, GroupCount)
	for i := range out {
		out[i] = GroupID(i)
	}
	return out
}
