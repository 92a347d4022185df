package chat

import (
	"strings"

	"github.com/onnwee/modkeeper/permissions"
)

// tagsFrom reads the moderator and subscriber assertions from IRCv3 tags.
func tagsFrom(tags map[string]string) *permissions.Tags {
	t := &permissions.Tags{}
	if tags == nil {
		return t
	}
	t.Moderator = tags["mod"] == "1" || tags["user-type"] == "mod"
	t.Subscriber = tags["subscriber"] == "1"
	if !t.Subscriber {
		t.Subscriber = hasBadge(tags["badges"], "subscriber") || hasBadge(tags["badges"], "founder")
	}
	return t
}

// hasBadge reports whether a badges tag ("broadcaster/1,subscriber/12")
// contains name.
func hasBadge(badges, name string) bool {
	for _, b := range strings.Split(badges, ",") {
		id, _, _ := strings.Cut(b, "/")
		if id == name {
			return true
		}
	}
	return false
}

// parseRoster extracts logins from a room_mods notice such as
// "The moderators of this channel are: alice, bob". Any other text yields an
// empty roster.
func parseRoster(text string) []string {
	_, list, ok := strings.Cut(text, ":")
	if !ok {
		return []string{}
	}
	list = strings.TrimSuffix(strings.TrimSpace(list), ".")
	out := []string{}
	for _, name := range strings.Split(list, ",") {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// parseMode turns ":jtv MODE #channel +o user" into a ModeEvent.
func parseMode(raw string) (channel string, ev permissions.ModeEvent, ok bool) {
	fields := strings.Fields(strings.TrimSpace(raw))
	if len(fields) > 0 && strings.HasPrefix(fields[0], "@") {
		fields = fields[1:]
	}
	if len(fields) > 0 && strings.HasPrefix(fields[0], ":") {
		fields = fields[1:]
	}
	if len(fields) != 4 || fields[0] != "MODE" {
		return "", permissions.ModeEvent{}, false
	}
	flag := fields[2]
	if len(flag) < 2 || (flag[0] != '+' && flag[0] != '-') {
		return "", permissions.ModeEvent{}, false
	}
	return strings.TrimPrefix(fields[1], "#"), permissions.ModeEvent{
		Username: fields[3],
		Mode:     flag[1:],
		Add:      flag[0] == '+',
	}, true
}

// subscribersIn returns the users a USERNOTICE marks as subscribed.
func subscribersIn(msgID, sender string, params map[string]string) []string {
	switch msgID {
	case "sub", "resub":
		if sender != "" {
			return []string{sender}
		}
	case "subgift", "anonsubgift":
		if r := params["msg-param-recipient-user-name"]; r != "" {
			return []string{r}
		}
	}
	return nil
}
