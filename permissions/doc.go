// Package permissions assigns every chat participant a group and answers
// capability questions about them.
//
// The package is built from small layers:
//   - the group catalog (GroupID, NameOf, IDOf) maps the eight permission levels
//     to their display names and never fails;
//   - the Registry caches one User per lower-cased username, seeded from the
//     persistent Store on first sight;
//   - Permissions answers predicates (IsAdmin, IsMod, ...) and performs clamped,
//     persisted group writes (SetGroup and its guarded variants);
//   - Engine owns the registry lifecycle and applies chat events (join, leave,
//     message, mode toggles, moderator rosters, special-user notices) plus the
//     periodic presence sweep on a single goroutine.
//
// Writes must happen on the engine goroutine: call them from event handlers or
// wrap them in Engine.Do. That covers SetGroup and its variants, SetGroupByName,
// GetOrCreateUser, SetPointMultiplier and LoadGroups. Reads are safe from any
// goroutine.
package permissions
