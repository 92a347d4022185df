// Package chat connects the bot to Twitch IRC.
//
// A Bot translates membership (JOIN/PART/NAMES), PRIVMSG tags, MODE lines and
// room_mods notices into permissions events and submits them to the engine.
// Outbound messages go through a paced queue so command replies stay under
// Twitch's chat rate limits. SyncModerators replaces the retired /mods command
// with a periodic Helix moderator listing.
package chat
