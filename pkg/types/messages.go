package types

import (
	"encoding/json"
	"strings"
)

// Client -> Gateway
// join-room:
//   room: string              // "challenge:{id}" | "leaderboard:{scope}"
//
// leave-room:
//   room: string
//
// code-change:
//   room: string
//   payload: { roomId: string, html?: string, css?: string, js?: string }

// Gateway -> Client
// code-update:
//   room: string
//   payload: { roomId: string, html?: string, css?: string, js?: string }
//   (never echoed back to the connection that sent the code-change)
//
// leaderboard-update:
//   room: "leaderboard:{scope}"
//   payload: { scope: string }
//
// error:
//   error: string

const (
	EventJoinRoom          = "join-room"
	EventLeaveRoom         = "leave-room"
	EventCodeChange        = "code-change"
	EventCodeUpdate        = "code-update"
	EventLeaderboardUpdate = "leaderboard-update"
	EventError             = "error"
)

const (
	challengeRoomPrefix   = "challenge:"
	leaderboardRoomPrefix = "leaderboard:"

	ScopeGlobal = "global"
)

// Envelope is the single frame shape on the realtime socket in both directions.
type Envelope struct {
	Event   string          `json:"event"`
	Room    string          `json:"room,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Code is the full html/css/js triple: starter templates, replays and resets.
type Code struct {
	HTML string `json:"html"`
	CSS  string `json:"css"`
	JS   string `json:"js"`
}

// CodeDelta is a partial update. A nil field means "unchanged by this delta".
type CodeDelta struct {
	RoomID string  `json:"roomId"`
	HTML   *string `json:"html,omitempty"`
	CSS    *string `json:"css,omitempty"`
	JS     *string `json:"js,omitempty"`
}

// Empty reports whether the delta carries no fields.
func (d CodeDelta) Empty() bool {
	return d.HTML == nil && d.CSS == nil && d.JS == nil
}

type LeaderboardUpdate struct {
	Scope string `json:"scope"`
}

func ChallengeRoom(challengeID string) string { return challengeRoomPrefix + challengeID }

func LeaderboardRoom(scope string) string { return leaderboardRoomPrefix + scope }

// ScopeFromRoom returns the scope of a leaderboard room.
func ScopeFromRoom(room string) (string, bool) {
	return strings.CutPrefix(room, leaderboardRoomPrefix)
}

// ValidRoom reports whether a room name belongs to a known namespace.
func ValidRoom(room string) bool {
	if id, ok := strings.CutPrefix(room, challengeRoomPrefix); ok {
		return id != ""
	}
	if scope, ok := strings.CutPrefix(room, leaderboardRoomPrefix); ok {
		return scope != ""
	}
	return false
}
