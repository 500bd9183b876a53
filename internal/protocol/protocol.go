// Package protocol decodes the line-oriented status protocol a game server
// writes to stdout. Decoding is purely prefix-dispatched on the first
// whitespace-delimited token; it never fails, unknown or malformed lines
// decode to an event that downstream code can ignore.
package protocol

import (
	"regexp"
	"strconv"
	"strings"
)

type Kind int

const (
	Unknown Kind = iota
	Game
	Profile
	Disconnect
	Chat
	Scene
	AddSong
	SongLength
	Stats
	ServerOnline
)

var kindNames = map[Kind]string{
	Unknown:      "unknown",
	Game:         "game",
	Profile:      "profile",
	Disconnect:   "disconnect",
	Chat:         "chat",
	Scene:        "scene",
	AddSong:      "addSong",
	SongLength:   "songLength",
	Stats:        "stats",
	ServerOnline: "serverOnline",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Event is one decoded protocol line. Raw always carries the original line;
// the remaining fields are populated per kind.
type Event struct {
	Kind Kind
	Raw  string

	Slot      int     // game, profile, disconnect, stats
	Name      string  // profile (sanitized)
	Score     int     // game, stats
	Combo     int     // game
	Streak    int     // stats
	Notes     int     // stats
	SP        float64 // game, stats (raw wire value, unscaled)
	SPAccrued int     // stats
	Scene     string  // scene
	Hash      string  // addSong
	Speed     string  // addSong
	Length    float64 // songLength
	Text      string  // chat
}

// Decode turns one line of text (terminator already stripped) into an Event.
func Decode(line string) Event {
	ev := Event{Raw: line}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ev
	}

	switch fields[0] {
	case "game":
		ev.Kind = Game
		ev.Slot = atoi(field(fields, 1))
		ev.Score = atoi(field(fields, 2))
		ev.Combo = atoi(field(fields, 3))
		ev.SP = atof(field(fields, 4))
	case "profile":
		ev.Kind = Profile
		ev.Slot = atoi(field(fields, 1))
		ev.Name = SanitizeName(decodeCharCodes(fields[2:]))
	case "disconnect":
		ev.Kind = Disconnect
		ev.Slot = atoi(field(fields, 1))
	case "chat":
		ev.Kind = Chat
		ev.Text = strings.TrimPrefix(line, "chat ")
	case "scene":
		ev.Kind = Scene
		ev.Scene = field(fields, 1)
	case "addSong":
		ev.Kind = AddSong
		ev.Hash = field(fields, 1)
		ev.Speed = field(fields, 2)
	case "songLength":
		ev.Kind = SongLength
		ev.Length = atof(strings.ReplaceAll(field(fields, 1), ",", "."))
	case "stats":
		ev.Kind = Stats
		ev.Slot = atoi(field(fields, 1))
		ev.Score = atoi(field(fields, 2))
		ev.Streak = atoi(field(fields, 3))
		ev.Notes = atoi(field(fields, 4))
		ev.SP = atof(field(fields, 5))
		ev.SPAccrued = atoi(field(fields, 6))
	default:
		if strings.Contains(line, "Server running") {
			ev.Kind = ServerOnline
		}
	}

	return ev
}

// decodeCharCodes reads a profile name encoded as decimal character codes,
// stopping at the first value below 32 (or the end of the token list).
func decodeCharCodes(codes []string) string {
	var b strings.Builder
	for _, c := range codes {
		n, err := strconv.Atoi(c)
		if err != nil || n < 32 {
			break
		}
		b.WriteRune(rune(n))
	}
	return b.String()
}

var tagPattern = regexp.MustCompile(`<[^>]*(b|i|color|size|material|quad)[^>]*>`)

// SanitizeName strips markup-like bracket tags from a player name.
func SanitizeName(name string) string {
	return tagPattern.ReplaceAllString(strings.TrimSpace(name), "")
}

func field(fields []string, i int) string {
	if i < len(fields) {
		return fields[i]
	}
	return ""
}

// atoi parses a decimal integer, treating missing or malformed input as zero.
func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func atof(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
