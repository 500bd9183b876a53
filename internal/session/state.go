package session

import (
	"fmt"
	"sync"

	"github.com/bastion/server/internal/config"
	"github.com/bastion/server/internal/protocol"
)

// Scene is the current phase of a server's match. Transitions are driven
// exclusively by scene events; there is no terminal scene.
type Scene string

const (
	SceneLobby      Scene = "lobby"
	SceneSongList   Scene = "songList"
	SceneInstrument Scene = "instrument"
	SceneGameplay   Scene = "gameplay"
	SceneStats      Scene = "stats"
)

const (
	// MaxPlayers bounds the player slot table. Slot 255 is a reserved
	// out-of-band carrier for chat payloads and never lands in the table.
	MaxPlayers = 8

	// primarySlots is the highest slot index that gets an auto-created
	// placeholder profile when live stats arrive before the profile did.
	primarySlots = 1

	placeholderName = "???"
)

// Player is one occupied slot.
type Player struct {
	Name      string  `json:"name"`
	Score     int     `json:"score"`
	Combo     int     `json:"combo"`
	Streak    int     `json:"streak"`
	Notes     int     `json:"notes"`
	SP        float64 `json:"sp"` // normalized to the live game-event scale
	SPAccrued int     `json:"spAccrued"`
}

// Song is the currently active chart. Absence means no song is active.
type Song struct {
	Hash   string  `json:"hash"`
	Speed  string  `json:"speed"`
	Length float64 `json:"length,omitempty"`
}

// Template identifies which notification layout should be (re)issued.
type Template int

const (
	NoteNone Template = iota
	NoteBoot
	NoteReboot
	NoteLobby
	NoteSongList
	NoteSongSelect
	NoteGameplay
	NoteResults
)

// sceneTemplates is the single scene-to-notification mapping, consulted by
// both the disconnect and scene-change paths.
var sceneTemplates = map[Scene]Template{
	SceneLobby:      NoteLobby,
	SceneSongList:   NoteSongList,
	SceneInstrument: NoteSongSelect,
	SceneGameplay:   NoteGameplay,
	SceneStats:      NoteResults,
}

// TemplateForScene returns the notification template for a scene, or
// NoteNone for scenes without one.
func TemplateForScene(s Scene) Template {
	return sceneTemplates[s]
}

// Effects is what an applied event asks the outside world to do. Broadcast
// lines are only populated for the broadcast-eligible server.
type Effects struct {
	Broadcast []string
	Notify    Template
}

// State is the mutable runtime state of one managed server. Events from the
// server's own stdout stream are the only regular writers; restarts reset
// the runtime fields from the supervisor goroutine, so access is locked.
type State struct {
	Config config.Server

	mu        sync.Mutex
	scene     Scene
	players   [MaxPlayers]*Player
	song      *Song
	messageID string
}

func NewState(cfg config.Server) *State {
	return &State{Config: cfg, scene: SceneLobby}
}

// Apply mutates the state with one decoded event and classifies the external
// effects that should fire.
func (s *State) Apply(ev protocol.Event) Effects {
	s.mu.Lock()
	defer s.mu.Unlock()

	var eff Effects

	switch ev.Kind {
	case protocol.Game:
		p := s.playerAt(ev.Slot)
		if p == nil {
			return eff
		}
		changed := p.Score != ev.Score || p.Combo != ev.Combo || p.SP != ev.SP
		p.Score = ev.Score
		p.Combo = ev.Combo
		p.SP = ev.SP
		if changed {
			eff.Broadcast = s.relay(ev.Raw)
		}

	case protocol.Profile:
		if !validSlot(ev.Slot) {
			return eff
		}
		cur := s.players[ev.Slot]
		if cur != nil && cur.Name == ev.Name {
			return eff
		}
		s.players[ev.Slot] = &Player{Name: ev.Name}
		eff.Broadcast = s.relay(fmt.Sprintf("profile %d %s", ev.Slot, ev.Name))
		// Players can only join in the lobby.
		eff.Notify = NoteLobby

	case protocol.Disconnect:
		if validSlot(ev.Slot) {
			s.players[ev.Slot] = nil
		}
		eff.Notify = sceneTemplates[s.scene]

	case protocol.Chat:
		eff.Broadcast = s.relay(ev.Raw)

	case protocol.Scene:
		eff.Broadcast = s.relay(ev.Raw)
		s.scene = Scene(ev.Scene)
		eff.Notify = sceneTemplates[s.scene]

	case protocol.AddSong:
		eff.Broadcast = s.relay(ev.Raw)
		s.song = &Song{Hash: ev.Hash, Speed: ev.Speed}

	case protocol.SongLength:
		eff.Broadcast = s.relay(ev.Raw)
		if s.song != nil {
			s.song.Length = ev.Length
		}

	case protocol.Stats:
		eff.Broadcast = s.relay(ev.Raw)
		if p := s.playerAt(ev.Slot); p != nil {
			p.Score = ev.Score
			p.Streak = ev.Streak
			p.Notes = ev.Notes
			// Live stats report special power at 10x the scale of the
			// end-of-song summary.
			p.SP = ev.SP * 10
			p.SPAccrued = ev.SPAccrued
		}
		if s.scene == SceneStats {
			eff.Notify = NoteResults
		}

	case protocol.ServerOnline:
		eff.Broadcast = s.relay("online")
		eff.Notify = NoteLobby
	}

	return eff
}

// playerAt returns the slot's player, auto-creating a placeholder profile
// for an empty primary slot so late-joining stats still land somewhere.
func (s *State) playerAt(slot int) *Player {
	if !validSlot(slot) {
		return nil
	}
	if s.players[slot] == nil && slot <= primarySlots {
		s.players[slot] = &Player{Name: placeholderName}
	}
	return s.players[slot]
}

func validSlot(slot int) bool {
	return slot >= 0 && slot < MaxPlayers
}

func (s *State) relay(line string) []string {
	if !s.Config.Broadcast {
		return nil
	}
	return []string{line}
}

// ResetRuntime puts the session back to its initial runtime state after a
// respawn. The notification message id survives so the existing status
// message keeps being edited instead of a duplicate being created.
func (s *State) ResetRuntime() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scene = SceneLobby
	s.players = [MaxPlayers]*Player{}
	s.song = nil
}

func (s *State) Scene() Scene {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scene
}

func (s *State) MessageID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messageID
}

func (s *State) SetMessageID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messageID = id
}

// View is a consistent deep copy of the session used to render
// notifications. It carries the password for the embed footer; use Snapshot
// for anything spectator-facing.
type View struct {
	Name       string
	Password   string
	Port       int
	LogHook    string
	StatusHook string
	Scene      Scene
	Players    [MaxPlayers]*Player
	Song       *Song
	MessageID  string
}

func (s *State) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := View{
		Name:       s.Config.Name,
		Password:   s.Config.Password,
		Port:       s.Config.Port,
		LogHook:    s.Config.LogHook,
		StatusHook: s.Config.StatusHook,
		Scene:      s.scene,
		MessageID:  s.messageID,
	}
	for i, p := range s.players {
		if p != nil {
			cp := *p
			v.Players[i] = &cp
		}
	}
	if s.song != nil {
		song := *s.song
		v.Song = &song
	}
	return v
}

// Snapshot is the spectator-safe JSON representation of a session.
type Snapshot struct {
	Name      string    `json:"name"`
	Port      int       `json:"port"`
	Broadcast bool      `json:"broadcast"`
	Scene     Scene     `json:"scene"`
	Players   []*Player `json:"players"`
	Song      *Song     `json:"song,omitempty"`
}

func (s *State) Snapshot() Snapshot {
	v := s.View()
	snap := Snapshot{
		Name:      s.Config.Name,
		Port:      s.Config.Port,
		Broadcast: s.Config.Broadcast,
		Scene:     v.Scene,
		Players:   v.Players[:],
		Song:      v.Song,
	}
	return snap
}
