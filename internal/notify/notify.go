// Package notify drives the Discord webhook integration. Each server can
// carry two independent targets: a loghook that posts a new message per
// event, and a statushook that edits a single status message in place. Both
// are optional; with neither configured the calls degrade to a console log.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/bastion/server/internal/session"
)

const (
	colorLobby    = 0x0ac520
	colorSong     = 0x8f98ff
	colorGameplay = 0xecde74
	colorResults  = 0x2e60ff
)

type field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type author struct {
	Name string `json:"name"`
}

type footer struct {
	Text string `json:"text"`
}

type embed struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Color       int     `json:"color,omitempty"`
	Fields      []field `json:"fields,omitempty"`
	Author      *author `json:"author,omitempty"`
	Footer      *footer `json:"footer,omitempty"`
}

type payload struct {
	Content any     `json:"content"`
	Embeds  []embed `json:"embeds"`
}

type Notifier struct {
	client *http.Client
}

func New() *Notifier {
	return &Notifier{client: &http.Client{Timeout: 10 * time.Second}}
}

// Boot issues the initial "booting" notification for a server that has no
// live status message yet. The statushook creation is the one awaited call:
// its returned message id is stored on the session before any further
// notification can reference it.
func (n *Notifier) Boot(s *session.State) {
	v := s.View()
	p := payload{Embeds: []embed{{
		Title:       "Server is booting...",
		Description: "Please wait a bit... If this takes too long, something is wrong.",
	}}}

	consoleFallback(v, p)
	if v.LogHook != "" {
		n.postAsync(v.Name, v.LogHook, p)
	}
	if v.StatusHook == "" {
		return
	}

	id, err := n.create(v.StatusHook, p)
	if err != nil {
		log.Printf("hook error: %s: %v", v.Name, err)
		return
	}
	s.SetMessageID(id)
}

// Reboot edits the live status message to show the server going down.
func (n *Notifier) Reboot(s *session.State) {
	n.update(s.View(), payload{Embeds: []embed{{
		Title:       "Server is rebooting...",
		Description: "Please wait a bit... If this takes too long, something is wrong.",
	}}})
}

// Refresh re-renders the status message with the template for the given
// scene-derived classification.
func (n *Notifier) Refresh(s *session.State, tpl session.Template) {
	v := s.View()
	switch tpl {
	case session.NoteBoot:
		n.Boot(s)
		return
	case session.NoteReboot:
		n.Reboot(s)
		return
	case session.NoteLobby:
		n.update(v, statusPayload(v, "Lobby ready to join!", colorLobby))
	case session.NoteSongList:
		n.update(v, statusPayload(v, "Choosing a song...", colorSong))
	case session.NoteSongSelect:
		n.update(v, statusPayload(v, fmt.Sprintf("%s picked", songLabel(v.Song)), colorSong))
	case session.NoteGameplay:
		n.update(v, statusPayload(v, fmt.Sprintf("Playing %s", songLabel(v.Song)), colorGameplay))
	case session.NoteResults:
		n.update(v, resultsPayload(v))
	}
}

// update fans the payload out to both hooks, fire-and-forget. The wire may
// reorder a late update ahead of an earlier one; every payload is a full
// snapshot, so the last write wins regardless.
func (n *Notifier) update(v session.View, p payload) {
	consoleFallback(v, p)
	if v.LogHook != "" {
		n.postAsync(v.Name, v.LogHook, p)
	}
	if v.StatusHook != "" && v.MessageID != "" {
		n.patchAsync(v.Name, fmt.Sprintf("%s/messages/%s", v.StatusHook, v.MessageID), p)
	}
}

func consoleFallback(v session.View, p payload) {
	if v.LogHook != "" || v.StatusHook != "" {
		return
	}
	for _, e := range p.Embeds {
		desc := e.Description
		if desc == "" {
			desc = "-"
		}
		log.Printf("%s -> %s: %s", v.Name, e.Title, desc)
	}
}

// create posts to the statushook with ?wait=true so Discord returns the
// created message, and extracts its id.
func (n *Notifier) create(hook string, p payload) (string, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	resp, err := n.client.Post(hook+"?wait=true", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("status %s", resp.Status)
	}
	var msg struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (n *Notifier) postAsync(name, url string, p payload) {
	go func() {
		if err := n.send(http.MethodPost, url, p); err != nil {
			log.Printf("hook error: %s: %v", name, err)
		}
	}()
}

func (n *Notifier) patchAsync(name, url string, p payload) {
	go func() {
		if err := n.send(http.MethodPatch, url, p); err != nil {
			log.Printf("hook error: %s: %v", name, err)
		}
	}()
}

func (n *Notifier) send(method, url string, p payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %s", resp.Status)
	}
	return nil
}

func statusPayload(v session.View, title string, color int) payload {
	e := baseEmbed(v)
	e.Title = title
	e.Color = color
	return payload{Embeds: []embed{e}}
}

func baseEmbed(v session.View) embed {
	e := embed{
		Author: &author{Name: fmt.Sprintf("%s on port %d", v.Name, v.Port)},
	}
	if v.Password != "" {
		e.Footer = &footer{Text: fmt.Sprintf("Password: `%s`", v.Password)}
	} else {
		e.Footer = &footer{Text: "No password required!"}
	}
	for i, p := range v.Players {
		value := "-"
		if p != nil {
			value = "`" + p.Name + "`"
		} else if i > 1 {
			// Only list the primary slots unless someone actually sits
			// further down the table.
			continue
		}
		e.Fields = append(e.Fields, field{
			Name:   fmt.Sprintf("Player %d", i+1),
			Value:  value,
			Inline: true,
		})
	}
	return e
}

func songLabel(song *session.Song) string {
	if song == nil {
		return "(unknown)"
	}
	return fmt.Sprintf("%s (%s%%)", song.Hash, song.Speed)
}

func resultsPayload(v session.View) payload {
	e := baseEmbed(v)
	e.Title = songLabel(v.Song)
	e.Color = colorResults

	var lines []string
	for _, p := range v.Players[:2] {
		if p == nil {
			lines = append(lines, "`<disconnected!>`: **-** (- notes, - streak, - SPs)")
			continue
		}
		lines = append(lines, fmt.Sprintf("`%s`: **%d** (%d notes, %d streak, %g SPs)",
			p.Name, p.Score, p.Notes, p.Streak, p.SP/10))
	}
	e.Description = strings.Join(lines, "\n")
	return payload{Embeds: []embed{e}}
}
