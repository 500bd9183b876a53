package notify

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bastion/server/internal/config"
	"github.com/bastion/server/internal/protocol"
	"github.com/bastion/server/internal/session"
)

// hookRecorder captures every request a webhook target receives.
type hookRecorder struct {
	mu       sync.Mutex
	requests []recordedRequest
	createID string
}

type recordedRequest struct {
	method string
	path   string
	query  string
	body   payload
}

func (h *hookRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	var p payload
	json.Unmarshal(data, &p)

	h.mu.Lock()
	h.requests = append(h.requests, recordedRequest{
		method: r.Method,
		path:   r.URL.Path,
		query:  r.URL.RawQuery,
		body:   p,
	})
	h.mu.Unlock()

	if h.createID != "" {
		json.NewEncoder(w).Encode(map[string]string{"id": h.createID})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *hookRecorder) waitFor(t *testing.T, count int) []recordedRequest {
	t.Helper()
	for i := 0; i < 200; i++ {
		h.mu.Lock()
		if len(h.requests) >= count {
			reqs := append([]recordedRequest(nil), h.requests...)
			h.mu.Unlock()
			return reqs
		}
		h.mu.Unlock()
		// Fire-and-forget sends land on their own goroutines.
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d hook requests", count)
	return nil
}

func newStateWith(t *testing.T, cfg config.Server, lines ...string) *session.State {
	t.Helper()
	s := session.NewState(cfg)
	for _, line := range lines {
		s.Apply(protocol.Decode(line))
	}
	return s
}

func TestBootCreatesStatusMessage(t *testing.T) {
	rec := &hookRecorder{createID: "424242"}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	s := newStateWith(t, config.Server{Name: "alpha", Port: 14242, StatusHook: srv.URL})

	New().Boot(s)

	if got := s.MessageID(); got != "424242" {
		t.Fatalf("MessageID = %q, want 424242", got)
	}
	reqs := rec.waitFor(t, 1)
	if reqs[0].method != http.MethodPost || reqs[0].query != "wait=true" {
		t.Errorf("create request = %s ?%s, want POST ?wait=true", reqs[0].method, reqs[0].query)
	}
	if title := reqs[0].body.Embeds[0].Title; title != "Server is booting..." {
		t.Errorf("title = %q", title)
	}
}

func TestUpdatePatchesExistingMessage(t *testing.T) {
	rec := &hookRecorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	s := newStateWith(t, config.Server{Name: "alpha", Port: 14242, StatusHook: srv.URL},
		"profile 0 65 66 0")
	s.SetMessageID("42")

	New().Refresh(s, session.NoteLobby)

	reqs := rec.waitFor(t, 1)
	if reqs[0].method != http.MethodPatch {
		t.Errorf("method = %s, want PATCH", reqs[0].method)
	}
	if !strings.HasSuffix(reqs[0].path, "/messages/42") {
		t.Errorf("path = %q, want .../messages/42", reqs[0].path)
	}
	e := reqs[0].body.Embeds[0]
	if e.Title != "Lobby ready to join!" {
		t.Errorf("title = %q", e.Title)
	}
	if e.Color != colorLobby {
		t.Errorf("color = %#x, want %#x", e.Color, colorLobby)
	}
	if len(e.Fields) == 0 || e.Fields[0].Value != "`AB`" {
		t.Errorf("fields = %+v, want player AB first", e.Fields)
	}
}

func TestUpdateSkipsPatchWithoutMessageID(t *testing.T) {
	rec := &hookRecorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	s := newStateWith(t, config.Server{Name: "alpha", Port: 1, StatusHook: srv.URL})
	New().Refresh(s, session.NoteLobby)

	// Nothing to patch without a created message; no request should land.
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.requests) != 0 {
		t.Errorf("got %d requests, want 0", len(rec.requests))
	}
}

func TestConsoleFallbackDoesNotPanic(t *testing.T) {
	s := newStateWith(t, config.Server{Name: "local", Port: 1}, "profile 0 65 0")
	n := New()
	n.Boot(s)
	n.Reboot(s)
	for _, tpl := range []session.Template{
		session.NoteLobby, session.NoteSongList, session.NoteSongSelect,
		session.NoteGameplay, session.NoteResults,
	} {
		n.Refresh(s, tpl)
	}
	if s.MessageID() != "" {
		t.Errorf("console fallback must not assign a message id, got %q", s.MessageID())
	}
}

func TestEmbedFooter(t *testing.T) {
	withPw := baseEmbed(newStateWith(t, config.Server{Name: "a", Port: 1, Password: "abc123"}).View())
	if !strings.Contains(withPw.Footer.Text, "abc123") {
		t.Errorf("footer = %q, want password", withPw.Footer.Text)
	}

	noPw := baseEmbed(newStateWith(t, config.Server{Name: "a", Port: 1}).View())
	if noPw.Footer.Text != "No password required!" {
		t.Errorf("footer = %q", noPw.Footer.Text)
	}
}

func TestResultsPayload(t *testing.T) {
	s := newStateWith(t, config.Server{Name: "a", Port: 1},
		"profile 0 65 66 0",
		"addSong 5e9a3f 120",
		"stats 0 98500 120 430 2.5 4",
	)

	p := resultsPayload(s.View())
	e := p.Embeds[0]
	if e.Title != "5e9a3f (120%)" {
		t.Errorf("title = %q", e.Title)
	}
	lines := strings.Split(e.Description, "\n")
	if len(lines) != 2 {
		t.Fatalf("description lines = %d, want 2", len(lines))
	}
	// Stored sp is on the game scale; results display divides back by 10.
	if !strings.Contains(lines[0], "`AB`: **98500** (430 notes, 120 streak, 2.5 SPs)") {
		t.Errorf("player 1 line = %q", lines[0])
	}
	if !strings.Contains(lines[1], "<disconnected!>") {
		t.Errorf("player 2 line = %q, want disconnected placeholder", lines[1])
	}
}

func TestSongLabelWithoutSong(t *testing.T) {
	if got := songLabel(nil); got != "(unknown)" {
		t.Errorf("songLabel(nil) = %q", got)
	}
}
