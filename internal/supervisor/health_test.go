package supervisor

import (
	"context"
	"testing"

	"github.com/bastion/server/internal/config"
	"github.com/bastion/server/internal/session"
)

func TestHealthBeforeStart(t *testing.T) {
	reg, err := session.NewRegistry([]config.Server{
		{Name: "alpha", Port: 14100, Broadcast: true},
		{Name: "beta", Port: 14101},
	})
	if err != nil {
		t.Fatal(err)
	}
	sv := New(context.Background(), "/usr/bin/chserver", reg, &fakeNotifier{}, &fakeHub{})

	got := sv.Health()
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	for i, want := range []struct {
		name string
		port int
	}{{"alpha", 14100}, {"beta", 14101}} {
		h := got[i]
		if h.Name != want.name || h.Port != want.port {
			t.Errorf("entry %d = %+v", i, h)
		}
		if h.Running || h.PID != 0 || h.Restarts != 0 {
			t.Errorf("entry %d reports activity before start: %+v", i, h)
		}
	}
}
