// Package mock synthesizes a scripted game session through the real
// decode -> apply -> broadcast pipeline, for demos and development without a
// game-server binary.
package mock

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/bastion/server/internal/session"
	"github.com/bastion/server/internal/supervisor"
)

type Generator struct {
	sv       *supervisor.Supervisor
	registry *session.Registry
}

func NewGenerator(sv *supervisor.Supervisor, registry *session.Registry) *Generator {
	return &Generator{sv: sv, registry: registry}
}

func (g *Generator) Start(ctx context.Context) {
	for i := 0; i < g.registry.Len(); i++ {
		go g.run(ctx, g.registry.At(i))
	}
}

// run loops one match forever: lobby, song pick, gameplay ticks, results.
func (g *Generator) run(ctx context.Context, st *session.State) {
	feed := func(line string) { g.sv.Feed(st, line) }

	feed("[Info] Server running on port " + fmt.Sprint(st.Config.Port))
	feed("profile 0 " + charCodes("Alice"))
	feed("profile 1 " + charCodes("Bob"))

	for {
		hash := fmt.Sprintf("%08x", rand.Uint32())
		feed("scene songList")
		if !g.sleep(ctx, 2*time.Second) {
			return
		}
		feed("scene instrument")
		feed(fmt.Sprintf("addSong %s 100", hash))
		feed("songLength 185,5")
		if !g.sleep(ctx, 2*time.Second) {
			return
		}
		feed("scene gameplay")

		scores := [2]int{0, 0}
		combos := [2]int{0, 0}
		for tick := 0; tick < 30; tick++ {
			for slot := 0; slot < 2; slot++ {
				scores[slot] += 50 * (1 + rand.Intn(20))
				if rand.Intn(10) == 0 {
					combos[slot] = 0
				} else {
					combos[slot]++
				}
				sp := float64(rand.Intn(100)) / 100
				feed(fmt.Sprintf("game %d %d %d %.2f", slot, scores[slot], combos[slot], sp))
			}
			if !g.sleep(ctx, 500*time.Millisecond) {
				return
			}
		}

		feed("scene stats")
		for slot := 0; slot < 2; slot++ {
			feed(fmt.Sprintf("stats %d %d %d %d %.1f %d",
				slot, scores[slot], combos[slot], 300+rand.Intn(200),
				float64(rand.Intn(40))/10, rand.Intn(6)))
		}
		if !g.sleep(ctx, 5*time.Second) {
			return
		}
		feed("scene lobby")
	}
}

func (g *Generator) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// charCodes encodes a name the way the game does on the wire: decimal
// character codes followed by a terminator.
func charCodes(name string) string {
	out := ""
	for _, r := range name {
		out += fmt.Sprintf("%d ", r)
	}
	return out + "0"
}
