// Package supervisor owns the lifecycle of the game-server child processes
// and wires each one's stdout through the decoder into its session state.
package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/bastion/server/internal/config"
	"github.com/bastion/server/internal/protocol"
	"github.com/bastion/server/internal/session"
)

// restartGrace is how long a killed process gets to release its bound port
// before the replacement is spawned.
const restartGrace = 2 * time.Second

// Broadcaster relays protocol lines to spectator connections.
type Broadcaster interface {
	Broadcast(msg []byte)
}

// Notifier receives the lifecycle and state-change calls the session
// pipeline classifies.
type Notifier interface {
	Reboot(s *session.State)
	Refresh(s *session.State, tpl session.Template)
}

type Supervisor struct {
	bin      string
	registry *session.Registry
	hub      Broadcaster
	notifier Notifier

	// ctx is fixed at construction; restarts requested over the spectator
	// transport spawn under it even when StartAll was never called.
	ctx context.Context

	mu sync.Mutex
	// All three slices are position-aligned with the registry.
	procs     []*exec.Cmd
	spawnedAt []time.Time
	restarts  []int
}

func New(ctx context.Context, bin string, registry *session.Registry, notifier Notifier, hub Broadcaster) *Supervisor {
	return &Supervisor{
		bin:       bin,
		registry:  registry,
		hub:       hub,
		notifier:  notifier,
		ctx:       ctx,
		procs:     make([]*exec.Cmd, registry.Len()),
		spawnedAt: make([]time.Time, registry.Len()),
		restarts:  make([]int, registry.Len()),
	}
}

// StartAll sweeps stray game-server processes left over from a previous run,
// then spawns one child per configured server.
func (sv *Supervisor) StartAll() error {
	killStray(sv.bin)

	sv.mu.Lock()
	defer sv.mu.Unlock()
	for i := 0; i < sv.registry.Len(); i++ {
		if err := sv.spawnLocked(i); err != nil {
			return fmt.Errorf("spawning %q: %w", sv.registry.At(i).Config.Name, err)
		}
	}
	return nil
}

func (sv *Supervisor) spawnLocked(i int) error {
	st := sv.registry.At(i)
	cmd := exec.CommandContext(sv.ctx, sv.bin, buildArgs(st.Config)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	log.Printf("spawned %s (pid %d) on port %d", st.Config.Name, cmd.Process.Pid, st.Config.Port)
	sv.procs[i] = cmd
	sv.spawnedAt[i] = time.Now()

	go func() {
		sv.pump(st, stdout)
		if err := cmd.Wait(); err != nil {
			log.Printf("%s exited: %v", st.Config.Name, err)
		}
	}()
	return nil
}

// pump reads the child's stdout line by line and drives the
// decode -> apply -> effects pipeline. All mutation of the session happens
// here, strictly in arrival order.
func (sv *Supervisor) pump(st *session.State, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		sv.Feed(st, scanner.Text())
	}
}

// Feed pushes one raw protocol line through the pipeline for the given
// session. Exposed so a synthetic line source can drive the same path.
func (sv *Supervisor) Feed(st *session.State, line string) {
	eff := st.Apply(protocol.Decode(line))
	for _, out := range eff.Broadcast {
		sv.hub.Broadcast([]byte(out))
	}
	if eff.Notify != session.NoteNone {
		sv.notifier.Refresh(st, eff.Notify)
	}
}

// StopAll kills every managed child. Shutdown calls this explicitly because
// the process exits before context cancellation could reap them.
func (sv *Supervisor) StopAll() {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	for i, cmd := range sv.procs {
		if cmd == nil || cmd.Process == nil {
			continue
		}
		if err := cmd.Process.Kill(); err != nil {
			log.Printf("killing %s: %v", sv.registry.At(i).Config.Name, err)
		}
	}
}

// Restart tears down and recreates the server whose password matches. A
// password that does not identify exactly one server is a silent no-op so
// the requester learns nothing about which passwords exist.
func (sv *Supervisor) Restart(password string) {
	st, idx, ok := sv.registry.ByPassword(password)
	if !ok {
		return
	}
	go sv.restart(st, idx)
}

func (sv *Supervisor) restart(st *session.State, idx int) {
	log.Printf("restarting %s", st.Config.Name)
	sv.notifier.Reboot(st)

	sv.mu.Lock()
	cmd := sv.procs[idx]
	sv.mu.Unlock()
	if cmd != nil && cmd.Process != nil {
		if err := cmd.Process.Kill(); err != nil {
			log.Printf("killing %s: %v", st.Config.Name, err)
		}
	}

	// Let the OS release the bound port before the replacement binds it.
	time.Sleep(restartGrace)

	st.ResetRuntime()

	sv.mu.Lock()
	defer sv.mu.Unlock()
	sv.restarts[idx]++
	if err := sv.spawnLocked(idx); err != nil {
		log.Printf("respawning %s: %v", st.Config.Name, err)
	}
}

// buildArgs derives the child's command line: listen port, bind address,
// server name, and either a password or the explicit no-password flag.
func buildArgs(cfg config.Server) []string {
	args := []string{
		"-p", strconv.Itoa(cfg.Port),
		"-a", "0.0.0.0",
		"-n", cfg.Name,
	}
	if cfg.Password != "" {
		return append(args, "-ps", cfg.Password)
	}
	return append(args, "-np")
}

// killStray terminates leftover processes already running the same binary,
// so respawned servers can bind their ports.
func killStray(bin string) {
	if bin == "" {
		return
	}
	base := filepath.Base(bin)
	procs, err := process.Processes()
	if err != nil {
		log.Printf("stray sweep skipped: %v", err)
		return
	}
	self := os.Getpid()
	for _, p := range procs {
		if int(p.Pid) == self {
			continue
		}
		name, err := p.Name()
		if err != nil || name != base {
			continue
		}
		if err := p.Kill(); err != nil {
			log.Printf("killing stray pid %d: %v", p.Pid, err)
		} else {
			log.Printf("killed stray %s (pid %d)", name, p.Pid)
		}
	}
}
