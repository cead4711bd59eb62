package queue

import (
	"os"
	"os/exec"
	"sync"
	"time"

	"muninn/internal/logging"
)

// spawnState is the single owner of the worker-spawn timestamp -- a
// process-wide value deliberately centralised here rather than left as an
// ungoverned package-level global.
var spawnState struct {
	mu   sync.Mutex
	last time.Time
}

// defaultCooldown is the worker-spawn cooldown default.
const defaultCooldown = 5 * time.Minute

// MaybeSpawnWorker forks `exe worker --once` in the background if more
// than cooldown has elapsed since the last spawn from this process.
// Called opportunistically from tool-call and session-lifecycle hooks;
// never blocks the caller on the child's completion.
func MaybeSpawnWorker(exe string, args []string, cooldown time.Duration) {
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	spawnState.mu.Lock()
	if time.Since(spawnState.last) < cooldown {
		spawnState.mu.Unlock()
		return
	}
	spawnState.last = time.Now()
	spawnState.mu.Unlock()

	cmd := exec.Command(exe, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil
	if err := cmd.Start(); err != nil {
		logging.QueueWarn("worker spawn failed: %v", err)
		return
	}
	logging.Queue("spawned worker pid=%d", cmd.Process.Pid)
	go func() {
		_ = cmd.Wait()
	}()
}

// ResetSpawnCooldown clears the last-spawn timestamp; exposed for tests.
func ResetSpawnCooldown() {
	spawnState.mu.Lock()
	spawnState.last = time.Time{}
	spawnState.mu.Unlock()
}

// SelfExecutable returns the path to the currently running binary, used
// to spawn a worker sharing the same build.
func SelfExecutable() string {
	exe, err := os.Executable()
	if err != nil {
		return "muninn-server"
	}
	return exe
}
