package replica

import (
	"context"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sdzerobot/sdzerobot/errors"
	"github.com/sdzerobot/sdzerobot/logger"
)

// Tunnel forwards a local port to the replica for development outside
// Toolforge. It is started at most once; Close stops it.
type Tunnel struct {
	command []string
	wait    time.Duration
	logger  *zap.SugaredLogger

	mu      sync.Mutex
	started bool
	cmd     *exec.Cmd

	// start launches the tunnel process; replaced in tests
	start func(ctx context.Context, command []string) (*exec.Cmd, error)
	sleep func(ctx context.Context, d time.Duration) error
}

// NewTunnel creates a tunnel that runs command (typically ssh -N -L …) and
// waits for it to come up
func NewTunnel(command []string, wait time.Duration) *Tunnel {
	return &Tunnel{
		command: command,
		wait:    wait,
		logger:  logger.ComponentLogger("tunnel"),
		start:   startProcess,
		sleep:   sleepContext,
	}
}

// Ensure starts the tunnel if it is not running yet
func (t *Tunnel) Ensure(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return nil
	}
	if len(t.command) == 0 {
		return errors.New("no tunnel command configured")
	}

	cmd, err := t.start(ctx, t.command)
	if err != nil {
		return errors.Wrapf(err, "start tunnel %q", t.command[0])
	}
	t.cmd = cmd
	t.started = true
	t.logger.Infow("Tunnel started", "command", t.command)

	return t.sleep(ctx, t.wait)
}

// Started reports whether Ensure has launched the tunnel
func (t *Tunnel) Started() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started
}

// Close stops the tunnel process
func (t *Tunnel) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cmd == nil || t.cmd.Process == nil {
		return nil
	}
	if err := t.cmd.Process.Kill(); err != nil {
		return errors.Wrapf(err, "failed to kill tunnel process (pid %d)", t.cmd.Process.Pid)
	}
	_ = t.cmd.Wait()
	t.cmd = nil
	return nil
}

func startProcess(_ context.Context, command []string) (*exec.Cmd, error) {
	// Not tied to ctx: the tunnel outlives the query that started it
	cmd := exec.Command(command[0], command[1:]...)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
