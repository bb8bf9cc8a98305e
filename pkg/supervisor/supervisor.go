// Package supervisor launches, stops and reports on the helper processes of
// the camera host, such as the stream server itself or a tunnel. A launch
// only counts once the process has survived a short grace period.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUnknownApp   = errors.New("unknown app")
	ErrNotRunning   = errors.New("app is not running")
	ErrLaunchFailed = errors.New("launching failed")
)

// State of a supervised app.
type State string

const (
	StateStopped       State = "stopped"
	StateRunning       State = "running"
	StateFailedToStart State = "failed_to_start"
)

const (
	DefaultGrace       = 4 * time.Second
	DefaultStopTimeout = 5 * time.Second
)

// Status is a snapshot of one app.
type Status struct {
	App     string    `json:"app"`
	State   State     `json:"state"`
	Message string    `json:"message"`
	PID     int       `json:"pid,omitempty"`
	RunID   string    `json:"run_id,omitempty"`
	Started time.Time `json:"started,omitempty"`
}

type proc struct {
	app      App
	state    State
	message  string
	starting bool
	cmd      *exec.Cmd
	done     chan struct{}
	exitErr  error
	runID    string
	started  time.Time
}

func (p *proc) status() Status {
	st := Status{App: p.app.Name, State: p.state, Message: p.message}
	if p.cmd != nil && p.cmd.Process != nil {
		st.PID = p.cmd.Process.Pid
		st.RunID = p.runID
		st.Started = p.started
	}
	return st
}

// Supervisor owns at most one process per app.
type Supervisor struct {
	// Grace is how long a new process must stay up to count as launched.
	Grace time.Duration
	// StopTimeout is how long Stop waits after SIGTERM before killing.
	StopTimeout time.Duration

	mu    sync.Mutex
	procs map[string]*proc
	order []string
}

func New(apps []App) *Supervisor {
	s := &Supervisor{
		Grace:       DefaultGrace,
		StopTimeout: DefaultStopTimeout,
		procs:       make(map[string]*proc, len(apps)),
	}
	for _, app := range apps {
		s.procs[app.Name] = &proc{app: app, state: StateStopped, message: app.Name + " is not running"}
		s.order = append(s.order, app.Name)
	}
	return s
}

func (s *Supervisor) lookup(name string) (*proc, error) {
	p, ok := s.procs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownApp, name)
	}
	return p, nil
}

// App returns the definition of name.
func (s *Supervisor) App(name string) (App, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.lookup(name)
	if err != nil {
		return App{}, err
	}
	return p.app, nil
}

// Start launches name unless it is already running. It blocks for the grace
// period; a process that exits within it is reported as failed to start.
func (s *Supervisor) Start(ctx context.Context, name string) (Status, error) {
	s.mu.Lock()
	p, err := s.lookup(name)
	if err != nil {
		s.mu.Unlock()
		return Status{}, err
	}
	if p.cmd != nil || p.starting {
		st := p.status()
		st.Message = name + " already launched"
		s.mu.Unlock()
		return st, nil
	}
	p.starting = true
	app := p.app
	s.mu.Unlock()

	cmd, done, runID, err := s.launch(p, app)
	if err != nil {
		s.mu.Lock()
		p.starting = false
		p.state = StateFailedToStart
		p.message = fmt.Sprintf("%s launching failed: %v", name, err)
		st := p.status()
		s.mu.Unlock()
		return st, fmt.Errorf("%w: %s: %w", ErrLaunchFailed, name, err)
	}

	log := slog.With("app", name, "run", runID, "pid", cmd.Process.Pid)

	select {
	case <-done:
		s.mu.Lock()
		defer s.mu.Unlock()
		p.starting = false
		p.state = StateFailedToStart
		p.message = fmt.Sprintf("%s launching failed: exited within %s (%v)", name, s.Grace, p.exitErr)
		log.Warn("App exited during startup", "error", p.exitErr)
		return p.status(), fmt.Errorf("%w: %s exited during startup: %v", ErrLaunchFailed, name, p.exitErr)

	case <-ctx.Done():
		s.terminate(cmd, done)
		s.mu.Lock()
		defer s.mu.Unlock()
		p.starting = false
		p.state = StateStopped
		p.message = name + " launch cancelled"
		return p.status(), ctx.Err()

	case <-time.After(s.Grace):
		s.mu.Lock()
		defer s.mu.Unlock()
		p.starting = false
		if p.cmd != cmd {
			// Exited right at the end of the grace period.
			p.state = StateFailedToStart
			p.message = fmt.Sprintf("%s launching failed: %v", name, p.exitErr)
			return p.status(), fmt.Errorf("%w: %s", ErrLaunchFailed, name)
		}
		p.state = StateRunning
		p.message = name + " has been launched"
		log.Info("App launched")
		return p.status(), nil
	}
}

// launch starts the process and its wait goroutine. done is closed after the
// process state has been updated.
func (s *Supervisor) launch(p *proc, app App) (*exec.Cmd, chan struct{}, string, error) {
	cmd := exec.Command(app.Command, app.Args...)

	var logFile *os.File
	if app.LogPath != "" {
		flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
		if app.CleanLog {
			flags |= os.O_TRUNC
		}
		f, err := os.OpenFile(app.LogPath, flags, 0o644)
		if err != nil {
			return nil, nil, "", fmt.Errorf("open log: %w", err)
		}
		logFile = f
		cmd.Stdout = f
		cmd.Stderr = f
	}

	if err := cmd.Start(); err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return nil, nil, "", err
	}

	runID := uuid.NewString()
	done := make(chan struct{})

	s.mu.Lock()
	p.cmd = cmd
	p.done = done
	p.runID = runID
	p.started = time.Now()
	p.exitErr = nil
	s.mu.Unlock()

	go func() {
		err := cmd.Wait()
		if logFile != nil {
			logFile.Close()
		}

		s.mu.Lock()
		p.exitErr = err
		if p.cmd == cmd {
			p.cmd = nil
			if p.state == StateRunning {
				p.state = StateStopped
				p.message = fmt.Sprintf("%s exited: %v", app.Name, describeExit(err))
				slog.Warn("App exited", "app", app.Name, "run", runID, "error", err)
			}
		}
		s.mu.Unlock()
		close(done)
	}()

	return cmd, done, runID, nil
}

func describeExit(err error) string {
	if err == nil {
		return "exit status 0"
	}
	return err.Error()
}

// terminate sends SIGTERM, escalating to SIGKILL after StopTimeout.
func (s *Supervisor) terminate(cmd *exec.Cmd, done <-chan struct{}) {
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		_ = cmd.Process.Kill()
	}
	select {
	case <-done:
	case <-time.After(s.StopTimeout):
		_ = cmd.Process.Kill()
		<-done
	}
}

// Stop terminates name and waits for it to exit.
func (s *Supervisor) Stop(name string) (Status, error) {
	s.mu.Lock()
	p, err := s.lookup(name)
	if err != nil {
		s.mu.Unlock()
		return Status{}, err
	}
	if p.cmd == nil || p.starting {
		st := p.status()
		st.Message = name + " is not running"
		s.mu.Unlock()
		return st, fmt.Errorf("%w: %s", ErrNotRunning, name)
	}
	cmd, done, runID := p.cmd, p.done, p.runID
	// Keeps the wait goroutine from reporting this exit as unexpected.
	p.state = StateStopped
	s.mu.Unlock()

	s.terminate(cmd, done)

	s.mu.Lock()
	defer s.mu.Unlock()
	p.message = name + " stopped successfully"
	slog.Info("App stopped", "app", name, "run", runID)
	return p.status(), nil
}

// Status reports the state of name.
func (s *Supervisor) Status(name string) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.lookup(name)
	if err != nil {
		return Status{}, err
	}
	st := p.status()
	if p.state == StateRunning {
		st.Message = name + " is running"
	}
	return st, nil
}

// List reports every app in definition order.
func (s *Supervisor) List() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Status, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.procs[name].status())
	}
	return out
}

// Reconcile logs the state of every app. It runs periodically so that exits
// show up in the service log.
func (s *Supervisor) Reconcile() {
	for _, st := range s.List() {
		slog.Info("App status", "app", st.App, "state", st.State, "pid", st.PID, "run", st.RunID, "message", st.Message)
	}
}

// StopAll stops every running app, for process shutdown.
func (s *Supervisor) StopAll() {
	for _, st := range s.List() {
		if st.State != StateRunning {
			continue
		}
		if _, err := s.Stop(st.App); err != nil && !errors.Is(err, ErrNotRunning) {
			slog.Error("Failed to stop app", "app", st.App, "error", err)
		}
	}
}
