// Package supervisor runs the proxy server as a child process and discovers
// the port it bound.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"sync"
	"time"
)

const (
	DefaultStartupTimeout = 10 * time.Second
	stopGrace             = 3 * time.Second
)

var (
	ErrStartupTimeout = errors.New("server did not report its port in time")
	ErrExited         = errors.New("server exited before reporting its port")

	portPattern = regexp.MustCompile(`Listening on port (\d+)`)
)

// Config describes the child process.
type Config struct {
	Command string
	Args    []string
	// Env is appended to the current environment.
	Env            []string
	StartupTimeout time.Duration
}

// Process is a running server.
type Process struct {
	cmd  *exec.Cmd
	port int

	done    chan struct{}
	waitErr error
	stop    sync.Once
}

// Start launches the server and waits until it prints its port on stdout.
func Start(ctx context.Context, cfg Config) (*Process, error) {
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = DefaultStartupTimeout
	}

	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Env = append(os.Environ(), cfg.Env...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", cfg.Command, err)
	}
	slog.Info("server process started", "command", cfg.Command, "pid", cmd.Process.Pid)

	p := &Process{cmd: cmd, done: make(chan struct{})}
	ports := make(chan int, 1)

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		scanPort(stdout, ports)
	}()
	go func() {
		defer readers.Done()
		relay(stderr)
	}()
	go func() {
		// Wait must not run before the pipes are drained
		readers.Wait()
		p.waitErr = cmd.Wait()
		slog.Info("server process exited", "pid", cmd.Process.Pid, "error", p.waitErr)
		close(p.done)
	}()

	timer := time.NewTimer(cfg.StartupTimeout)
	defer timer.Stop()

	select {
	case p.port = <-ports:
		slog.Info("server listening", "port", p.port)
		return p, nil
	case <-p.done:
		return nil, fmt.Errorf("%w: %v", ErrExited, p.waitErr)
	case <-timer.C:
		_ = p.Stop()
		return nil, fmt.Errorf("%w after %s", ErrStartupTimeout, cfg.StartupTimeout)
	case <-ctx.Done():
		_ = p.Stop()
		return nil, ctx.Err()
	}
}

// scanPort reports the first announced port and keeps draining stdout.
func scanPort(r io.Reader, ports chan<- int) {
	found := false
	lines := bufio.NewScanner(r)
	for lines.Scan() {
		line := lines.Text()
		slog.Debug("server stdout", "line", line)
		if found {
			continue
		}
		if m := portPattern.FindStringSubmatch(line); m != nil {
			port, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			found = true
			ports <- port
		}
	}
}

func relay(r io.Reader) {
	lines := bufio.NewScanner(r)
	for lines.Scan() {
		slog.Info("server", "line", lines.Text())
	}
}

// Port is the port the server announced.
func (p *Process) Port() int {
	return p.port
}

// URL is the base URL of the server's endpoint.
func (p *Process) URL() string {
	return "http://127.0.0.1:" + strconv.Itoa(p.port)
}

// Done is closed once the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Stop interrupts the process, kills it if it has not exited within a grace
// period and waits for it to exit.
func (p *Process) Stop() error {
	var err error
	p.stop.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}
		if ierr := p.cmd.Process.Signal(os.Interrupt); ierr == nil {
			select {
			case <-p.done:
				return
			case <-time.After(stopGrace):
				slog.Warn("server ignored interrupt, killing it", "pid", p.cmd.Process.Pid)
			}
		}
		if kerr := p.cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
			err = fmt.Errorf("kill server: %w", kerr)
			return
		}
		<-p.done
	})
	return err
}
