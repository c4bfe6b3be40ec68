package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// ExitKilled is the exit code reported when the child had to be killed.
const ExitKilled = 137

// ErrNotStarted is returned by Wait before Start.
var ErrNotStarted = errors.New("process not started")

// OutputHandler receives output lines from the subprocess.
type OutputHandler interface {
	HandleLine(source, line string)
}

// LogParser returns the level and message of one line of process output,
// such as ffmpeg stderr.
type LogParser func(line string) (slog.Level, string)

// Process manages one subprocess fed through stdin.
type Process struct {
	id              string
	args            []string
	logger          *slog.Logger
	processLogger   *slog.Logger // logger for process output (nil = use logger)
	logParser       LogParser    // parses process output for log level (nil = no parsing)
	outputHandler   OutputHandler
	stdout          io.Writer
	gracefulTimeout time.Duration // timeout for graceful shutdown before force kill
	killTimeout     time.Duration // timeout after Kill() before giving up

	mu          sync.Mutex
	cmd         *exec.Cmd
	processDone chan error
	outputDone  chan struct{}
	outputs     int
}

// New creates a process for args. args[0] is the executable.
func New(id string, args []string, logger *slog.Logger) *Process {
	return &Process{
		id:              id,
		args:            args,
		logger:          logger,
		gracefulTimeout: 5 * time.Second,
		killTimeout:     5 * time.Second,
	}
}

// Command returns the command line for logging.
func (p *Process) Command() string {
	return strings.Join(p.args, " ")
}

// SetLogParser sets a custom logger and log parser for process output.
// The logger is used for process output (e.g., module="ffmpeg").
// The parser extracts log level from process-specific output formats.
func (p *Process) SetLogParser(logger *slog.Logger, parser LogParser) {
	p.processLogger = logger
	p.logParser = parser
}

// SetOutputHandler sets a handler that sees every output line.
func (p *Process) SetOutputHandler(handler OutputHandler) {
	p.outputHandler = handler
}

// SetStdout copies the child's stdout to w instead of logging it.
func (p *Process) SetStdout(w io.Writer) {
	p.stdout = w
}

// SetTimeouts overrides the graceful-stop and kill timeouts.
func (p *Process) SetTimeouts(graceful, kill time.Duration) {
	p.gracefulTimeout = graceful
	p.killTimeout = kill
}

// Start launches the subprocess and returns its stdin.
func (p *Process) Start() (io.WriteCloser, error) {
	if len(p.args) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil {
		return nil, fmt.Errorf("process %s already started", p.id)
	}

	cmd := exec.Command(p.args[0], p.args[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}

	var stdout io.ReadCloser
	if p.stdout != nil {
		cmd.Stdout = p.stdout
	} else if stdout, err = cmd.StdoutPipe(); err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		p.logger.Error("Failed to start process", "error", err, "command", p.Command())
		return nil, err
	}
	p.logger.Info("Process started", "id", p.id, "pid", cmd.Process.Pid, "command", p.Command())

	p.cmd = cmd
	p.outputDone = make(chan struct{}, 2)
	if stdout != nil {
		p.outputs++
		go p.streamOutput(stdout, "stdout")
	}
	p.outputs++
	go p.streamOutput(stderr, "stderr")

	// Pipes must be drained before cmd.Wait closes them.
	p.processDone = make(chan error, 1)
	go func() {
		for range p.outputs {
			<-p.outputDone
		}
		p.processDone <- cmd.Wait()
	}()

	return stdin, nil
}

// Wait blocks until the subprocess exits and returns its exit code. If ctx
// is cancelled first, the child gets SIGINT and is killed after the
// graceful timeout.
func (p *Process) Wait(ctx context.Context) (int, error) {
	p.mu.Lock()
	done := p.processDone
	p.mu.Unlock()
	if done == nil {
		return 1, ErrNotStarted
	}

	select {
	case err := <-done:
		code := exitCodeFromError(err)
		p.logger.Info("Process exited", "id", p.id, "exit_code", code)
		return code, exitError(err)
	case <-ctx.Done():
		p.logger.Info("Context cancelled, shutting down process", "id", p.id)
		p.sendStopSignal()
		return p.waitForExit(done), ctx.Err()
	}
}

// Pid returns the child's pid, or 0 before Start.
func (p *Process) Pid() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// exitCodeFromError extracts exit code from process error.
// Returns 0 for nil error, the exit code for ExitError, or 1 for other errors.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

// exitError drops plain non-zero exits, which the exit code already reports.
func exitError(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

// sendStopSignal sends SIGINT to the subprocess without waiting.
func (p *Process) sendStopSignal() {
	if p.cmd == nil || p.cmd.Process == nil {
		return
	}
	p.logger.Info("Sending SIGINT to process", "pid", p.cmd.Process.Pid)
	if err := p.cmd.Process.Signal(syscall.SIGINT); err != nil {
		p.logger.Warn("Failed to send SIGINT", "error", err)
	}
}

// waitForExit waits for the process to exit with a timeout, force-killing if needed.
func (p *Process) waitForExit(processDone <-chan error) int {
	select {
	case err := <-processDone:
		return exitCodeFromError(err)
	case <-time.After(p.gracefulTimeout):
		p.logger.Warn("Graceful shutdown timeout, forcing kill", "timeout", p.gracefulTimeout)
		if p.cmd.Process != nil {
			if err := p.cmd.Process.Kill(); err != nil {
				// "os: process already finished" is OK - process exited between timeout and kill
				if !errors.Is(err, os.ErrProcessDone) {
					p.logger.Error("Failed to kill process", "error", err)
				}
			}
		}
		select {
		case <-processDone:
		case <-time.After(p.killTimeout):
			p.logger.Error("Process did not exit after kill signal")
		}
		return ExitKilled
	}
}

// streamOutput logs each output line at the level the parser reports.
func (p *Process) streamOutput(reader io.Reader, source string) {
	defer func() { p.outputDone <- struct{}{} }()

	scanner := bufio.NewScanner(reader)
	logger := p.processLogger
	if logger == nil {
		logger = p.logger
	}

	for scanner.Scan() {
		line := scanner.Text()

		if p.outputHandler != nil {
			p.outputHandler.HandleLine(source, line)
		}

		level, msg := slog.LevelInfo, line
		if p.logParser != nil {
			level, msg = p.logParser(line)
		}
		logger.Log(context.Background(), level, msg)
	}

	if err := scanner.Err(); err != nil {
		p.logger.Warn("Error reading output", "source", source, "error", err)
	}
}
