// Package tone plays the excitation sine on a sound card through the SoX
// `play` runtime. A frequency change restarts the player process.
package tone

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/roman-kulish/bodeplot/internal/bench"
	"github.com/roman-kulish/bodeplot/internal/bench/driver"
)

const (
	Runtime = "play"
	Device  = "tone"
)

type commandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// WithLogger sets the logger for the generator
func WithLogger(logger *slog.Logger) func(g *Generator) {
	return func(g *Generator) {
		g.logger = logger.With(slog.String("device", Device))
	}
}

// Generator implements bench.Generator. Start arms the output; the player
// process runs whenever the generator is armed and a frequency is set.
type Generator struct {
	binPath string
	config  *Config
	command commandFunc

	mu        sync.Mutex
	armed     bool
	frequency float64
	cancel    context.CancelFunc
	exited    chan error

	logger *slog.Logger
}

// New creates a generator backed by the player runtime found in PATH
func New(config *Config, options ...func(g *Generator)) (*Generator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	binPath, err := driver.FindRuntime(config.runtime())
	if err != nil {
		return nil, fmt.Errorf("error finding runtime: %w", err)
	}

	return newGenerator(binPath, config, exec.CommandContext, options...), nil
}

func newGenerator(binPath string, config *Config, command commandFunc, options ...func(g *Generator)) *Generator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	g := Generator{
		binPath: binPath,
		config:  config,
		command: command,
		logger:  logger,
	}

	for _, option := range options {
		option(&g)
	}

	return &g
}

// SetFrequency changes the tone frequency, restarting the player when armed.
// The player runs until Stop, another SetFrequency or the end of ctx.
func (g *Generator) SetFrequency(ctx context.Context, hz float64) error {
	if _, err := g.config.Args(hz); err != nil {
		return bench.AcquisitionError(Device, "set frequency", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.frequency = hz

	if !g.armed {
		return nil
	}

	if err := g.stopLocked(); err != nil {
		return bench.AcquisitionError(Device, "set frequency", err)
	}

	if err := g.startLocked(ctx); err != nil {
		return bench.AcquisitionError(Device, "set frequency", err)
	}

	return nil
}

// Start arms the output. The player starts immediately if a frequency is set,
// otherwise on the first SetFrequency.
func (g *Generator) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.armed {
		return nil // already started
	}

	g.armed = true

	if g.frequency == 0 {
		return nil
	}

	if err := g.startLocked(ctx); err != nil {
		g.armed = false
		return bench.AcquisitionError(Device, "start", err)
	}

	return nil
}

// Stop silences the output and waits for the player to exit
func (g *Generator) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.armed = false
	return g.stopLocked()
}

// IsPlaying returns true while a player process is running
func (g *Generator) IsPlaying() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.cancel != nil
}

func (g *Generator) startLocked(ctx context.Context) error {
	args, err := g.config.Args(g.frequency)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	cmd := g.command(ctx, g.binPath, args...)
	if env := g.config.Env(); len(env) > 0 {
		if cmd.Env == nil {
			cmd.Env = os.Environ()
		}
		cmd.Env = append(cmd.Env, env...)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("error creating stderr pipe: %w", err)
	}

	if err = cmd.Start(); err != nil {
		cancel()
		return driver.NewRuntimeError(g.binPath, fmt.Errorf("error starting command: %w", err))
	}

	g.logger.Debug("tone started", slog.Float64("frequency", g.frequency))

	exited := make(chan error, 1)
	go func() {
		g.handleStderr(stderr)
		exited <- g.handleCmdWait(ctx, cmd)
	}()

	g.cancel = cancel
	g.exited = exited

	return nil
}

func (g *Generator) stopLocked() error {
	if g.cancel == nil {
		return nil // already stopped
	}

	g.cancel()
	err := <-g.exited

	g.cancel = nil
	g.exited = nil

	return err
}

// handleStderr reads from stderr and logs player warnings
func (g *Generator) handleStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		g.logger.Warn(fmt.Sprintf("%s >> %s", Runtime, line))
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
		g.logger.Warn(fmt.Sprintf("error reading stderr: %s", err))
	}
}

// handleCmdWait waits for the player to exit. Exits caused by Stop are not errors.
func (g *Generator) handleCmdWait(ctx context.Context, cmd *exec.Cmd) error {
	err := cmd.Wait()
	if err == nil || ctx.Err() != nil {
		return nil
	}

	g.logger.Error(fmt.Sprintf("player exited: %s", err))
	return fmt.Errorf("player exited with error: %w", err)
}
