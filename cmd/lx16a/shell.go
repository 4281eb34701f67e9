package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/pkg/errors"

	"github.com/hipsterbrown/lx16a-servo/logger"
	"github.com/hipsterbrown/lx16a-servo/lx16a"
)

// Shell provides ishell backed interactive servo console.
type Shell struct {
	Interactive bool

	Shell   *ishell.Shell
	Bus     *lx16a.Bus
	Profile lx16a.Profile
	Policy  lx16a.RetryPolicy
	Log     logger.Logger

	port string
}

const (
	shellKey        = "$shell"
	closedPrompt    = "[no bus] > "
	commandDeadline = 2 * time.Second
)

// New creates a new shell with every command registered.
func New(log logger.Logger) *Shell {
	s := &Shell{
		Interactive: true,
		Shell:       ishell.New(),
		Log:         log,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(closedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeOpen wraps command func requiring an open bus.
func MustBeOpen(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Bus == nil {
			c.Err(errors.New("no bus open, start with -port"))
			return
		}
		fn(c)
	}
}

// Open opens the bus on a serial port.
func (s *Shell) Open(port string, baud int) error {
	bus, err := lx16a.NewBus(lx16a.BusConfig{
		Port:     port,
		BaudRate: baud,
		Logger:   s.Log,
	})
	if err != nil {
		return errors.Wrapf(err, "open %s", port)
	}
	s.Close()
	s.Bus = bus
	s.port = port
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", port))
	return nil
}

// Close closes the bus if open.
func (s *Shell) Close() {
	if s.Bus == nil {
		return
	}
	if err := s.Bus.Close(); err != nil {
		s.Log.Warn("close bus failed", "port", s.port, "error", err)
	}
	s.Bus = nil
	s.Shell.SetPrompt(closedPrompt)
}

// Run evaluates args as a single command, or starts the interactive loop.
func (s *Shell) Run(args ...string) error {
	if len(args) > 0 {
		return s.Shell.Process(args...)
	}
	if s.Interactive {
		s.Shell.Run()
		return nil
	}
	return errors.New("command expected")
}

// Do runs fn against the bus with the shell's retry policy.
func (s *Shell) Do(fn func(ctx context.Context, bus *lx16a.Bus) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandDeadline)
	defer cancel()

	return s.Bus.Retry(ctx, s.Policy, func(ctx context.Context) error {
		return fn(ctx, s.Bus)
	})
}

// argInt parses c.Args[i] as an integer.
func argInt(c *ishell.Context, i int, name string) (int, error) {
	if i >= len(c.Args) {
		return 0, errors.Errorf("missing %s", name)
	}
	v, err := strconv.Atoi(c.Args[i])
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s %q", name, c.Args[i])
	}
	return v, nil
}

// argFloat parses c.Args[i] as a float.
func argFloat(c *ishell.Context, i int, name string) (float64, error) {
	if i >= len(c.Args) {
		return 0, errors.Errorf("missing %s", name)
	}
	v, err := strconv.ParseFloat(c.Args[i], 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s %q", name, c.Args[i])
	}
	return v, nil
}

// argOnOff parses c.Args[i] as on/off.
func argOnOff(c *ishell.Context, i int) (bool, error) {
	if i >= len(c.Args) {
		return false, errors.New("missing on|off")
	}
	switch c.Args[i] {
	case "on", "1", "true":
		return true, nil
	case "off", "0", "false":
		return false, nil
	}
	return false, errors.Errorf("expected on|off, got %q", c.Args[i])
}

// servoID resolves c.Args[0] as a numeric ID or a profile name.
func (s *Shell) servoID(c *ishell.Context) (int, error) {
	if len(c.Args) == 0 {
		return 0, errors.New("missing servo ID")
	}
	if p, ok := s.Profile[c.Args[0]]; ok {
		return p.ID, nil
	}
	id, err := strconv.Atoi(c.Args[0])
	if err != nil {
		return 0, errors.Errorf("unknown servo %q", c.Args[0])
	}
	return id, nil
}
