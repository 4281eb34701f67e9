package main

import (
	"context"
	"fmt"

	"github.com/abiosoft/ishell"
	"github.com/pkg/errors"

	"github.com/hipsterbrown/lx16a-servo/lx16a"
	"github.com/hipsterbrown/lx16a-servo/transports"
)

var commands = []*ishell.Cmd{
	&MoveCmd,
	&PosCmd,
	&TorqueCmd,
	&LimitsCmd,
	&ModeCmd,
	&TempCmd,
	&VinCmd,
	&IDCmd,
	&LEDCmd,
	&StopCmd,
	&ScanCmd,
	&ApplyCmd,
	&PortsCmd,
	&StatsCmd,
}

var (
	// MoveCmd moves a servo to an angle.
	MoveCmd = ishell.Cmd{
		Name:    "move",
		Aliases: []string{"m"},
		Help:    "SERVO DEGREES [MS]",
		Func: MustBeOpen(func(c *ishell.Context) {
			s := ShellFrom(c)
			id, err := s.servoID(c)
			if err != nil {
				c.Err(err)
				return
			}
			deg, err := argFloat(c, 1, "angle")
			if err != nil {
				c.Err(err)
				return
			}
			ms := 0
			if len(c.Args) > 2 {
				if ms, err = argInt(c, 2, "time"); err != nil {
					c.Err(err)
					return
				}
			}
			if _, p, ok := s.Profile.ByID(id); ok {
				deg = p.ToServoAngle(deg)
			}
			err = s.Do(func(ctx context.Context, bus *lx16a.Bus) error {
				return bus.MoveToAngle(ctx, id, deg, ms)
			})
			if err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}

	// PosCmd reads a servo position.
	PosCmd = ishell.Cmd{
		Name:    "pos",
		Aliases: []string{"p"},
		Help:    "SERVO",
		Func: MustBeOpen(func(c *ishell.Context) {
			s := ShellFrom(c)
			id, err := s.servoID(c)
			if err != nil {
				c.Err(err)
				return
			}
			var pos int
			err = s.Do(func(ctx context.Context, bus *lx16a.Bus) (err error) {
				pos, err = bus.ReadPosition(ctx, id)
				return err
			})
			if err != nil {
				c.Err(err)
				return
			}
			deg := lx16a.PositionToAngle(pos)
			if _, p, ok := s.Profile.ByID(id); ok {
				deg = p.FromServoAngle(deg)
			}
			c.Printf("%d (%.1f°)\n", pos, deg)
		}),
	}

	// TorqueCmd switches a servo motor on or off.
	TorqueCmd = ishell.Cmd{
		Name:    "torque",
		Aliases: []string{"t"},
		Help:    "SERVO [on|off]",
		Func: MustBeOpen(func(c *ishell.Context) {
			s := ShellFrom(c)
			id, err := s.servoID(c)
			if err != nil {
				c.Err(err)
				return
			}
			if len(c.Args) < 2 {
				var on bool
				err = s.Do(func(ctx context.Context, bus *lx16a.Bus) (err error) {
					on, err = bus.TorqueEnabled(ctx, id)
					return err
				})
				if err != nil {
					c.Err(err)
					return
				}
				c.Println(onOff(on))
				return
			}
			on, err := argOnOff(c, 1)
			if err != nil {
				c.Err(err)
				return
			}
			if err := s.Do(func(ctx context.Context, bus *lx16a.Bus) error {
				return bus.SetTorque(ctx, id, on)
			}); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}

	// LimitsCmd reads or writes angle limits.
	LimitsCmd = ishell.Cmd{
		Name: "limits",
		Help: "SERVO [MIN_DEG MAX_DEG]",
		Func: MustBeOpen(func(c *ishell.Context) {
			s := ShellFrom(c)
			id, err := s.servoID(c)
			if err != nil {
				c.Err(err)
				return
			}
			if len(c.Args) < 3 {
				var lo, hi int
				err = s.Do(func(ctx context.Context, bus *lx16a.Bus) (err error) {
					lo, hi, err = bus.ReadAngleLimits(ctx, id)
					return err
				})
				if err != nil {
					c.Err(err)
					return
				}
				c.Printf("%d-%d (%.1f°-%.1f°)\n", lo, hi, lx16a.PositionToAngle(lo), lx16a.PositionToAngle(hi))
				return
			}
			lo, err := argFloat(c, 1, "min angle")
			if err != nil {
				c.Err(err)
				return
			}
			hi, err := argFloat(c, 2, "max angle")
			if err != nil {
				c.Err(err)
				return
			}
			if err := s.Do(func(ctx context.Context, bus *lx16a.Bus) error {
				return bus.SetAngleLimits(ctx, id, lo, hi)
			}); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}

	// ModeCmd switches between position and wheel mode.
	ModeCmd = ishell.Cmd{
		Name: "mode",
		Help: "SERVO [servo|wheel SPEED]",
		Func: MustBeOpen(func(c *ishell.Context) {
			s := ShellFrom(c)
			id, err := s.servoID(c)
			if err != nil {
				c.Err(err)
				return
			}
			if len(c.Args) < 2 {
				var mode lx16a.Mode
				err = s.Do(func(ctx context.Context, bus *lx16a.Bus) (err error) {
					mode, err = bus.ReadMode(ctx, id)
					return err
				})
				if err != nil {
					c.Err(err)
					return
				}
				if mode.Continuous {
					c.Printf("wheel %d\n", mode.Speed)
				} else {
					c.Println("servo")
				}
				return
			}
			var continuous bool
			var speed int
			switch c.Args[1] {
			case "servo":
			case "wheel":
				continuous = true
				if speed, err = argInt(c, 2, "speed"); err != nil {
					c.Err(err)
					return
				}
				if speed < -1000 || speed > 1000 {
					c.Err(errors.Errorf("speed %d out of range -1000..1000", speed))
					return
				}
			default:
				c.Err(errors.Errorf("unknown mode %q", c.Args[1]))
				return
			}
			if err := s.Do(func(ctx context.Context, bus *lx16a.Bus) error {
				return bus.SetMode(ctx, id, continuous, int16(speed))
			}); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}

	// TempCmd reads the servo temperature.
	TempCmd = ishell.Cmd{
		Name: "temp",
		Help: "SERVO",
		Func: MustBeOpen(func(c *ishell.Context) {
			s := ShellFrom(c)
			id, err := s.servoID(c)
			if err != nil {
				c.Err(err)
				return
			}
			var temp, limit int
			err = s.Do(func(ctx context.Context, bus *lx16a.Bus) (err error) {
				if temp, err = bus.ReadTemperature(ctx, id); err != nil {
					return err
				}
				limit, err = bus.ReadMaxTemperature(ctx, id)
				return err
			})
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("%d°C (limit %d°C)\n", temp, limit)
		}),
	}

	// VinCmd reads the servo supply voltage.
	VinCmd = ishell.Cmd{
		Name: "vin",
		Help: "SERVO",
		Func: MustBeOpen(func(c *ishell.Context) {
			s := ShellFrom(c)
			id, err := s.servoID(c)
			if err != nil {
				c.Err(err)
				return
			}
			var mv, lo, hi int
			err = s.Do(func(ctx context.Context, bus *lx16a.Bus) (err error) {
				if mv, err = bus.ReadVoltage(ctx, id); err != nil {
					return err
				}
				lo, hi, err = bus.ReadVoltageLimits(ctx, id)
				return err
			})
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("%.2fV (window %.1fV-%.1fV)\n", float64(mv)/1000, float64(lo)/1000, float64(hi)/1000)
		}),
	}

	// IDCmd reads or changes a servo ID.
	IDCmd = ishell.Cmd{
		Name: "id",
		Help: "SERVO [NEW_ID]",
		Func: MustBeOpen(func(c *ishell.Context) {
			s := ShellFrom(c)
			id, err := s.servoID(c)
			if err != nil {
				c.Err(err)
				return
			}
			if len(c.Args) < 2 {
				var got int
				err = s.Do(func(ctx context.Context, bus *lx16a.Bus) (err error) {
					got, err = bus.ReadID(ctx, id)
					return err
				})
				if err != nil {
					c.Err(err)
					return
				}
				c.Println(got)
				return
			}
			newID, err := argInt(c, 1, "new id")
			if err != nil {
				c.Err(err)
				return
			}
			if err := s.Do(func(ctx context.Context, bus *lx16a.Bus) error {
				return bus.SetID(ctx, id, newID)
			}); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}

	// LEDCmd reads or switches the status LED.
	LEDCmd = ishell.Cmd{
		Name: "led",
		Help: "SERVO [on|off]",
		Func: MustBeOpen(func(c *ishell.Context) {
			s := ShellFrom(c)
			id, err := s.servoID(c)
			if err != nil {
				c.Err(err)
				return
			}
			if len(c.Args) < 2 {
				var on bool
				var faults byte
				err = s.Do(func(ctx context.Context, bus *lx16a.Bus) (err error) {
					if on, err = bus.LEDOn(ctx, id); err != nil {
						return err
					}
					faults, err = bus.LEDFaults(ctx, id)
					return err
				})
				if err != nil {
					c.Err(err)
					return
				}
				c.Printf("%s (fault mask 0x%02X)\n", onOff(on), faults)
				return
			}
			on, err := argOnOff(c, 1)
			if err != nil {
				c.Err(err)
				return
			}
			if err := s.Do(func(ctx context.Context, bus *lx16a.Bus) error {
				return bus.SetLED(ctx, id, on)
			}); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}

	// StopCmd halts a servo, or all servos with "all".
	StopCmd = ishell.Cmd{
		Name: "stop",
		Help: "SERVO|all",
		Func: MustBeOpen(func(c *ishell.Context) {
			s := ShellFrom(c)
			id := lx16a.BroadcastID
			if len(c.Args) == 0 || c.Args[0] != "all" {
				var err error
				if id, err = s.servoID(c); err != nil {
					c.Err(err)
					return
				}
			}
			if err := s.Do(func(ctx context.Context, bus *lx16a.Bus) error {
				return bus.StopMove(ctx, id)
			}); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}

	// ScanCmd looks for servos answering an ID read in a range.
	ScanCmd = ishell.Cmd{
		Name: "scan",
		Help: "[FROM [TO]]",
		Func: MustBeOpen(func(c *ishell.Context) {
			s := ShellFrom(c)
			from, to := 0, lx16a.MaxServoID
			var err error
			if len(c.Args) > 0 {
				if from, err = argInt(c, 0, "from"); err != nil {
					c.Err(err)
					return
				}
				to = from
			}
			if len(c.Args) > 1 {
				if to, err = argInt(c, 1, "to"); err != nil {
					c.Err(err)
					return
				}
			}
			found := 0
			for id := from; id <= to; id++ {
				ctx, cancel := context.WithTimeout(context.Background(), commandDeadline)
				got, err := s.Bus.ReadID(ctx, id)
				cancel()
				if err != nil {
					continue
				}
				found++
				c.Printf("servo %d\n", got)
			}
			c.Printf("%d servo(s) found\n", found)
		}),
	}

	// ApplyCmd pushes the loaded profile to the servos.
	ApplyCmd = ishell.Cmd{
		Name: "apply",
		Help: "",
		Func: MustBeOpen(func(c *ishell.Context) {
			s := ShellFrom(c)
			if len(s.Profile) == 0 {
				c.Err(errors.New("no profile loaded, start with -profile"))
				return
			}
			for _, name := range s.Profile.Names() {
				p := s.Profile[name]
				if err := s.Do(func(ctx context.Context, bus *lx16a.Bus) error {
					return p.Apply(ctx, bus)
				}); err != nil {
					c.Err(errors.Wrapf(err, "apply %s", name))
					return
				}
				c.Printf("%s: %s\n", name, p)
			}
		}),
	}

	// PortsCmd lists serial ports on the host.
	PortsCmd = ishell.Cmd{
		Name:    "ports",
		Aliases: []string{"list", "l"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ports, err := transports.ListPorts()
			if err != nil {
				c.Err(err)
				return
			}
			if len(ports) == 0 {
				c.Println("No serial ports found")
				return
			}
			for _, p := range ports {
				if p.IsUSB {
					c.Printf("%s: USB %s:%s %s %s\n", p.Name, p.VID, p.PID, p.Product, p.SerialNumber)
					continue
				}
				c.Println(p.Name)
			}
		},
	}

	// StatsCmd prints bus counters.
	StatsCmd = ishell.Cmd{
		Name: "stats",
		Help: "",
		Func: MustBeOpen(func(c *ishell.Context) {
			m := ShellFrom(c).Bus.Metrics()
			for _, line := range formatMetrics(m) {
				c.Println(line)
			}
		}),
	}
)

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func formatMetrics(m *lx16a.BusMetrics) []string {
	lines := []string{
		fmt.Sprintf("frames sent:       %d", m.FramesSent.Load()),
		fmt.Sprintf("replies validated: %d", m.FramesReceived.Load()),
		fmt.Sprintf("echo bytes:        %d (mismatched %d)", m.EchoBytes.Load(), m.EchoMismatches.Load()),
		fmt.Sprintf("noise bytes:       %d", m.NoiseBytes.Load()),
		fmt.Sprintf("header timeouts:   %d", m.HeaderTimeouts.Load()),
		fmt.Sprintf("body timeouts:     %d", m.BodyTimeouts.Load()),
		fmt.Sprintf("checksum errors:   %d", m.ChecksumErrors.Load()),
		fmt.Sprintf("malformed replies: %d", m.MalformedReplies.Load()),
		fmt.Sprintf("oversize replies:  %d", m.OversizeReplies.Load()),
		fmt.Sprintf("transport errors:  %d", m.TransportErrors.Load()),
		fmt.Sprintf("quiet resets:      %d", m.QuietResets.Load()),
		fmt.Sprintf("retries:           %d", m.Retries.Load()),
	}
	for _, s := range m.Servos() {
		lines = append(lines, fmt.Sprintf("servo %3d: %d requests, %d failures", s.ID, s.Requests, s.Failures))
	}
	return lines
}
