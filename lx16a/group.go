package lx16a

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ServoGroup manages coordinated operations across multiple servos.
type ServoGroup struct {
	bus    *Bus
	servos []*Servo
	ids    []int
}

// PositionMap is a map of servo ID to position value.
type PositionMap map[int]int

// AngleMap is a map of servo ID to angle in degrees.
type AngleMap map[int]float64

// NewServoGroup creates a new group from the given servos.
func NewServoGroup(bus *Bus, servos ...*Servo) *ServoGroup {
	ids := make([]int, len(servos))
	for i, s := range servos {
		ids[i] = s.ID()
	}
	return &ServoGroup{
		bus:    bus,
		servos: servos,
		ids:    ids,
	}
}

// NewServoGroupByIDs creates servos with the given IDs and groups them.
func NewServoGroupByIDs(bus *Bus, ids ...int) *ServoGroup {
	servos := make([]*Servo, len(ids))
	for i, id := range ids {
		servos[i] = NewServo(bus, id)
	}
	return NewServoGroup(bus, servos...)
}

// Servos returns the servos in this group.
func (g *ServoGroup) Servos() []*Servo {
	return g.servos
}

// IDs returns the servo IDs in this group.
func (g *ServoGroup) IDs() []int {
	return g.ids
}

// ServoByID returns the servo with the given ID, or nil if not found.
func (g *ServoGroup) ServoByID(id int) *Servo {
	for _, s := range g.servos {
		if s.ID() == id {
			return s
		}
	}
	return nil
}

// Positions reads every servo in turn. Servos that fail are left out of the
// map and their errors are joined.
func (g *ServoGroup) Positions(ctx context.Context) (PositionMap, error) {
	positions := make(PositionMap, len(g.servos))
	var errs []error
	for _, s := range g.servos {
		pos, err := s.Position(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return positions, ctx.Err()
			}
			errs = append(errs, err)
			continue
		}
		positions[s.ID()] = pos
	}
	return positions, errors.Join(errs...)
}

// SetPositions moves the given servos together: each receives a deferred
// move, then a broadcast start releases them at once. Only servos present
// in positions are written.
func (g *ServoGroup) SetPositions(ctx context.Context, positions PositionMap, timeMs int) error {
	if len(positions) == 0 {
		return nil
	}

	for id := range positions {
		if g.ServoByID(id) == nil {
			return fmt.Errorf("servo ID %d not in group", id)
		}
	}

	// Write in group order so the bus traffic is deterministic.
	for _, id := range g.ids {
		pos, ok := positions[id]
		if !ok {
			continue
		}
		if err := g.bus.MoveToPositionDeferred(ctx, id, pos, timeMs); err != nil {
			return err
		}
	}

	return g.bus.StartMove(ctx, BroadcastID)
}

// SetAngles is SetPositions in degrees.
func (g *ServoGroup) SetAngles(ctx context.Context, angles AngleMap, timeMs int) error {
	positions := make(PositionMap, len(angles))
	for id, deg := range angles {
		positions[id] = AngleToPosition(deg)
	}
	return g.SetPositions(ctx, positions, timeMs)
}

// EnableAll enables torque on all servos.
func (g *ServoGroup) EnableAll(ctx context.Context) error {
	return g.each(ctx, func(s *Servo) error { return s.Enable(ctx) })
}

// DisableAll disables torque on all servos.
func (g *ServoGroup) DisableAll(ctx context.Context) error {
	return g.each(ctx, func(s *Servo) error { return s.Disable(ctx) })
}

// StopAll halts every servo in the group.
func (g *ServoGroup) StopAll(ctx context.Context) error {
	return g.each(ctx, func(s *Servo) error { return s.Stop(ctx) })
}

// MoveTo moves servos to target positions and waits until each reads back
// within tolerance. Returns the final positions of the commanded servos.
func (g *ServoGroup) MoveTo(ctx context.Context, positions PositionMap, timeMs, tolerance int) (PositionMap, error) {
	if err := g.SetPositions(ctx, positions, timeMs); err != nil {
		return nil, err
	}
	return g.WaitForPositions(ctx, positions, tolerance, 20*time.Millisecond)
}

// WaitForPositions polls the targeted servos until every one is within
// tolerance of its target or ctx is done.
func (g *ServoGroup) WaitForPositions(ctx context.Context, targets PositionMap, tolerance int, interval time.Duration) (PositionMap, error) {
	current := make(PositionMap, len(targets))
	for {
		done := true
		for id, want := range targets {
			pos, err := g.bus.ReadPosition(ctx, id)
			if err != nil {
				return current, err
			}
			current[id] = pos
			if abs(pos-want) > tolerance {
				done = false
			}
		}
		if done {
			return current, nil
		}

		select {
		case <-ctx.Done():
			return current, ctx.Err()
		case <-g.bus.clock.After(interval):
		}
	}
}

// each applies fn to every servo, stopping at the first error.
func (g *ServoGroup) each(ctx context.Context, fn func(*Servo) error) error {
	for _, s := range g.servos {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(s); err != nil {
			return err
		}
	}
	return nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
