package lx16a

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/pkg/errors"
)

// ServoProfile holds the persistent configuration of one servo.
type ServoProfile struct {
	ID             int     `json:"id"`
	MinAngle       float64 `json:"min_angle"`                   // degrees, 0-240
	MaxAngle       float64 `json:"max_angle"`                   // degrees, 0-240
	AngleOffset    int     `json:"angle_offset,omitempty"`      // position units, -125..125
	MinVoltage     int     `json:"min_voltage_mv,omitempty"`    // 0 leaves the servo setting alone
	MaxVoltage     int     `json:"max_voltage_mv,omitempty"`    // 0 leaves the servo setting alone
	MaxTemperature int     `json:"max_temperature_c,omitempty"` // 0 leaves the servo setting alone
	Inverted       bool    `json:"inverted,omitempty"`          // mirror angles within the limits
}

// Profile maps servo names to their configuration.
type Profile map[string]*ServoProfile

// NewServoProfile creates a profile with the full travel range.
func NewServoProfile(id int) *ServoProfile {
	return &ServoProfile{
		ID:       id,
		MinAngle: 0,
		MaxAngle: AngleRange,
	}
}

// Validate checks if the profile parameters are valid
func (p *ServoProfile) Validate() error {
	if p.ID < 0 || p.ID > MaxServoID {
		return fmt.Errorf("invalid servo ID: %d (must be 0-%d)", p.ID, MaxServoID)
	}

	if p.MinAngle >= p.MaxAngle {
		return fmt.Errorf("invalid range: min (%g) must be less than max (%g)", p.MinAngle, p.MaxAngle)
	}

	if p.MinAngle < 0 || p.MaxAngle > AngleRange {
		return fmt.Errorf("angles must be between 0-%g, got min=%g max=%g", AngleRange, p.MinAngle, p.MaxAngle)
	}

	if p.AngleOffset < MinAngleOffset || p.AngleOffset > MaxAngleOffset {
		return fmt.Errorf("angle offset %d out of range %d..%d", p.AngleOffset, MinAngleOffset, MaxAngleOffset)
	}

	if (p.MinVoltage == 0) != (p.MaxVoltage == 0) {
		return fmt.Errorf("voltage limits must be set together, got min=%d max=%d", p.MinVoltage, p.MaxVoltage)
	}
	if p.MinVoltage != 0 && p.MinVoltage >= p.MaxVoltage {
		return fmt.Errorf("invalid voltage window: min (%d) must be less than max (%d)", p.MinVoltage, p.MaxVoltage)
	}

	if p.MaxTemperature != 0 && (p.MaxTemperature < MinTempLimit || p.MaxTemperature > MaxTempLimit) {
		return fmt.Errorf("max temperature %d out of range %d-%d", p.MaxTemperature, MinTempLimit, MaxTempLimit)
	}

	return nil
}

// String returns a string representation of the profile
func (p *ServoProfile) String() string {
	direction := "Normal"
	if p.Inverted {
		direction = "Inverted"
	}

	return fmt.Sprintf("ID %d: Range[%g°-%g°] %s (offset: %d)",
		p.ID, p.MinAngle, p.MaxAngle, direction, p.AngleOffset)
}

// ToServoAngle maps a joint angle to the angle commanded on the servo,
// clamping to the limits and mirroring when inverted.
func (p *ServoProfile) ToServoAngle(deg float64) float64 {
	deg = min(max(deg, p.MinAngle), p.MaxAngle)
	if p.Inverted {
		return p.MinAngle + p.MaxAngle - deg
	}
	return deg
}

// FromServoAngle maps a servo angle back to the joint angle.
func (p *ServoProfile) FromServoAngle(deg float64) float64 {
	if p.Inverted {
		return p.MinAngle + p.MaxAngle - deg
	}
	return deg
}

// Apply writes the profile to the servo: angle limits, angle offset
// (saved), and the voltage and temperature limits that are set.
func (p *ServoProfile) Apply(ctx context.Context, bus *Bus) error {
	if err := bus.SetAngleLimits(ctx, p.ID, p.MinAngle, p.MaxAngle); err != nil {
		return err
	}

	if err := bus.AdjustAngleOffset(ctx, p.ID, p.AngleOffset); err != nil {
		return err
	}
	if err := bus.SaveAngleOffset(ctx, p.ID); err != nil {
		return err
	}

	if p.MinVoltage != 0 {
		if err := bus.SetVoltageLimits(ctx, p.ID, p.MinVoltage, p.MaxVoltage); err != nil {
			return err
		}
	}

	if p.MaxTemperature != 0 {
		if err := bus.SetMaxTemperature(ctx, p.ID, p.MaxTemperature); err != nil {
			return err
		}
	}

	return nil
}

// ByID returns the named profile for a servo ID.
func (pr Profile) ByID(id int) (string, *ServoProfile, bool) {
	for name, p := range pr {
		if p.ID == id {
			return name, p, true
		}
	}
	return "", nil, false
}

// Names returns the servo names ordered by ID.
func (pr Profile) Names() []string {
	names := make([]string, 0, len(pr))
	for name := range pr {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return pr[names[i]].ID < pr[names[j]].ID
	})
	return names
}

// Validate checks every entry and rejects duplicate IDs.
func (pr Profile) Validate() error {
	seen := make(map[int]string, len(pr))
	for _, name := range pr.Names() {
		p := pr[name]
		if p == nil {
			return errors.Errorf("servo %s has no profile", name)
		}
		if err := p.Validate(); err != nil {
			return errors.Wrapf(err, "invalid profile for servo %s", name)
		}
		if other, exists := seen[p.ID]; exists {
			return errors.Errorf("duplicate servo ID %d for %s and %s", p.ID, other, name)
		}
		seen[p.ID] = name
	}
	return nil
}

// Apply pushes every servo profile to the bus in ID order.
func (pr Profile) Apply(ctx context.Context, bus *Bus) error {
	for _, name := range pr.Names() {
		if err := pr[name].Apply(ctx, bus); err != nil {
			return errors.Wrapf(err, "apply profile %s", name)
		}
	}
	return nil
}

// LoadProfile loads a profile from a JSON file keyed by servo name.
func LoadProfile(filename string) (Profile, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read profile file")
	}

	var pr Profile
	if err := json.Unmarshal(data, &pr); err != nil {
		return nil, errors.Wrap(err, "failed to parse profile file")
	}

	if err := pr.Validate(); err != nil {
		return nil, err
	}

	return pr, nil
}

// Save writes the profile as indented JSON.
func (pr Profile) Save(filename string) error {
	data, err := json.MarshalIndent(pr, "", "    ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal profile")
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write profile file")
	}

	return nil
}
