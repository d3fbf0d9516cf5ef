package config

import (
	"sort"

	"github.com/Comet-Robotics/chessbots-server-sub000/protocol"
)

// Tunables is the allow-list of firmware variables the server may push in
// SERVER_HELLO, with their storage types.
var Tunables = map[string]protocol.VarType{
	"invertLeftMotor":     protocol.VarBool,
	"invertRightMotor":    protocol.VarBool,
	"leftMotorScale":      protocol.VarFloat,
	"rightMotorScale":     protocol.VarFloat,
	"encoderTicksPerTile": protocol.VarUint32,
	"turnKp":              protocol.VarFloat,
	"turnKi":              protocol.VarFloat,
	"turnKd":              protocol.VarFloat,
	"driveKp":             protocol.VarFloat,
	"maxDrivePower":       protocol.VarFloat,
	"maxTurnPower":        protocol.VarFloat,
	"wheelBaseTiles":      protocol.VarFloat,
}

// IsTunable reports whether name is on the allow-list.
func IsTunable(name string) bool {
	_, ok := Tunables[name]
	return ok
}

// HelloConfig returns the override values for mac restricted to the
// allow-list. Never nil.
func (c *Config) HelloConfig(mac string) map[string]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := map[string]float64{}
	for k, v := range c.Overrides[mac] {
		if IsTunable(k) {
			out[k] = v
		}
	}
	return out
}

// SetOverrides replaces the override table.
func (c *Config) SetOverrides(overrides map[string]map[string]float64) {
	cp := make(map[string]map[string]float64, len(overrides))
	for mac, vals := range overrides {
		inner := make(map[string]float64, len(vals))
		for k, v := range vals {
			inner[k] = v
		}
		cp[mac] = inner
	}
	c.mu.Lock()
	c.Overrides = cp
	c.mu.Unlock()
}

// RejectedOverrides lists "mac/name" entries that are not on the allow-list.
func (c *Config) RejectedOverrides() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []string
	for mac, vals := range c.Overrides {
		for k := range vals {
			if !IsTunable(k) {
				out = append(out, mac+"/"+k)
			}
		}
	}
	sort.Strings(out)
	return out
}
