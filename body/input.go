package body

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// UnmarshalJSON decodes a planet record leniently. Numbers may arrive as
// strings, and a field of the wrong shape is left at its zero value so that
// Register can default it instead of the whole record being dropped.
func (in *Input) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("planet record: %w", err)
	}

	out := Input{
		Name:          lenientString(raw["name"]),
		EnglishName:   lenientString(raw["englishName"]),
		Primary:       lenientString(raw["primary"]),
		SemimajorAxis: lenientFloat(raw["semimajorAxis"]),
		Perihelion:    lenientFloat(raw["perihelion"]),
		Aphelion:      lenientFloat(raw["aphelion"]),
		Eccentricity:  lenientFloat(raw["eccentricity"]),
		AxialTilt:     lenientFloat(raw["axialTilt"]),
		Size:          lenientFloat(raw["size"]),
		SideralOrbit:  lenientFloat(raw["sideralOrbit"]),
	}

	if c, ok := raw["color"]; ok && !isNull(c) {
		var col Color
		if err := col.UnmarshalJSON(c); err == nil {
			out.Color = &col
		}
	}

	if m, ok := raw["mass"]; ok && !isNull(m) {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(m, &fields); err == nil {
			out.Mass = &Mass{
				Value:    lenientFloat(fields["massValue"]),
				Exponent: lenientFloat(fields["massExponent"]),
			}
		}
	}

	*in = out
	return nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func lenientFloat(raw json.RawMessage) float64 {
	if isNull(raw) {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return f
		}
	}
	return 0
}

func lenientString(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}
