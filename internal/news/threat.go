package news

import (
	"fmt"
	"strings"
)

// ThreatLevel is an ordinal assessment of a country bucket.
type ThreatLevel int

const (
	Undetermined ThreatLevel = iota
	Minimal
	Low
	Moderate
	High
	Critical
)

var threatNames = [...]string{"UNDETERMINED", "MINIMAL", "LOW", "MODERATE", "HIGH", "CRITICAL"}

func (l ThreatLevel) String() string {
	if l < Undetermined || l > Critical {
		return fmt.Sprintf("ThreatLevel(%d)", int(l))
	}
	return threatNames[l]
}

// MarshalText encodes the level by name.
func (l ThreatLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText decodes a level name.
func (l *ThreatLevel) UnmarshalText(b []byte) error {
	parsed, err := ParseThreatLevel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseThreatLevel parses a level name, case-insensitively.
func ParseThreatLevel(s string) (ThreatLevel, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, name := range threatNames {
		if name == s {
			return ThreatLevel(i), nil
		}
	}
	return Undetermined, fmt.Errorf("unknown threat level %q", s)
}
