package port

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// UnmarshalYAML accepts three shapes for a single exclusion entry:
// a bare integer (5001), a string range ("5000..5010"), or a mapping
// ({start: 5000, end: 5010}).
func (e *Exclusion) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!int" {
			var v uint16
			if err := node.Decode(&v); err != nil {
				return err
			}
			*e = Exclusion{Kind: Single, Port: v}
			return nil
		}
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		start, end, ok := strings.Cut(s, "..")
		if !ok {
			v, err := strconv.ParseUint(s, 10, 16)
			if err != nil {
				return fmt.Errorf("invalid excluded_ports entry %q", s)
			}
			*e = Exclusion{Kind: Single, Port: uint16(v)}
			return nil
		}
		startV, err := strconv.ParseUint(strings.TrimSpace(start), 10, 16)
		if err != nil {
			return fmt.Errorf("invalid excluded_ports range %q: %w", s, err)
		}
		endV, err := strconv.ParseUint(strings.TrimSpace(end), 10, 16)
		if err != nil {
			return fmt.Errorf("invalid excluded_ports range %q: %w", s, err)
		}
		*e = Exclusion{Kind: ExclRange, Start: uint16(startV), End: uint16(endV)}
		return nil
	case yaml.MappingNode:
		var m struct {
			Start uint16 `yaml:"start"`
			End   uint16 `yaml:"end"`
		}
		if err := node.Decode(&m); err != nil {
			return err
		}
		*e = Exclusion{Kind: ExclRange, Start: m.Start, End: m.End}
		return nil
	default:
		return fmt.Errorf("unsupported excluded_ports entry kind %v", node.Kind)
	}
}

// MarshalYAML renders a Single exclusion as a bare integer and a range
// as a "start..end" string, matching the accepted input shapes.
func (e Exclusion) MarshalYAML() (any, error) {
	switch e.Kind {
	case Single:
		return e.Port, nil
	case ExclRange:
		return fmt.Sprintf("%d..%d", e.Start, e.End), nil
	default:
		return nil, fmt.Errorf("unknown exclusion kind %d", e.Kind)
	}
}
