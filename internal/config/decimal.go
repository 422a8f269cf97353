package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Decimal parses YAML scalars through shopspring/decimal so prices and
// percentages keep their exact written value instead of round-tripping
// through float64. Quoted and bare scalars are accepted alike; an empty
// or null value decodes to zero.
type Decimal struct {
	decimal.Decimal
}

func (d *Decimal) UnmarshalYAML(node *yaml.Node) error {
	switch {
	case node.Kind != yaml.ScalarNode:
		return fmt.Errorf("line %d: expected a scalar for decimal value, got %s", node.Line, kindName(node.Kind))
	case node.Tag == "!!null":
		d.Decimal = decimal.Zero
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		d.Decimal = decimal.Zero
		return nil
	}
	parsed, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("line %d: cannot parse %q as decimal: %w", node.Line, node.Value, err)
	}
	d.Decimal = parsed
	return nil
}

func (d Decimal) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.AliasNode:
		return "alias"
	default:
		return "scalar"
	}
}
