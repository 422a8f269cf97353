package config

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDecimalUnmarshalScalars(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want decimal.Decimal
	}{
		{"bare number", "value: 0.025", decimal.NewFromFloat(0.025)},
		{"quoted number", `value: "1.5"`, decimal.NewFromFloat(1.5)},
		{"integer", "value: 42", decimal.NewFromInt(42)},
		{"padded", `value: " 0.1 "`, decimal.NewFromFloat(0.1)},
		{"null", "value: null", decimal.Zero},
		{"empty", `value: ""`, decimal.Zero},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var doc struct {
				Value Decimal `yaml:"value"`
			}
			require.NoError(t, yaml.Unmarshal([]byte(tt.yaml), &doc))
			assert.True(t, doc.Value.Equal(tt.want), "got %s", doc.Value)
		})
	}
}

func TestDecimalUnmarshalRejectsNonScalar(t *testing.T) {
	var doc struct {
		Value Decimal `yaml:"value"`
	}
	err := yaml.Unmarshal([]byte("value:\n  nested: true\n"), &doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mapping")
}

func TestDecimalUnmarshalRejectsGarbage(t *testing.T) {
	var doc struct {
		Value Decimal `yaml:"value"`
	}
	err := yaml.Unmarshal([]byte("value: not-a-number\n"), &doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not-a-number")
}

func TestDecimalMarshalRoundTrip(t *testing.T) {
	out, err := yaml.Marshal(struct {
		Value Decimal `yaml:"value"`
	}{Value: Decimal{decimal.NewFromFloat(0.05)}})
	require.NoError(t, err)
	assert.Contains(t, string(out), "0.05")
}
