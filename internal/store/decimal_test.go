package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloatToDecimalExactIntegers(t *testing.T) {
	assert.Equal(t, "0", FloatToDecimal(0))
	assert.Equal(t, "42", FloatToDecimal(42))
	assert.Equal(t, "-17", FloatToDecimal(-17))
	assert.Equal(t, "1000000", FloatToDecimal(1e6))
}

func TestFloatDecimalRoundTrip(t *testing.T) {
	values := []float64{0, 1, -1, 0.5, 123.875, -0.0625, 3.141592653589793, 1e-9}
	for _, v := range values {
		s := FloatToDecimal(v)
		got, err := DecimalToFloat(s)
		require.NoError(t, err, s)
		assert.Equal(t, v, got, s)
	}
}

func TestFlowchartRoundTrip(t *testing.T) {
	original := map[string]any{
		"nodes": []any{
			map[string]any{
				"id": "n1",
				"position": map[string]any{
					"x": 100.5,
					"y": -42.0,
				},
				"label":  "start",
				"locked": true,
				"parent": nil,
			},
		},
		"zoom": 1.25,
	}

	av, err := marshalFlowchart(original)
	require.NoError(t, err)

	back, err := unmarshalFlowchart(av)
	require.NoError(t, err)

	m, ok := back.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1.25, m["zoom"])

	nodes := m["nodes"].([]any)
	node := nodes[0].(map[string]any)
	pos := node["position"].(map[string]any)
	assert.Equal(t, 100.5, pos["x"])
	assert.Equal(t, -42.0, pos["y"])
	assert.Equal(t, "start", node["label"])
	assert.Equal(t, true, node["locked"])
	assert.Nil(t, node["parent"])
}
