package fingerprint

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHash_FieldOrderIndependent(t *testing.T) {
	var a, b map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(`{"title":"Build failed","run":42,"nested":{"x":1,"y":2}}`), &a))
	require.NoError(t, json.Unmarshal([]byte(`{
		"nested": {"y": 2, "x": 1},
		"run":    42,
		"title":  "Build failed"
	}`), &b))

	hashA, err := Hash("ci.build", a)
	require.NoError(t, err)
	hashB, err := Hash("ci.build", b)
	require.NoError(t, err)

	require.Equal(t, hashA, hashB)
}

func TestHash_DistinguishesContent(t *testing.T) {
	base := map[string]interface{}{"title": "Build failed", "run": float64(42)}

	baseHash, err := Hash("ci.build", base)
	require.NoError(t, err)

	changed, err := Hash("ci.build", map[string]interface{}{"title": "Build failed", "run": float64(43)})
	require.NoError(t, err)
	require.NotEqual(t, baseHash, changed)

	otherSource, err := Hash("ci.deploy", base)
	require.NoError(t, err)
	require.NotEqual(t, baseHash, otherSource)
}

func TestHash_UnmarshalableValue(t *testing.T) {
	_, err := Hash("ci.build", map[string]interface{}{"value": math.NaN()})
	require.Error(t, err)
	require.ErrorContains(t, err, "canonicalize payload")
}
