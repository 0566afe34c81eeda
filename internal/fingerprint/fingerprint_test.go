package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute_Deterministic(t *testing.T) {
	a, ok := Compute("203.0.113.7", "curl/8.4.0", "seed-1")
	require.True(t, ok)
	b, _ := Compute("203.0.113.7", "curl/8.4.0", "seed-1")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestCompute_EmptyTripleHasNoFingerprint(t *testing.T) {
	fp, ok := Compute("", "", "")
	assert.False(t, ok)
	assert.Empty(t, fp)
	assert.Nil(t, Ptr("", "", ""))
}

func TestCompute_EachFieldMatters(t *testing.T) {
	base, _ := Compute("203.0.113.7", "curl/8.4.0", "seed-1")
	variants := [][3]string{
		{"203.0.113.8", "curl/8.4.0", "seed-1"},
		{"203.0.113.7", "curl/8.4.1", "seed-1"},
		{"203.0.113.7", "curl/8.4.0", "seed-2"},
		{"", "curl/8.4.0", "seed-1"},
		{"203.0.113.7", "", "seed-1"},
		{"203.0.113.7", "curl/8.4.0", ""},
	}
	for _, v := range variants {
		fp, ok := Compute(v[0], v[1], v[2])
		require.True(t, ok)
		assert.NotEqual(t, base, fp, "variant %v collided with base", v)
	}
}

func TestCompute_NoCollisionFromSeparatorsOrSentinels(t *testing.T) {
	cases := [][2][3]string{
		// separator moved between fields
		{{"a|b", "c", ""}, {"a", "b|c", ""}},
		// literal sentinel vs missing field
		{{"1.2.3.4", "-", ""}, {"1.2.3.4", "", "-"}},
		// value shaped like an encoded field
		{{"1.2.3.4", "3:abc", ""}, {"1.2.3.4", "abc", ""}},
		// missing field in different positions
		{{"x", "", ""}, {"", "x", ""}},
	}
	for _, c := range cases {
		a, _ := Compute(c[0][0], c[0][1], c[0][2])
		b, _ := Compute(c[1][0], c[1][1], c[1][2])
		assert.NotEqual(t, a, b, "%v vs %v", c[0], c[1])
	}
}
