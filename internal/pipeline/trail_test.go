package pipeline

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrailIsBounded(t *testing.T) {
	tr := trailFrom(nil)
	for i := 0; i < TrailLen+5; i++ {
		tr.add(fmt.Sprintf("u%d", i))
	}
	require.Len(t, tr.refs, TrailLen)
	assert.False(t, tr.has("u0"))
	assert.False(t, tr.has("u4"))
	assert.True(t, tr.has("u5"))
	assert.True(t, tr.has(fmt.Sprintf("u%d", TrailLen+4)))

	again := trailFrom(tr.meta(nil))
	assert.Equal(t, tr.refs, again.refs)
}

func TestTrailRepeatedRefSurvivesEviction(t *testing.T) {
	tr := trailFrom(nil)
	tr.add("a")
	for i := 0; i < TrailLen-2; i++ {
		tr.add(fmt.Sprintf("u%d", i))
	}
	tr.add("a")
	tr.add("b") // evicts the first "a"
	assert.True(t, tr.has("a"))
}

func TestTrailFromIgnoresBlankEntries(t *testing.T) {
	tr := trailFrom(map[string]string{MetaTrail: "\nx\n\ny\n"})
	assert.Equal(t, []string{"x", "y"}, tr.refs)
	assert.Equal(t, map[string]string{"k": "v", MetaTrail: "x\ny"}, tr.meta(map[string]string{"k": "v"}))
}
