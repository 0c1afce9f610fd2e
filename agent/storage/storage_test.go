package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmail(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "jane@example.com", NormalizeEmail("  Jane@Example.COM "))
	assert.Equal(t, "", NormalizeEmail("   "))
}

func TestVectorLiteral(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "[]", VectorLiteral(nil))
	assert.Equal(t, "[0.5]", VectorLiteral([]float32{0.5}))
	assert.Equal(t, "[1,-0.25,0]", VectorLiteral([]float32{1, -0.25, 0}))
}
