package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeE164UsesRegionForLocalNumbers(t *testing.T) {
	assert.Equal(t, "+34612345678", NormalizeE164("612 34 56 78", "es"))
	assert.Equal(t, "+31612345678", NormalizeE164("+31 6 12345678", "ES"))
}

func TestNormalizeE164KeepsUnparseableInput(t *testing.T) {
	assert.Equal(t, "call me", NormalizeE164("  call me ", "ES"))
	assert.Equal(t, "", NormalizeE164("   ", "ES"))
	assert.False(t, IsValid("12", "ES"))
}
