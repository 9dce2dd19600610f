package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLanguageTag(t *testing.T) {
	v := New()
	assert.NoError(t, v.Var("es", "lang"))
	assert.Error(t, v.Var("ES", "lang"))
	assert.Error(t, v.Var("spa", "lang"))
}
