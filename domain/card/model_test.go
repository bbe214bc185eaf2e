package card

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTypeTrimsAndLowers(t *testing.T) {
	typ, err := NormalizeType("  Primary  ")
	assert.NoError(t, err)
	assert.Equal(t, TypePrimary, typ)
}

func TestNormalizeTypeRejectsUnknown(t *testing.T) {
	_, err := NormalizeType("bogus")
	assert.Error(t, err)
}

func TestNormalizeTypeRejectsEmpty(t *testing.T) {
	_, err := NormalizeType("")
	assert.Error(t, err)
}
