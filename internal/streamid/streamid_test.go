package streamid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewProducesEightBase62Chars(t *testing.T) {
	id := New()
	assert.Len(t, id, Length)
	for _, c := range id {
		assert.True(t, strings.ContainsRune(alphabet, c))
	}
}

func TestNewIsNotConstant(t *testing.T) {
	a := New()
	b := New()
	assert.NotEqual(t, a, b)
}
