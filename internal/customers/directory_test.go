package customers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayNameFallsBackToID(t *testing.T) {
	assert.Equal(t, "Nile Sports", Customer{ID: 4, Name: "Nile Sports"}.DisplayName())
	assert.Equal(t, "Customer #4", Customer{ID: 4}.DisplayName())
}
