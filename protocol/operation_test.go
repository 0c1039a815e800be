package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperation_Known(t *testing.T) {
	for _, operation := range Operations() {
		assert.True(t, operation.Known(), string(operation))
	}
	assert.False(t, Operation("document/explode").Known())
	assert.False(t, Operation("").Known())
}

func TestOperation_ServiceMethod(t *testing.T) {
	assert.Equal(t, "image", ImageThumbnail.Service())
	assert.Equal(t, "thumbnail", ImageThumbnail.Method())
	assert.Equal(t, "cleanup", Cleanup.Service())
	assert.Equal(t, "sweep", Cleanup.Method())
}
