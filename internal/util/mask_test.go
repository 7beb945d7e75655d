package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskMobile(t *testing.T) {
	assert.Equal(t, "*******00", MaskMobile(" +15550100 "))
	assert.Equal(t, "***", MaskMobile("12"))
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "***", MaskToken("short"))
	assert.Equal(t, "eyJh…(12)", MaskToken("eyJhbGciOiJI"))
}
