package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPasskeyDeviceType(t *testing.T) {
	assert.Equal(t, PasskeyDeviceMulti, PasskeyDeviceType(true))
	assert.Equal(t, PasskeyDeviceSingle, PasskeyDeviceType(false))
}
