package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatValueFactor(t *testing.T) {
	assert.Equal(t, "1.500 V", FormatValueFactor(1.5, "V"))
	assert.Equal(t, "2.500 mA", FormatValueFactor(2.5e-3, "A"))
	assert.Equal(t, "470.000 nF", FormatValueFactor(470e-9, "F"))
	assert.Equal(t, "0.000 V", FormatValueFactor(0, "V"))
}

func TestFormatFrequency(t *testing.T) {
	assert.Contains(t, FormatFrequency(44100), "kHz")
	assert.Contains(t, FormatFrequency(1e7), "MHz")
	assert.Contains(t, FormatFrequency(50), "Hz")
}
