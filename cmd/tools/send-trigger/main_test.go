package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBytes(t *testing.T) {
	got, err := parseBytes("1, 2,0x10,,254")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 0x10, 254}, got)

	_, err = parseBytes("256")
	assert.Error(t, err)
	_, err = parseBytes("0xff")
	assert.Error(t, err)
	_, err = parseBytes("x")
	assert.Error(t, err)
}
