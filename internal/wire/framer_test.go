package wire

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineFramer_SplitsCompleteLines(t *testing.T) {
	f := NewLineFramer(strings.NewReader("{\"a\":1}\n[1,0]\n[2,1,[[\"x\"]]]\n"))

	var lines []string
	for {
		line, err := f.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		lines = append(lines, string(line))
	}

	assert.Equal(t, []string{`{"a":1}`, `[1,0]`, `[2,1,[["x"]]]`}, lines)
}

func TestLineFramer_NoTrailingNewlineStillYieldsLastLine(t *testing.T) {
	f := NewLineFramer(strings.NewReader("{\"a\":1}\n[1,0]"))

	first, err := f.Next()
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(first))

	second, err := f.Next()
	require.NoError(t, err)
	assert.Equal(t, `[1,0]`, string(second))

	_, err = f.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestLineFramer_EmptyInput(t *testing.T) {
	f := NewLineFramer(strings.NewReader(""))
	_, err := f.Next()
	assert.ErrorIs(t, err, io.EOF)
}
