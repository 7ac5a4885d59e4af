package quickxorhash

import (
	"bytes"
	"encoding/base64"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Reference digests computed with rclone's implementation.
func TestKnownVectors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{"empty", nil, "AAAAAAAAAAAAAAAAAAAAAAAAAAA="},
		{"hello", []byte("hello"), "aCgDG9jwBgAAAAAABQAAAAAAAAA="},
		{"hello world", []byte("hello world"), "aCgDG9jwBhDc4Q1yawMZAAAAAAA="},
		{"1000 zero bytes", make([]byte, 1000), "AAAAAAAAAAAAAAAA6AMAAAAAAAA="},
		{"1000 0xFF bytes", bytes.Repeat([]byte{0xFF}, 1000), "Yxvb2MY2trGNbWxj89jYOc5xjnM="},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := New()
			_, err := h.Write(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.want, base64.StdEncoding.EncodeToString(h.Sum(nil)))
		})
	}
}

func TestChunkedWritesMatchOneShot(t *testing.T) {
	t.Parallel()

	input := make([]byte, 1024)
	for i := range input {
		input[i] = byte(i)
	}

	oneShot := New()
	_, _ = oneShot.Write(input)
	assert.Equal(t, "h7xr2dbCayZCQYR9KKhlwDuT4UI=", base64.StdEncoding.EncodeToString(oneShot.Sum(nil)))

	chunked := New()

	rest := input
	for _, n := range []int{1, 7, 64, 13, 128} {
		_, _ = chunked.Write(rest[:n])
		rest = rest[n:]
	}

	_, _ = chunked.Write(rest)

	assert.Equal(t, oneShot.Sum(nil), chunked.Sum(nil))
}

func TestSumIsNonDestructive(t *testing.T) {
	t.Parallel()

	h := New()
	_, _ = h.Write([]byte("hello"))
	first := h.Sum(nil)
	assert.Equal(t, first, h.Sum(nil))

	_, _ = h.Write([]byte(" world"))
	assert.Equal(t, "aCgDG9jwBhDc4Q1yawMZAAAAAAA=", base64.StdEncoding.EncodeToString(h.Sum(nil)))
}

func TestReset(t *testing.T) {
	t.Parallel()

	h := New()
	_, _ = h.Write([]byte("something"))
	h.Reset()
	assert.Equal(t, make([]byte, Size), h.Sum(nil))
	assert.Equal(t, Size, h.Size())
	assert.Equal(t, BlockSize, h.BlockSize())
}

func TestBase64Digest(t *testing.T) {
	t.Parallel()

	h := New()
	_, _ = io.Copy(h, strings.NewReader("hello world"))
	assert.Equal(t, "aCgDG9jwBhDc4Q1yawMZAAAAAAA=", base64.StdEncoding.EncodeToString(h.Sum(nil)))
}
