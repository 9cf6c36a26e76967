package codec

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte(""),
		[]byte("hello"),
		bytes.Repeat([]byte("x"), 70000),
		[]byte("/login alice secret"),
	}

	for _, payload := range cases {
		var acc Accumulator
		msgs := acc.Feed(Encode(payload))
		require.Len(t, msgs, 1)
		assert.Equal(t, string(payload), string(msgs[0]))
		assert.Equal(t, 0, acc.Pending())
	}
}

func TestAccumulatorResumesAcrossPartialChunks(t *testing.T) {
	payloads := [][]byte{
		[]byte("/register bob hunter2"),
		[]byte(""),
		[]byte("a longer chat line that spans chunks"),
	}

	var whole []byte
	for _, p := range payloads {
		whole = append(whole, Encode(p)...)
	}

	rng := rand.New(rand.NewSource(1))
	var acc Accumulator
	var got [][]byte
	for len(whole) > 0 {
		n := 1 + rng.Intn(len(whole))
		chunk := whole[:n]
		whole = whole[n:]
		got = append(got, acc.Feed(chunk)...)
	}

	require.Len(t, got, len(payloads))
	for i, p := range payloads {
		assert.Equal(t, string(p), string(got[i]))
	}
}

func TestAccumulatorRetainsPartialHeader(t *testing.T) {
	var acc Accumulator
	full := Encode([]byte("ok"))

	msgs := acc.Feed(full[:2])
	assert.Empty(t, msgs)
	assert.Equal(t, 2, acc.Pending())

	msgs = acc.Feed(full[2:])
	require.Len(t, msgs, 1)
	assert.Equal(t, "ok", string(msgs[0]))
}

func TestSendWritesHeaderAndPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Send(&buf, []byte("hi")))

	var acc Accumulator
	msgs := acc.Feed(buf.Bytes())
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", string(msgs[0]))
}
