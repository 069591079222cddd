package transport

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	resp := OK("req-1", map[string]string{"hello": "world"})
	require.NoError(t, WriteFrame(&buf, resp))

	// Read back the 4-byte length prefix and check it matches the
	// number of body bytes that follow it.
	var length uint32
	r := bufio.NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, binary.Read(r, binary.LittleEndian, &length))
	assert.Equal(t, int(length), buf.Len()-4)
}

func TestReadFrameDecodesRequest(t *testing.T) {
	body := []byte(`{"request_id":"r1","kind":"Health"}`)
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(len(body))))
	buf.Write(body)

	req, err := ReadFrame(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, "r1", req.RequestID)
	assert.Equal(t, KindHealth, req.Kind)
}

func TestReadFrameRejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(MaxFrameBytes+1)))

	_, err := ReadFrame(bufio.NewReader(&buf))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestWriteFrameRejectsOversizedResponse(t *testing.T) {
	big := make([]byte, MaxFrameBytes)
	for i := range big {
		big[i] = 'a'
	}
	resp := OK("r1", string(big))
	assert.ErrorIs(t, WriteFrame(&bytes.Buffer{}, resp), ErrFrameTooLarge)
}

func TestFailedCarriesCodeAndMessage(t *testing.T) {
	resp := Failed("r2", "not_found", "no such node")
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "not_found", resp.Error.Code)
	assert.Equal(t, "no such node", resp.Error.Message)
}
