package protocol

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relcore/relcore/session"
	"github.com/relcore/relcore/types"
)

func TestFrameRoundTrip(t *testing.T) {
	require := require.New(t)
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	require.NoError(writeFrame(w, []byte("hello")))

	r := bufio.NewReader(&buf)
	got, err := readFrame(r)
	require.NoError(err)
	require.Equal([]byte("hello"), got)
}

func TestFrameRoundTripEmptyPayload(t *testing.T) {
	require := require.New(t)
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	require.NoError(writeFrame(w, nil))

	r := bufio.NewReader(&buf)
	got, err := readFrame(r)
	require.NoError(err)
	require.Empty(got)
}

func TestEncoderDecoderScalarRoundTrip(t *testing.T) {
	require := require.New(t)
	e := &encoder{}
	e.int32(-7)
	e.int64(1 << 40)
	e.byte(9)
	e.str("héllo")
	e.bytes([]byte{1, 2, 3})

	d := newDecoder(e.buf)
	i32, err := d.int32()
	require.NoError(err)
	require.Equal(int32(-7), i32)

	i64, err := d.int64()
	require.NoError(err)
	require.Equal(int64(1<<40), i64)

	b, err := d.byteVal()
	require.NoError(err)
	require.Equal(byte(9), b)

	s, err := d.str()
	require.NoError(err)
	require.Equal("héllo", s)

	raw, err := d.bytes()
	require.NoError(err)
	require.Equal([]byte{1, 2, 3}, raw)
	require.True(d.done())
}

func TestDecoderShortFrameErrors(t *testing.T) {
	require := require.New(t)
	d := newDecoder([]byte{0, 1})
	_, err := d.int32()
	require.Error(err)
}

func TestValueRoundTripScalars(t *testing.T) {
	require := require.New(t)
	cases := []interface{}{nil, true, false, int64(42), 3.5, "text", []byte{9, 8, 7}}
	for _, v := range cases {
		e := &encoder{}
		encodeValue(e, v)
		d := newDecoder(e.buf)
		got, err := decodeValue(d)
		require.NoError(err)
		require.Equal(v, got)
	}
}

func TestValueRoundTripStreamableMarker(t *testing.T) {
	require := require.New(t)
	e := &encoder{}
	e.byte(byte(tagStreamable))
	e.byte(encodeType(types.Blob()))
	e.int64(1024)
	e.int64(77)

	d := newDecoder(e.buf)
	got, err := decodeValue(d)
	require.NoError(err)
	sp, ok := got.(session.StreamableParam)
	require.True(ok)
	require.Equal(types.KindBlob, sp.Type.Kind)
	require.Equal(int64(1024), sp.TotalLength)
	require.Equal(int64(77), sp.StreamableID)
}

func TestEncodeDecodeTypeRoundTrip(t *testing.T) {
	require := require.New(t)
	for _, typ := range []types.Type{types.Boolean, types.Integer, types.Double, types.Varchar(0), types.Blob()} {
		tag := encodeType(typ)
		got := decodeType(tag)
		require.Equal(typ.Kind, got.Kind)
	}
}
