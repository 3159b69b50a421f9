package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/ryandielhenn/sudokumesh/pkg/grid"
)

func sampleGrid() grid.Grid {
	var g grid.Grid
	for r := 0; r < grid.Size; r++ {
		for c := 0; c < grid.Size; c++ {
			g[r][c] = (r*3+r/3+c)%9 + 1
		}
	}
	g[4][4] = grid.Blank
	return g
}

func TestRoundTrip(t *testing.T) {
	a := Address{Host: "10.0.0.1", Port: 5001}
	b := Address{Host: "10.0.0.2", Port: 5002}
	g := sampleGrid()

	msgs := []Message{
		JoinRequest{Address: a},
		NetworkInfoRequest{},
		NetworkInfoResponse{Address: a},
		NetworkInfoResponse{Address: a, Neighbors: []Address{a, b}},
		StatsRequest{},
		StatsResponse{Address: b, Solves: 3, Verifications: 1234567},
		SolveRequest{Grid: g},
		SolveResponse{Grid: &g},
		SolveResponse{},
	}
	for _, m := range msgs {
		payload, err := Encode(m)
		require.NoError(t, err, "%T", m)
		got, err := Decode(payload)
		require.NoError(t, err, "%T", m)
		assert.Equal(t, m, got)
	}
}

func TestStreamRoundTripWithShortReads(t *testing.T) {
	var buf bytes.Buffer
	g := sampleGrid()
	in := []Message{
		JoinRequest{Address: Address{Host: "h", Port: 1}},
		SolveRequest{Grid: g},
		StatsRequest{},
	}
	for _, m := range in {
		require.NoError(t, WriteMessage(&buf, m))
	}
	require.NoError(t, WriteDisconnect(&buf))

	r := iotest.OneByteReader(&buf)
	for _, want := range in {
		got, err := ReadMessage(r)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ReadMessage(r)
	assert.ErrorIs(t, err, ErrDisconnect)
}

func TestDecodeUnknownKind(t *testing.T) {
	b := protowire.AppendTag(nil, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, 99)
	_, err := Decode(b)
	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.False(t, errors.Is(err, ErrMalformed))
}

func TestDecodeMalformed(t *testing.T) {
	cases := map[string][]byte{
		"garbage":      {0xff, 0xff, 0xff},
		"missing kind": protowire.AppendVarint(protowire.AppendTag(nil, fieldSolves, protowire.VarintType), 1),
		"truncated":    {0x08},
	}

	shortGrid := protowire.AppendTag(nil, fieldKind, protowire.VarintType)
	shortGrid = protowire.AppendVarint(shortGrid, uint64(KindSolveRequest))
	shortGrid = protowire.AppendTag(shortGrid, fieldGrid, protowire.BytesType)
	shortGrid = protowire.AppendBytes(shortGrid, []byte{1, 2, 3})
	cases["short grid"] = shortGrid

	noGrid := protowire.AppendTag(nil, fieldKind, protowire.VarintType)
	cases["solve without grid"] = protowire.AppendVarint(noGrid, uint64(KindSolveRequest))

	for name, payload := range cases {
		_, err := Decode(payload)
		assert.ErrorIs(t, err, ErrMalformed, name)
	}
}

func TestDecodeSkipsUnknownFields(t *testing.T) {
	payload, err := Encode(StatsResponse{Address: Address{Host: "x", Port: 9}, Solves: 1, Verifications: 2})
	require.NoError(t, err)
	payload = protowire.AppendTag(payload, 42, protowire.BytesType)
	payload = protowire.AppendString(payload, "future")

	got, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, StatsResponse{Address: Address{Host: "x", Port: 9}, Solves: 1, Verifications: 2}, got)
}

func TestReadFrameRejectsOversize(t *testing.T) {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], MaxFrameSize+1)
	_, err := ReadFrame(bytes.NewReader(hdr[:]))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestWriteFrameRejectsEmpty(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, WriteFrame(&buf, nil))
	assert.Zero(t, buf.Len())
}

func TestParseAddress(t *testing.T) {
	a, err := ParseAddress("127.0.0.1:5001")
	require.NoError(t, err)
	assert.Equal(t, Address{Host: "127.0.0.1", Port: 5001}, a)
	assert.Equal(t, "127.0.0.1:5001", a.String())

	for _, bad := range []string{"", "nohost", ":80", "h:0", "h:x", "h:70000"} {
		_, err := ParseAddress(bad)
		assert.Error(t, err, bad)
	}
}

func TestAddressLess(t *testing.T) {
	a := Address{Host: "127.0.0.1", Port: 5001}
	b := Address{Host: "127.0.0.1", Port: 5002}
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.False(t, a.Less(a))
}
