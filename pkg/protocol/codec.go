package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/ryandielhenn/sudokumesh/pkg/grid"
)

const MaxFrameSize = 1 << 20

var (
	ErrDisconnect  = errors.New("protocol: peer disconnected")
	ErrUnknownKind = errors.New("protocol: unknown message kind")
	ErrMalformed   = errors.New("protocol: malformed payload")
)

const (
	fieldKind          protowire.Number = 1
	fieldAddress       protowire.Number = 2
	fieldNeighbor      protowire.Number = 3
	fieldSolves        protowire.Number = 4
	fieldVerifications protowire.Number = 5
	fieldGrid          protowire.Number = 6

	fieldHost protowire.Number = 1
	fieldPort protowire.Number = 2
)

// Encode serializes m into a frame payload.
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil message", ErrUnknownKind)
	}
	b := protowire.AppendTag(nil, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Kind()))

	switch v := m.(type) {
	case JoinRequest:
		b = appendAddress(b, fieldAddress, v.Address)
	case NetworkInfoRequest, StatsRequest:
	case NetworkInfoResponse:
		b = appendAddress(b, fieldAddress, v.Address)
		for _, n := range v.Neighbors {
			b = appendAddress(b, fieldNeighbor, n)
		}
	case StatsResponse:
		b = appendAddress(b, fieldAddress, v.Address)
		b = protowire.AppendTag(b, fieldSolves, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(v.Solves))
		b = protowire.AppendTag(b, fieldVerifications, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(v.Verifications))
	case SolveRequest:
		b = appendGrid(b, v.Grid)
	case SolveResponse:
		if v.Grid != nil {
			b = appendGrid(b, *v.Grid)
		}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownKind, m)
	}
	return b, nil
}

// Decode parses a frame payload. Payloads naming an unknown kind return an
// error wrapping ErrUnknownKind; everything else undecodable wraps
// ErrMalformed.
func Decode(b []byte) (Message, error) {
	var (
		kind          Kind
		addr          Address
		neighbors     []Address
		solves        uint64
		verifications uint64
		g             *grid.Grid
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, malformed(protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldKind && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, malformed(protowire.ParseError(n))
			}
			kind = Kind(v)
			b = b[n:]
		case num == fieldSolves && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, malformed(protowire.ParseError(n))
			}
			solves = v
			b = b[n:]
		case num == fieldVerifications && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, malformed(protowire.ParseError(n))
			}
			verifications = v
			b = b[n:]
		case (num == fieldAddress || num == fieldNeighbor) && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, malformed(protowire.ParseError(n))
			}
			a, err := decodeAddress(raw)
			if err != nil {
				return nil, err
			}
			if num == fieldAddress {
				addr = a
			} else {
				neighbors = append(neighbors, a)
			}
			b = b[n:]
		case num == fieldGrid && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, malformed(protowire.ParseError(n))
			}
			parsed, err := decodeGrid(raw)
			if err != nil {
				return nil, err
			}
			g = &parsed
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, malformed(protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	switch kind {
	case KindJoinRequest:
		return JoinRequest{Address: addr}, nil
	case KindNetworkInfoRequest:
		return NetworkInfoRequest{}, nil
	case KindNetworkInfoResponse:
		return NetworkInfoResponse{Address: addr, Neighbors: neighbors}, nil
	case KindStatsRequest:
		return StatsRequest{}, nil
	case KindStatsResponse:
		return StatsResponse{Address: addr, Solves: int(solves), Verifications: int(verifications)}, nil
	case KindSolveRequest:
		if g == nil {
			return nil, malformed(errors.New("solve request without grid"))
		}
		return SolveRequest{Grid: *g}, nil
	case KindSolveResponse:
		return SolveResponse{Grid: g}, nil
	case 0:
		return nil, malformed(errors.New("missing kind"))
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint64(kind))
	}
}

// ReadFrame reads one length-prefixed frame, blocking until the whole
// payload has arrived.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n == 0 {
		return nil, ErrDisconnect
	}
	if n > MaxFrameSize {
		return nil, fmt.Errorf("%w: frame of %d bytes", ErrMalformed, n)
	}
	payload := make([]byte, int(n))
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes payload with its length prefix in a single Write.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("empty payload")
	}
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("payload too large")
	}
	frame := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(payload)))
	copy(frame[4:], payload)
	_, err := w.Write(frame)
	return err
}

// WriteDisconnect writes the zero-length sentinel frame.
func WriteDisconnect(w io.Writer) error {
	var zero [4]byte
	_, err := w.Write(zero[:])
	return err
}

func ReadMessage(r io.Reader) (Message, error) {
	payload, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	return Decode(payload)
}

func WriteMessage(w io.Writer, m Message) error {
	payload, err := Encode(m)
	if err != nil {
		return err
	}
	return WriteFrame(w, payload)
}

func appendAddress(b []byte, num protowire.Number, a Address) []byte {
	inner := protowire.AppendTag(nil, fieldHost, protowire.BytesType)
	inner = protowire.AppendString(inner, a.Host)
	inner = protowire.AppendTag(inner, fieldPort, protowire.VarintType)
	inner = protowire.AppendVarint(inner, uint64(a.Port))

	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, inner)
}

func decodeAddress(b []byte) (Address, error) {
	var a Address
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Address{}, malformed(protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == fieldHost && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return Address{}, malformed(protowire.ParseError(n))
			}
			a.Host = s
			b = b[n:]
		case num == fieldPort && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Address{}, malformed(protowire.ParseError(n))
			}
			if v > 65535 {
				return Address{}, malformed(fmt.Errorf("port %d out of range", v))
			}
			a.Port = int(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Address{}, malformed(protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return a, nil
}

func appendGrid(b []byte, g grid.Grid) []byte {
	inner := make([]byte, 0, grid.Size*grid.Size)
	for r := 0; r < grid.Size; r++ {
		for c := 0; c < grid.Size; c++ {
			inner = protowire.AppendVarint(inner, uint64(g[r][c]))
		}
	}
	b = protowire.AppendTag(b, fieldGrid, protowire.BytesType)
	return protowire.AppendBytes(b, inner)
}

func decodeGrid(b []byte) (grid.Grid, error) {
	var g grid.Grid
	for i := 0; i < grid.Size*grid.Size; i++ {
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return g, malformed(fmt.Errorf("grid cell %d: %w", i, protowire.ParseError(n)))
		}
		if v > grid.Size {
			return g, malformed(fmt.Errorf("grid cell %d = %d", i, v))
		}
		g[i/grid.Size][i%grid.Size] = int(v)
		b = b[n:]
	}
	if len(b) != 0 {
		return g, malformed(errors.New("grid has trailing cells"))
	}
	return g, nil
}

func malformed(err error) error {
	return fmt.Errorf("%w: %v", ErrMalformed, err)
}
