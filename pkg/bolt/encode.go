package bolt

import (
	"encoding/binary"
	"io"
	"math"
	"sort"

	boltErr "github.com/orneryd/nornic-bolt-driver/pkg/errors"
)

// Encoder packs Values onto a byte sink. It does not own the transport —
// any io.Writer works, letting the chunked framer (chunker.go) buffer a
// whole message before it is split into wire chunks.
type Encoder struct {
	w              io.Writer
	bytesSupported bool
	buf            [9]byte // scratch for marker+width-prefixed headers
}

// NewEncoder returns an Encoder writing to w. bytesSupported must reflect
// ServerInfo.SupportsBytes() for the target connection — encoding a Bytes
// value when false is an EncodingError, never silently coerced.
func NewEncoder(w io.Writer, bytesSupported bool) *Encoder {
	return &Encoder{w: w, bytesSupported: bytesSupported}
}

// Encode serializes v, choosing the smallest legal marker for ints and
// sized containers per spec.md's marker-minimality requirement.
func (e *Encoder) Encode(v any) error {
	switch val := v.(type) {
	case nil:
		return e.writeByte(markerNull)
	case bool:
		if val {
			return e.writeByte(markerTrue)
		}
		return e.writeByte(markerFalse)
	case int:
		return e.encodeInt(int64(val))
	case int32:
		return e.encodeInt(int64(val))
	case int64:
		return e.encodeInt(val)
	case float64:
		return e.encodeFloat(val)
	case string:
		return e.encodeString(val)
	case []byte:
		return e.encodeBytes(val)
	case []any:
		return e.encodeList(val)
	case map[string]any:
		return e.encodeMap(val)
	case *Structure:
		return e.encodeStructure(val)
	case Structure:
		return e.encodeStructure(&val)
	default:
		return boltErr.Wrap(boltErr.EncodingError, "unsupported value type %T", v)
	}
}

func (e *Encoder) writeByte(b byte) error {
	_, err := e.w.Write([]byte{b})
	return err
}

func (e *Encoder) write(p []byte) error {
	_, err := e.w.Write(p)
	return err
}

func (e *Encoder) encodeInt(n int64) error {
	switch {
	case n >= tinyIntNegativeMin && n <= tinyIntPositiveMax:
		return e.writeByte(byte(n))
	case n >= math.MinInt8 && n <= math.MaxInt8:
		e.buf[0] = markerInt8
		e.buf[1] = byte(n)
		return e.write(e.buf[:2])
	case n >= math.MinInt16 && n <= math.MaxInt16:
		e.buf[0] = markerInt16
		binary.BigEndian.PutUint16(e.buf[1:3], uint16(n))
		return e.write(e.buf[:3])
	case n >= math.MinInt32 && n <= math.MaxInt32:
		e.buf[0] = markerInt32
		binary.BigEndian.PutUint32(e.buf[1:5], uint32(n))
		return e.write(e.buf[:5])
	default:
		e.buf[0] = markerInt64
		binary.BigEndian.PutUint64(e.buf[1:9], uint64(n))
		return e.write(e.buf[:9])
	}
}

func (e *Encoder) encodeFloat(f float64) error {
	e.buf[0] = markerFloat64
	binary.BigEndian.PutUint64(e.buf[1:9], math.Float64bits(f))
	return e.write(e.buf[:9])
}

func (e *Encoder) encodeString(s string) error {
	n := len(s)
	if err := e.writeSizedHeader(n, markerTinyStringMin, markerString8, markerString16, markerString32); err != nil {
		return err
	}
	return e.write([]byte(s))
}

func (e *Encoder) encodeBytes(b []byte) error {
	if !e.bytesSupported {
		return boltErr.Wrap(boltErr.EncodingError, "bytes values require a server with bytes support (Bolt >= 3.2)")
	}
	n := len(b)
	switch {
	case n <= math.MaxUint8:
		e.buf[0] = markerBytes8
		e.buf[1] = byte(n)
		if err := e.write(e.buf[:2]); err != nil {
			return err
		}
	case n <= math.MaxUint16:
		e.buf[0] = markerBytes16
		binary.BigEndian.PutUint16(e.buf[1:3], uint16(n))
		if err := e.write(e.buf[:3]); err != nil {
			return err
		}
	default:
		e.buf[0] = markerBytes32
		binary.BigEndian.PutUint32(e.buf[1:5], uint32(n))
		if err := e.write(e.buf[:5]); err != nil {
			return err
		}
	}
	return e.write(b)
}

func (e *Encoder) encodeList(list []any) error {
	if err := e.writeSizedHeader(len(list), markerTinyListMin, markerList8, markerList16, markerList32); err != nil {
		return err
	}
	for _, item := range list {
		if err := e.Encode(item); err != nil {
			return err
		}
	}
	return nil
}

// encodeMap writes keys in a deterministic (sorted) order. The wire format
// only requires unique string keys; callers that need a specific field
// order (e.g. RUN's parameter map) should prefer an ordered representation
// upstream — sorting here only affects byte-for-byte reproducibility of
// otherwise-unordered maps.
func (e *Encoder) encodeMap(m map[string]any) error {
	if err := e.writeSizedHeader(len(m), markerTinyMapMin, markerMap8, markerMap16, markerMap32); err != nil {
		return err
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := e.encodeString(k); err != nil {
			return err
		}
		if err := e.Encode(m[k]); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) encodeStructure(s *Structure) error {
	n := len(s.Fields)
	if n > 15 {
		return boltErr.Wrap(boltErr.EncodingError, "structure has %d fields, max 15", n)
	}
	if err := e.writeByte(markerTinyStructMin | byte(n)); err != nil {
		return err
	}
	if err := e.writeByte(s.Tag); err != nil {
		return err
	}
	for _, f := range s.Fields {
		if err := e.Encode(f); err != nil {
			return err
		}
	}
	return nil
}

// writeSizedHeader picks tiny/8/16/32-bit length markers, smallest first.
func (e *Encoder) writeSizedHeader(n int, tinyBase, m8, m16, m32 byte) error {
	switch {
	case n <= 15:
		return e.writeByte(tinyBase | byte(n))
	case n <= math.MaxUint8:
		e.buf[0] = m8
		e.buf[1] = byte(n)
		return e.write(e.buf[:2])
	case n <= math.MaxUint16:
		e.buf[0] = m16
		binary.BigEndian.PutUint16(e.buf[1:3], uint16(n))
		return e.write(e.buf[:3])
	case n <= math.MaxUint32:
		e.buf[0] = m32
		binary.BigEndian.PutUint32(e.buf[1:5], uint32(n))
		return e.write(e.buf[:5])
	default:
		return boltErr.Wrap(boltErr.EncodingError, "size %d exceeds 32-bit length", n)
	}
}
