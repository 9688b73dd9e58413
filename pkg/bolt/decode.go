package bolt

import (
	"encoding/binary"
	"io"
	"math"

	boltErr "github.com/orneryd/nornic-bolt-driver/pkg/errors"
)

// Decoder unpacks Values from a byte source. Decoding is strict: any marker
// byte it doesn't recognize, or a map with a non-string key, fails with
// DecodingError rather than guessing.
type Decoder struct {
	r   io.Reader
	buf [8]byte
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Decode reads exactly one Value from the source.
func (d *Decoder) Decode() (any, error) {
	marker, err := d.readByte()
	if err != nil {
		return nil, err
	}
	return d.decodeValue(marker)
}

func (d *Decoder) readByte() (byte, error) {
	if _, err := io.ReadFull(d.r, d.buf[:1]); err != nil {
		return 0, err
	}
	return d.buf[0], nil
}

func (d *Decoder) readN(n int) ([]byte, error) {
	p := make([]byte, n)
	if _, err := io.ReadFull(d.r, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (d *Decoder) decodeValue(marker byte) (any, error) {
	switch {
	case marker == markerNull:
		return nil, nil
	case marker == markerFalse:
		return false, nil
	case marker == markerTrue:
		return true, nil
	case marker == markerFloat64:
		return d.decodeFloat()
	case marker == markerInt8, marker == markerInt16, marker == markerInt32, marker == markerInt64:
		return d.decodeSizedInt(marker)
	case isTinyInt(marker):
		return int64(int8(marker)), nil
	case marker >= markerTinyStringMin && marker <= markerTinyStringMax:
		return d.decodeString(int(marker & 0x0F))
	case marker == markerString8, marker == markerString16, marker == markerString32:
		n, err := d.decodeSize(marker, markerString8, markerString16, markerString32)
		if err != nil {
			return nil, err
		}
		return d.decodeString(n)
	case marker >= markerTinyListMin && marker <= markerTinyListMax:
		return d.decodeList(int(marker & 0x0F))
	case marker == markerList8, marker == markerList16, marker == markerList32:
		n, err := d.decodeSize(marker, markerList8, markerList16, markerList32)
		if err != nil {
			return nil, err
		}
		return d.decodeList(n)
	case marker >= markerTinyMapMin && marker <= markerTinyMapMax:
		return d.decodeMap(int(marker & 0x0F))
	case marker == markerMap8, marker == markerMap16, marker == markerMap32:
		n, err := d.decodeSize(marker, markerMap8, markerMap16, markerMap32)
		if err != nil {
			return nil, err
		}
		return d.decodeMap(n)
	case marker == markerBytes8, marker == markerBytes16, marker == markerBytes32:
		return d.decodeBytes(marker)
	case marker >= markerTinyStructMin && marker <= markerTinyStructMax:
		return d.decodeStructure(int(marker & 0x0F))
	default:
		return nil, boltErr.Wrap(boltErr.DecodingError, "unknown marker 0x%02X", marker)
	}
}

// isTinyInt reports whether marker is a self-describing tiny integer: the
// plain positive range 0x00-0x7F, or the negative range 0xF0-0xFF (-16..-1).
func isTinyInt(marker byte) bool {
	return marker <= 0x7F || marker >= 0xF0
}

func (d *Decoder) decodeFloat() (any, error) {
	p, err := d.readN(8)
	if err != nil {
		return nil, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(p)), nil
}

func (d *Decoder) decodeSizedInt(marker byte) (any, error) {
	switch marker {
	case markerInt8:
		p, err := d.readN(1)
		if err != nil {
			return nil, err
		}
		return int64(int8(p[0])), nil
	case markerInt16:
		p, err := d.readN(2)
		if err != nil {
			return nil, err
		}
		return int64(int16(binary.BigEndian.Uint16(p))), nil
	case markerInt32:
		p, err := d.readN(4)
		if err != nil {
			return nil, err
		}
		return int64(int32(binary.BigEndian.Uint32(p))), nil
	default: // markerInt64
		p, err := d.readN(8)
		if err != nil {
			return nil, err
		}
		return int64(binary.BigEndian.Uint64(p)), nil
	}
}

func (d *Decoder) decodeSize(marker, m8, m16, m32 byte) (int, error) {
	switch marker {
	case m8:
		p, err := d.readN(1)
		if err != nil {
			return 0, err
		}
		return int(p[0]), nil
	case m16:
		p, err := d.readN(2)
		if err != nil {
			return 0, err
		}
		return int(binary.BigEndian.Uint16(p)), nil
	default: // m32
		p, err := d.readN(4)
		if err != nil {
			return 0, err
		}
		return int(binary.BigEndian.Uint32(p)), nil
	}
}

func (d *Decoder) decodeString(n int) (any, error) {
	if n == 0 {
		return "", nil
	}
	p, err := d.readN(n)
	if err != nil {
		return nil, err
	}
	return string(p), nil
}

func (d *Decoder) decodeBytes(marker byte) (any, error) {
	n, err := d.decodeSize(marker, markerBytes8, markerBytes16, markerBytes32)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return []byte{}, nil
	}
	return d.readN(n)
}

func (d *Decoder) decodeList(n int) (any, error) {
	list := make([]any, n)
	for i := 0; i < n; i++ {
		v, err := d.Decode()
		if err != nil {
			return nil, err
		}
		list[i] = v
	}
	return list, nil
}

func (d *Decoder) decodeMap(n int) (any, error) {
	m := make(map[string]any, n)
	for i := 0; i < n; i++ {
		marker, err := d.readByte()
		if err != nil {
			return nil, err
		}
		keyVal, err := d.decodeValue(marker)
		if err != nil {
			return nil, err
		}
		key, ok := keyVal.(string)
		if !ok {
			return nil, boltErr.Wrap(boltErr.DecodingError, "map key must be a string, got %T", keyVal)
		}
		val, err := d.Decode()
		if err != nil {
			return nil, err
		}
		m[key] = val
	}
	return m, nil
}

func (d *Decoder) decodeStructure(n int) (any, error) {
	tag, err := d.readByte()
	if err != nil {
		return nil, err
	}
	fields := make([]any, n)
	for i := 0; i < n; i++ {
		v, err := d.Decode()
		if err != nil {
			return nil, err
		}
		fields[i] = v
	}
	return Hydrate(&Structure{Tag: tag, Fields: fields}), nil
}

// DecodeRecordValues decodes exactly n top-level values into dst, avoiding a
// fresh heap allocation per record the way a generic Decode()-into-[]any
// loop would: the caller supplies the accumulator (spec.md §4.1 "the
// decoder streams into caller-supplied accumulators for RECORD payloads").
func (d *Decoder) DecodeRecordValues(dst []any) error {
	for i := range dst {
		v, err := d.Decode()
		if err != nil {
			return err
		}
		dst[i] = v
	}
	return nil
}
