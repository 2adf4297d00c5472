package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// --------------------------------------------------------------------------
// XCDR1 encapsulation
// --------------------------------------------------------------------------

// Encapsulation identifiers (first two bytes of a data payload)
const (
	encapsulationCDRBE byte = 0x00
	encapsulationCDRLE byte = 0x01

	headerSize = 4
)

// errShortBuffer is wrapped into every decoding error caused by truncated input
var errShortBuffer = errors.New("buffer too short")

// byteOrder is implemented by binary.LittleEndian and binary.BigEndian
type byteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// --------------------------------------------------------------------------
// Encoder
// --------------------------------------------------------------------------

// encoder appends CDR encoded primitives to buf. Alignment is relative to origin
// (the first byte after the encapsulation header).
type encoder struct {
	buf    []byte
	order  byteOrder
	origin int
}

// newDataEncoder starts a little endian data payload with its encapsulation header
func newDataEncoder(buf []byte) *encoder {
	buf = append(buf[:0], 0x00, encapsulationCDRLE, 0x00, 0x00)
	return &encoder{buf: buf, order: binary.LittleEndian, origin: headerSize}
}

// newKeyEncoder starts a big endian key stream (no header, as used for key hashes)
func newKeyEncoder(buf []byte) *encoder {
	return &encoder{buf: buf[:0], order: binary.BigEndian, origin: 0}
}

func (e *encoder) align(n int) {
	for (len(e.buf)-e.origin)%n != 0 {
		e.buf = append(e.buf, 0)
	}
}

func (e *encoder) putUint8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *encoder) putBool(v bool) {
	if v {
		e.putUint8(1)
	} else {
		e.putUint8(0)
	}
}

func (e *encoder) putUint16(v uint16) {
	e.align(2)
	e.buf = e.order.AppendUint16(e.buf, v)
}

func (e *encoder) putUint32(v uint32) {
	e.align(4)
	e.buf = e.order.AppendUint32(e.buf, v)
}

func (e *encoder) putUint64(v uint64) {
	e.align(8)
	e.buf = e.order.AppendUint64(e.buf, v)
}

func (e *encoder) putFloat32(v float32) {
	e.putUint32(math.Float32bits(v))
}

func (e *encoder) putFloat64(v float64) {
	e.putUint64(math.Float64bits(v))
}

// putString writes the length (including the terminating NUL), the bytes and the NUL
func (e *encoder) putString(s string) {
	e.putUint32(uint32(len(s) + 1))
	e.buf = append(e.buf, s...)
	e.buf = append(e.buf, 0)
}

// putBytes writes a length prefixed octet sequence
func (e *encoder) putBytes(b []byte) {
	e.putUint32(uint32(len(b)))
	e.buf = append(e.buf, b...)
}

// putFixed writes an octet array (no length prefix)
func (e *encoder) putFixed(b []byte) {
	e.buf = append(e.buf, b...)
}

// --------------------------------------------------------------------------
// Decoder
// --------------------------------------------------------------------------

// decoder reads CDR encoded primitives from buf
type decoder struct {
	buf    []byte
	pos    int
	order  binary.ByteOrder
	origin int
}

// newDataDecoder parses the encapsulation header of a data payload
func newDataDecoder(buf []byte) (*decoder, error) {
	if len(buf) < headerSize {
		return nil, fmt.Errorf("encapsulation header: %w", errShortBuffer)
	}
	if buf[0] != 0x00 {
		return nil, fmt.Errorf("unsupported encapsulation 0x%02x%02x", buf[0], buf[1])
	}

	var order binary.ByteOrder
	switch buf[1] {
	case encapsulationCDRLE:
		order = binary.LittleEndian
	case encapsulationCDRBE:
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("unsupported encapsulation 0x%02x%02x", buf[0], buf[1])
	}

	return &decoder{buf: buf, pos: headerSize, order: order, origin: headerSize}, nil
}

// newKeyDecoder reads a big endian key stream
func newKeyDecoder(buf []byte) *decoder {
	return &decoder{buf: buf, order: binary.BigEndian}
}

// remaining returns the number of unread bytes
func (d *decoder) remaining() int {
	return len(d.buf) - d.pos
}

func (d *decoder) align(n int) error {
	aligned := d.origin + alignUp(d.pos-d.origin, n)
	if aligned > len(d.buf) {
		return errShortBuffer
	}
	d.pos = aligned
	return nil
}

func (d *decoder) need(n int) error {
	if d.remaining() < n {
		return errShortBuffer
	}
	return nil
}

// needLength checks a length read from the wire against the remaining bytes
func (d *decoder) needLength(n uint32) error {
	if uint64(n) > uint64(d.remaining()) {
		return errShortBuffer
	}
	return nil
}

func (d *decoder) getUint8() (uint8, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	v := d.buf[d.pos]
	d.pos++
	return v, nil
}

func (d *decoder) getBool() (bool, error) {
	v, err := d.getUint8()
	if err != nil {
		return false, err
	}
	if v > 1 {
		return false, fmt.Errorf("invalid boolean value %d", v)
	}
	return v == 1, nil
}

func (d *decoder) getUint16() (uint16, error) {
	if err := d.align(2); err != nil {
		return 0, err
	}
	if err := d.need(2); err != nil {
		return 0, err
	}
	v := d.order.Uint16(d.buf[d.pos:])
	d.pos += 2
	return v, nil
}

func (d *decoder) getUint32() (uint32, error) {
	if err := d.align(4); err != nil {
		return 0, err
	}
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := d.order.Uint32(d.buf[d.pos:])
	d.pos += 4
	return v, nil
}

func (d *decoder) getUint64() (uint64, error) {
	if err := d.align(8); err != nil {
		return 0, err
	}
	if err := d.need(8); err != nil {
		return 0, err
	}
	v := d.order.Uint64(d.buf[d.pos:])
	d.pos += 8
	return v, nil
}

func (d *decoder) getFloat32() (float32, error) {
	v, err := d.getUint32()
	return math.Float32frombits(v), err
}

func (d *decoder) getFloat64() (float64, error) {
	v, err := d.getUint64()
	return math.Float64frombits(v), err
}

func (d *decoder) getString() (string, error) {
	n, err := d.getUint32()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", fmt.Errorf("string without terminator")
	}
	if err := d.needLength(n); err != nil {
		return "", err
	}
	if d.buf[d.pos+int(n)-1] != 0 {
		return "", fmt.Errorf("string without terminator")
	}
	s := string(d.buf[d.pos : d.pos+int(n)-1])
	d.pos += int(n)
	return s, nil
}

func (d *decoder) getBytes() ([]byte, error) {
	n, err := d.getUint32()
	if err != nil {
		return nil, err
	}
	if err := d.needLength(n); err != nil {
		return nil, err
	}
	return d.getFixed(int(n))
}

func (d *decoder) getFixed(n int) ([]byte, error) {
	if err := d.need(n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	copy(b, d.buf[d.pos:d.pos+n])
	d.pos += n
	return b, nil
}
