// Package protocol implements the binary wire protocol spoken between game
// clients, this server, and peer shard servers. Every frame is a VarInt byte
// length followed by a VarInt packet id and the packet's fields, encoded in
// network (big-endian) byte order.
package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// MaxVarIntBytes is the maximum encoded size of a VarInt.
const MaxVarIntBytes = 5

var (
	// ErrTruncated is returned when a frame ends before all declared fields
	// could be read.
	ErrTruncated = errors.New("truncated packet")

	// ErrMalformedVarInt is returned when a VarInt carries a continuation bit
	// past its maximum width.
	ErrMalformedVarInt = errors.New("malformed varint")
)

// Reader decodes wire primitives from a single packet frame.
type Reader struct {
	r *bytes.Reader
}

// NewReader wraps a frame body in a Reader.
func NewReader(data []byte) *Reader {
	return &Reader{r: bytes.NewReader(data)}
}

// Remaining reports the number of unread bytes in the frame.
func (r *Reader) Remaining() int {
	return r.r.Len()
}

// truncated maps io-level EOFs onto ErrTruncated so callers see one failure
// mode for short frames.
func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncated
	}
	return err
}

// ReadVarInt reads a 7-bit-group, high-bit-continuation encoded int32.
func (r *Reader) ReadVarInt() (int32, error) {
	return readVarInt(r.r)
}

func readVarInt(r io.ByteReader) (int32, error) {
	var result uint32
	for i := 0; ; i++ {
		if i == MaxVarIntBytes {
			return 0, ErrMalformedVarInt
		}
		b, err := r.ReadByte()
		if err != nil {
			return 0, truncated(err)
		}
		result |= uint32(b&0x7F) << (7 * uint(i))
		if b&0x80 == 0 {
			break
		}
	}
	return int32(result), nil
}

// ReadBool reads a single-byte boolean.
func (r *Reader) ReadBool() (bool, error) {
	b, err := r.r.ReadByte()
	if err != nil {
		return false, truncated(err)
	}
	return b != 0, nil
}

// ReadUByte reads an unsigned byte.
func (r *Reader) ReadUByte() (uint8, error) {
	b, err := r.r.ReadByte()
	if err != nil {
		return 0, truncated(err)
	}
	return b, nil
}

// ReadByte reads a signed byte.
func (r *Reader) ReadByte() (int8, error) {
	b, err := r.r.ReadByte()
	return int8(b), truncated(err)
}

// ReadShort reads a big-endian int16.
func (r *Reader) ReadShort() (int16, error) {
	var v int16
	err := binary.Read(r.r, binary.BigEndian, &v)
	return v, truncated(err)
}

// ReadUShort reads a big-endian uint16.
func (r *Reader) ReadUShort() (uint16, error) {
	var v uint16
	err := binary.Read(r.r, binary.BigEndian, &v)
	return v, truncated(err)
}

// ReadInt reads a big-endian int32.
func (r *Reader) ReadInt() (int32, error) {
	var v int32
	err := binary.Read(r.r, binary.BigEndian, &v)
	return v, truncated(err)
}

// ReadLong reads a big-endian int64.
func (r *Reader) ReadLong() (int64, error) {
	var v int64
	err := binary.Read(r.r, binary.BigEndian, &v)
	return v, truncated(err)
}

// ReadULong reads a big-endian uint64.
func (r *Reader) ReadULong() (uint64, error) {
	var v uint64
	err := binary.Read(r.r, binary.BigEndian, &v)
	return v, truncated(err)
}

// ReadFloat reads a big-endian float32.
func (r *Reader) ReadFloat() (float32, error) {
	var v float32
	err := binary.Read(r.r, binary.BigEndian, &v)
	return v, truncated(err)
}

// ReadDouble reads a big-endian float64.
func (r *Reader) ReadDouble() (float64, error) {
	var v float64
	err := binary.Read(r.r, binary.BigEndian, &v)
	return v, truncated(err)
}

// ReadUUID reads a 128-bit identifier as two big-endian longs.
func (r *Reader) ReadUUID() (uuid.UUID, error) {
	var id uuid.UUID
	if _, err := io.ReadFull(r.r, id[:]); err != nil {
		return uuid.Nil, truncated(err)
	}
	return id, nil
}

// ReadString reads a VarInt byte length followed by that many UTF-8 bytes.
func (r *Reader) ReadString() (string, error) {
	length, err := r.ReadVarInt()
	if err != nil {
		return "", err
	}
	if length < 0 {
		return "", fmt.Errorf("negative string length %d", length)
	}
	if int(length) > r.r.Len() {
		return "", ErrTruncated
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return "", truncated(err)
	}
	return string(buf), nil
}

// ReadVarIntArray reads a VarInt count followed by that many VarInts.
func (r *Reader) ReadVarIntArray() ([]int32, error) {
	count, err := r.ReadVarInt()
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, fmt.Errorf("negative array length %d", count)
	}
	// Each element is at least one byte, so the count cannot exceed what is
	// left of the frame.
	if int(count) > r.r.Len() {
		return nil, ErrTruncated
	}
	out := make([]int32, count)
	for i := range out {
		if out[i], err = r.ReadVarInt(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ReadIntArray reads exactly n big-endian int32 values.
func (r *Reader) ReadIntArray(n int) ([]int32, error) {
	out := make([]int32, n)
	for i := range out {
		v, err := r.ReadInt()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Writer builds a packet body. Write methods return the Writer so field
// writes chain in declaration order.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter creates an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the encoded body.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Len returns the current body size.
func (w *Writer) Len() int {
	return w.buf.Len()
}

// WriteVarInt appends a VarInt-encoded int32.
func (w *Writer) WriteVarInt(v int32) *Writer {
	w.buf.Write(AppendVarInt(nil, v))
	return w
}

// AppendVarInt appends the VarInt encoding of v to dst.
func AppendVarInt(dst []byte, v int32) []byte {
	u := uint32(v)
	for {
		b := byte(u & 0x7F)
		u >>= 7
		if u != 0 {
			b |= 0x80
		}
		dst = append(dst, b)
		if u == 0 {
			return dst
		}
	}
}

// VarIntLen returns the encoded size of v in bytes.
func VarIntLen(v int32) int {
	return len(AppendVarInt(nil, v))
}

// WriteBool appends a single-byte boolean.
func (w *Writer) WriteBool(v bool) *Writer {
	if v {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
	return w
}

// WriteUByte appends an unsigned byte.
func (w *Writer) WriteUByte(v uint8) *Writer {
	w.buf.WriteByte(v)
	return w
}

// WriteByte appends a signed byte.
func (w *Writer) WriteByte(v int8) *Writer {
	w.buf.WriteByte(byte(v))
	return w
}

// WriteShort appends a big-endian int16.
func (w *Writer) WriteShort(v int16) *Writer {
	binary.Write(&w.buf, binary.BigEndian, v)
	return w
}

// WriteUShort appends a big-endian uint16.
func (w *Writer) WriteUShort(v uint16) *Writer {
	binary.Write(&w.buf, binary.BigEndian, v)
	return w
}

// WriteInt appends a big-endian int32.
func (w *Writer) WriteInt(v int32) *Writer {
	binary.Write(&w.buf, binary.BigEndian, v)
	return w
}

// WriteLong appends a big-endian int64.
func (w *Writer) WriteLong(v int64) *Writer {
	binary.Write(&w.buf, binary.BigEndian, v)
	return w
}

// WriteULong appends a big-endian uint64.
func (w *Writer) WriteULong(v uint64) *Writer {
	binary.Write(&w.buf, binary.BigEndian, v)
	return w
}

// WriteFloat appends a big-endian float32.
func (w *Writer) WriteFloat(v float32) *Writer {
	binary.Write(&w.buf, binary.BigEndian, v)
	return w
}

// WriteDouble appends a big-endian float64.
func (w *Writer) WriteDouble(v float64) *Writer {
	binary.Write(&w.buf, binary.BigEndian, v)
	return w
}

// WriteUUID appends a 128-bit identifier.
func (w *Writer) WriteUUID(id uuid.UUID) *Writer {
	w.buf.Write(id[:])
	return w
}

// WriteString appends a VarInt byte length followed by the UTF-8 bytes.
func (w *Writer) WriteString(s string) *Writer {
	w.WriteVarInt(int32(len(s)))
	w.buf.WriteString(s)
	return w
}

// WriteVarIntArray appends a VarInt count followed by the VarInt elements.
func (w *Writer) WriteVarIntArray(vs []int32) *Writer {
	w.WriteVarInt(int32(len(vs)))
	for _, v := range vs {
		w.WriteVarInt(v)
	}
	return w
}

// WriteIntArray appends the elements as big-endian int32 values, no prefix.
func (w *Writer) WriteIntArray(vs []int32) *Writer {
	for _, v := range vs {
		w.WriteInt(v)
	}
	return w
}
