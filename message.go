package netkit

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"reflect"

	"github.com/pkg/errors"
)

// Errors returned by message body operations.
var (
	// ErrNotFixedSize is returned when pushing a value whose encoded size
	// is not known up front (slices, strings, maps, pointers to such data).
	ErrNotFixedSize = errors.New("value is not fixed size")
	// ErrBodyUnderflow is returned when popping more bytes than the body holds.
	ErrBodyUnderflow = errors.New("message body underflow")
	// ErrInvalidTarget is returned when Pop is given a nil or non-pointer target.
	ErrInvalidTarget = errors.New("pop target must be a non-nil pointer")
)

// byteOrder is the wire byte order for headers and body values.
var byteOrder = binary.LittleEndian

// MessageType is the set of integer kinds usable as message type codes.
// The width of the chosen type is the width of the type field on the wire.
type MessageType interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64 | ~int8 | ~int16 | ~int32 | ~int64
}

// Header is the fixed-size prefix of every frame.
type Header[T MessageType] struct {
	Type T
	Size uint32
}

// HeaderSize returns the encoded size of Header[T] in bytes.
func HeaderSize[T MessageType]() int {
	var t T
	return binary.Size(t) + 4
}

func (h Header[T]) encode() []byte {
	width := HeaderSize[T]() - 4
	buf := make([]byte, width+4)
	v := uint64(h.Type)
	for i := 0; i < width; i++ {
		buf[i] = byte(v >> (8 * i))
	}
	byteOrder.PutUint32(buf[width:], h.Size)
	return buf
}

func decodeHeader[T MessageType](buf []byte) Header[T] {
	width := HeaderSize[T]() - 4
	var v uint64
	for i := 0; i < width; i++ {
		v |= uint64(buf[i]) << (8 * i)
	}
	return Header[T]{Type: T(v), Size: byteOrder.Uint32(buf[width:])}
}

// Message is a typed frame: a header and a body of packed fixed-size values.
//
// The body is a stack: Pop returns values in the reverse order they were
// pushed. Header.Size always equals the body length.
type Message[T MessageType] struct {
	Header Header[T]
	body   []byte
}

// NewMessage returns an empty message of type t.
func NewMessage[T MessageType](t T) *Message[T] {
	return &Message[T]{Header: Header[T]{Type: t}}
}

// Type returns the message type code.
func (m *Message[T]) Type() T {
	return m.Header.Type
}

// Size returns the current body length in bytes.
func (m *Message[T]) Size() int {
	return len(m.body)
}

// Body returns the raw body bytes. The slice aliases the message.
func (m *Message[T]) Body() []byte {
	return m.body
}

// Clone returns a deep copy of m with Header.Size matching the body.
func (m *Message[T]) Clone() *Message[T] {
	c := &Message[T]{Header: m.Header}
	if len(m.body) > 0 {
		c.body = append([]byte(nil), m.body...)
	}
	c.Header.Size = uint32(len(c.body))
	return c
}

// Push appends v to the end of the body.
func (m *Message[T]) Push(v any) error {
	if v == nil || !fixedSize(reflect.TypeOf(v)) {
		return errors.Wrapf(ErrNotFixedSize, "push %T", v)
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, byteOrder, v); err != nil {
		return errors.Wrapf(err, "push %T", v)
	}

	m.body = append(m.body, buf.Bytes()...)
	m.Header.Size = uint32(len(m.body))
	return nil
}

// Pop removes a value from the end of the body and stores it in ptr.
// The message is left untouched on error.
func (m *Message[T]) Pop(ptr any) error {
	rv := reflect.ValueOf(ptr)
	if !rv.IsValid() || rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.Wrapf(ErrInvalidTarget, "pop %T", ptr)
	}
	if !fixedSize(rv.Type().Elem()) {
		return errors.Wrapf(ErrNotFixedSize, "pop %T", ptr)
	}

	n := binary.Size(ptr)
	if n > len(m.body) {
		return errors.Wrapf(ErrBodyUnderflow, "pop %T: need %d bytes, have %d", ptr, n, len(m.body))
	}

	i := len(m.body) - n
	if err := binary.Read(bytes.NewReader(m.body[i:]), byteOrder, ptr); err != nil {
		return errors.Wrapf(err, "pop %T", ptr)
	}

	m.body = m.body[:i]
	m.Header.Size = uint32(len(m.body))
	return nil
}

func (m *Message[T]) String() string {
	return fmt.Sprintf("ID:%d Size:%d", m.Header.Type, m.Header.Size)
}

// fixedSize reports whether values of t have a size known without looking
// at the value. encoding/binary also sizes slices, which is not wanted here.
func fixedSize(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	case reflect.Array:
		return fixedSize(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if !fixedSize(t.Field(i).Type) {
				return false
			}
		}
		return true
	}
	return false
}

// Peer is a non-owning handle to a connection. The zero Peer stands for
// the server on the client side.
type Peer struct {
	ID   uint32
	Addr net.Addr
}

// IsZero reports whether p refers to no connection.
func (p Peer) IsZero() bool {
	return p.ID == 0
}

// OwnedMessage is an inbound message tagged with the connection it came from.
type OwnedMessage[T MessageType] struct {
	Remote Peer
	Msg    *Message[T]
}
