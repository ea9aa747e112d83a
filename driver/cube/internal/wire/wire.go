// Copyright (c) 2026 Cube ADBC Driver Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//         http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package wire implements the Cube Arrow Native wire protocol: the
// length-prefixed frame envelope and the codec for the protocol message
// bodies. All envelope integers are big-endian; strings and byte fields are
// a u32 length followed by the raw bytes. The codec performs no I/O.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ProtocolVersion is the fixed handshake version shared by client and
// server. A mismatch is fatal.
const ProtocolVersion uint32 = 1

// ErrProtocol marks a violation of the wire format. Errors wrapping it are
// distinguishable from transport errors with errors.Is.
var ErrProtocol = errors.New("protocol violation")

// MessageType is the first byte of every frame payload.
type MessageType uint8

const (
	TypeHandshakeRequest    MessageType = 0x01
	TypeHandshakeResponse   MessageType = 0x02
	TypeAuthRequest         MessageType = 0x03
	TypeAuthResponse        MessageType = 0x04
	TypeQueryRequest        MessageType = 0x05
	TypeQueryResponseSchema MessageType = 0x06
	TypeQueryResponseBatch  MessageType = 0x07
	TypeQueryComplete       MessageType = 0x08
	TypeError               MessageType = 0xFF
)

func (t MessageType) String() string {
	switch t {
	case TypeHandshakeRequest:
		return "HandshakeRequest"
	case TypeHandshakeResponse:
		return "HandshakeResponse"
	case TypeAuthRequest:
		return "AuthRequest"
	case TypeAuthResponse:
		return "AuthResponse"
	case TypeQueryRequest:
		return "QueryRequest"
	case TypeQueryResponseSchema:
		return "QueryResponseSchema"
	case TypeQueryResponseBatch:
		return "QueryResponseBatch"
	case TypeQueryComplete:
		return "QueryComplete"
	case TypeError:
		return "Error"
	}
	return fmt.Sprintf("MessageType(0x%02X)", uint8(t))
}

// Message is one decoded protocol message.
type Message interface {
	Type() MessageType
}

type HandshakeRequest struct {
	Version uint32
}

func (HandshakeRequest) Type() MessageType { return TypeHandshakeRequest }

type HandshakeResponse struct {
	Version       uint32
	ServerVersion string
}

func (HandshakeResponse) Type() MessageType { return TypeHandshakeResponse }

type AuthRequest struct {
	Token    string
	Database string
}

func (AuthRequest) Type() MessageType { return TypeAuthRequest }

type AuthResponse struct {
	Success   bool
	SessionID string
}

func (AuthResponse) Type() MessageType { return TypeAuthResponse }

type QueryRequest struct {
	SQL string
}

func (QueryRequest) Type() MessageType { return TypeQueryRequest }

// QueryResponseSchema carries a stand-alone schema-only IPC stream. The
// client discards it; see the NativeClient documentation.
type QueryResponseSchema struct {
	IPC []byte
}

func (QueryResponseSchema) Type() MessageType { return TypeQueryResponseSchema }

// QueryResponseBatch carries a chunk of the self-contained batch IPC stream.
type QueryResponseBatch struct {
	IPC []byte
}

func (QueryResponseBatch) Type() MessageType { return TypeQueryResponseBatch }

type QueryComplete struct {
	RowsAffected int64
}

func (QueryComplete) Type() MessageType { return TypeQueryComplete }

// ErrorMessage is the server-side failure report, terminating a query.
type ErrorMessage struct {
	Code    string
	Message string
}

func (ErrorMessage) Type() MessageType { return TypeError }

// Encode serializes a message into a frame payload (type byte + body).
func Encode(msg Message) []byte {
	buf := []byte{byte(msg.Type())}
	switch m := msg.(type) {
	case HandshakeRequest:
		buf = binary.BigEndian.AppendUint32(buf, m.Version)
	case HandshakeResponse:
		buf = binary.BigEndian.AppendUint32(buf, m.Version)
		buf = appendString(buf, m.ServerVersion)
	case AuthRequest:
		buf = appendString(buf, m.Token)
		buf = appendString(buf, m.Database)
	case AuthResponse:
		buf = appendBool(buf, m.Success)
		buf = appendString(buf, m.SessionID)
	case QueryRequest:
		buf = appendString(buf, m.SQL)
	case QueryResponseSchema:
		buf = appendBytes(buf, m.IPC)
	case QueryResponseBatch:
		buf = appendBytes(buf, m.IPC)
	case QueryComplete:
		buf = binary.BigEndian.AppendUint64(buf, uint64(m.RowsAffected))
	case ErrorMessage:
		buf = appendString(buf, m.Code)
		buf = appendString(buf, m.Message)
	default:
		panic(fmt.Sprintf("wire: cannot encode %T", msg))
	}
	return buf
}

// Decode parses a frame payload back into a message.
func Decode(payload []byte) (Message, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrProtocol)
	}
	typ := MessageType(payload[0])
	dec := decoder{buf: payload[1:], what: typ.String()}

	var msg Message
	switch typ {
	case TypeHandshakeRequest:
		msg = HandshakeRequest{Version: dec.uint32()}
	case TypeHandshakeResponse:
		msg = HandshakeResponse{Version: dec.uint32(), ServerVersion: dec.string()}
	case TypeAuthRequest:
		msg = AuthRequest{Token: dec.string(), Database: dec.string()}
	case TypeAuthResponse:
		msg = AuthResponse{Success: dec.bool(), SessionID: dec.string()}
	case TypeQueryRequest:
		msg = QueryRequest{SQL: dec.string()}
	case TypeQueryResponseSchema:
		msg = QueryResponseSchema{IPC: dec.bytes()}
	case TypeQueryResponseBatch:
		msg = QueryResponseBatch{IPC: dec.bytes()}
	case TypeQueryComplete:
		msg = QueryComplete{RowsAffected: int64(dec.uint64())}
	case TypeError:
		msg = ErrorMessage{Code: dec.string(), Message: dec.string()}
	default:
		return nil, fmt.Errorf("%w: unknown message type 0x%02X", ErrProtocol, payload[0])
	}
	if dec.err != nil {
		return nil, dec.err
	}
	if len(dec.buf) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after %s", ErrProtocol, len(dec.buf), typ)
	}
	return msg, nil
}

// decoder consumes a message body front to back, latching the first error.
type decoder struct {
	buf  []byte
	what string
	err  error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if len(d.buf) < n {
		d.err = fmt.Errorf("%w: %s body truncated (need %d bytes, have %d)", ErrProtocol, d.what, n, len(d.buf))
		return nil
	}
	out := d.buf[:n]
	d.buf = d.buf[n:]
	return out
}

func (d *decoder) uint32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (d *decoder) uint64() uint64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (d *decoder) bool() bool {
	b := d.take(1)
	return b != nil && b[0] != 0
}

func (d *decoder) bytes() []byte {
	n := d.uint32()
	b := d.take(int(n))
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

func (d *decoder) string() string {
	return string(d.bytes())
}

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func appendBytes(buf, b []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(b)))
	return append(buf, b...)
}

func appendBool(buf []byte, v bool) []byte {
	if v {
		return append(buf, 1)
	}
	return append(buf, 0)
}
