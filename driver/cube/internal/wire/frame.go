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

package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single frame payload. Anything larger is treated as
// stream corruption rather than attempted.
const MaxFrameSize = 100 * 1024 * 1024

// ReadFrame reads one length-prefixed frame and returns its payload.
// io.EOF at a frame boundary is returned as-is; EOF inside a frame is
// io.ErrUnexpectedEOF.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("connection closed mid-frame: %w", err)
		}
		return nil, err
	}

	length := binary.BigEndian.Uint32(header[:])
	if length == 0 || length > MaxFrameSize {
		return nil, fmt.Errorf("%w: invalid frame length %d", ErrProtocol, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("connection closed mid-frame: %w", io.ErrUnexpectedEOF)
		}
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes the length prefix followed by the payload. io.Writer
// already guarantees full writes or an error, so no retry loop is needed.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) == 0 || len(payload) > MaxFrameSize {
		return fmt.Errorf("%w: invalid frame length %d", ErrProtocol, len(payload))
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// WriteMessage encodes and frames a message in one call.
func WriteMessage(w io.Writer, msg Message) error {
	return WriteFrame(w, Encode(msg))
}

// ReadMessage reads one frame and decodes its payload.
func ReadMessage(r io.Reader) (Message, error) {
	payload, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	return Decode(payload)
}
