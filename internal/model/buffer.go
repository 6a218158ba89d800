package model

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrFieldOutOfRange = errors.New("buffer field out of range")

// RawBuffer is a device file snapshot as positional two-digit uppercase hex fields.
type RawBuffer []string

// ParseRawBuffer transcodes a base64 file payload into its hex fields.
// Whitespace inside the payload is ignored.
func ParseRawBuffer(payload string) (RawBuffer, error) {
	clean := strings.Join(strings.Fields(payload), "")
	data, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("decode base64 payload: %w", err)
	}
	return NewRawBuffer(data), nil
}

func NewRawBuffer(data []byte) RawBuffer {
	fields := make(RawBuffer, len(data))
	for i, b := range data {
		fields[i] = fmt.Sprintf("%02X", b)
	}
	return fields
}

func (r RawBuffer) Field(offset int) (string, error) {
	if offset < 0 || offset >= len(r) {
		return "", fmt.Errorf("%w: offset %d, length %d", ErrFieldOutOfRange, offset, len(r))
	}
	return r[offset], nil
}

// String renders the buffer the way the relay files are usually dumped, e.g. "0A-1B-FF".
func (r RawBuffer) String() string {
	return strings.Join(r, "-")
}

// Buffers is the pair of device files captured by one poll.
type Buffers struct {
	Panel      RawBuffer
	Config     RawBuffer
	CapturedAt time.Time
}

// Merge overlays the non-nil buffers of update onto b.
func (b Buffers) Merge(update Buffers) Buffers {
	next := b
	if update.Panel != nil {
		next.Panel = update.Panel
	}
	if update.Config != nil {
		next.Config = update.Config
	}
	if !update.CapturedAt.IsZero() {
		next.CapturedAt = update.CapturedAt
	}
	return next
}
