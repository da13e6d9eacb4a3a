// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package crdt

import (
	"errors"
	"fmt"
)

// Variable-length unsigned integers in the lib0 layout: seven payload bits
// per byte, least significant group first, high bit set while more bytes
// follow. Interoperable with the encoding used by the reference client.

var (
	ErrTruncated = errors.New("crdt: truncated input")
	errOverflow  = errors.New("crdt: varuint overflows 64 bits")
)

type encoder struct {
	buf []byte
}

func (e *encoder) writeVarUint(v uint64) {
	for v >= 0x80 {
		e.buf = append(e.buf, byte(v)|0x80)
		v >>= 7
	}
	e.buf = append(e.buf, byte(v))
}

func (e *encoder) writeVarBytes(b []byte) {
	e.writeVarUint(uint64(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *encoder) bytes() []byte {
	return e.buf
}

type decoder struct {
	buf []byte
	off int
}

func (d *decoder) readVarUint() (uint64, error) {
	var v uint64
	var shift uint
	for {
		if d.off >= len(d.buf) {
			return 0, ErrTruncated
		}
		b := d.buf[d.off]
		d.off++
		if shift == 63 && b > 1 {
			return 0, errOverflow
		}
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, nil
		}
		shift += 7
		if shift > 63 {
			return 0, errOverflow
		}
	}
}

func (d *decoder) readVarBytes() ([]byte, error) {
	n, err := d.readVarUint()
	if err != nil {
		return nil, err
	}
	if n > uint64(len(d.buf)-d.off) {
		return nil, fmt.Errorf("crdt: declared length %d exceeds remaining %d bytes: %w", n, len(d.buf)-d.off, ErrTruncated)
	}
	b := d.buf[d.off : d.off+int(n)]
	d.off += int(n)
	return b, nil
}

func (d *decoder) remaining() int {
	return len(d.buf) - d.off
}
