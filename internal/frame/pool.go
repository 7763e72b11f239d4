// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package frame

import "sync"

// Buffer sizes served by the pool
const (
	SmallBufferSize = 16                                // ACK processing, ready polls
	FrameBufferSize = MaxFrameDataLength + Overhead + 1 // Complete frame with status byte
)

// BufferPool recycles I/O buffers for link reads.
type BufferPool struct {
	small sync.Pool
	frame sync.Pool
}

var defaultPool = NewBufferPool()

// NewBufferPool creates an empty pool.
func NewBufferPool() *BufferPool {
	return &BufferPool{
		small: sync.Pool{New: func() any {
			buf := make([]byte, SmallBufferSize)
			return &buf
		}},
		frame: sync.Pool{New: func() any {
			buf := make([]byte, FrameBufferSize)
			return &buf
		}},
	}
}

// GetBuffer returns a zeroed buffer of the requested length.
func (p *BufferPool) GetBuffer(size int) []byte {
	var pool *sync.Pool
	switch {
	case size <= SmallBufferSize:
		pool = &p.small
	case size <= FrameBufferSize:
		pool = &p.frame
	default:
		// Oversized requests bypass the pool
		return make([]byte, size)
	}
	bufPtr, ok := pool.Get().(*[]byte)
	if !ok {
		return make([]byte, size)
	}
	return (*bufPtr)[:size]
}

// PutBuffer clears buf and hands it back to the pool it came from.
func (p *BufferPool) PutBuffer(buf []byte) {
	if buf == nil {
		return
	}
	full := buf[:cap(buf)]
	clear(full)

	switch cap(buf) {
	case SmallBufferSize:
		p.small.Put(&full)
	case FrameBufferSize:
		p.frame.Put(&full)
	}
}

// GetBuffer takes a buffer from the default pool.
func GetBuffer(size int) []byte {
	return defaultPool.GetBuffer(size)
}

// PutBuffer returns a buffer to the default pool.
func PutBuffer(buf []byte) {
	defaultPool.PutBuffer(buf)
}
