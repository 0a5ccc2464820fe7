/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// Splitter turns an arbitrarily chunked event-stream body into frame payloads.
// Blocks are separated by a blank line; each "data:" line contributes to the
// payload. CRLF line endings are normalized before splitting, so the output is
// the same however the input is chunked.
type Splitter struct {
	buf       []byte
	scan      int // buf[:scan] holds no block separator
	pendingCR bool
	scanned   int // bytes searched for separators
}

// Push appends a chunk and returns the payloads of every block it completed.
func (s *Splitter) Push(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}
	if s.pendingCR {
		chunk = append([]byte{'\r'}, chunk...)
		s.pendingCR = false
	}
	if chunk[len(chunk)-1] == '\r' {
		s.pendingCR = true
		chunk = chunk[:len(chunk)-1]
	}
	s.buf = append(s.buf, bytes.ReplaceAll(chunk, []byte("\r\n"), []byte("\n"))...)

	var out []string
	for {
		i := bytes.Index(s.buf[s.scan:], []byte("\n\n"))
		if i < 0 {
			s.scanned += len(s.buf) - s.scan
			// a separator may straddle the next chunk
			s.scan = max(len(s.buf)-1, 0)
			break
		}
		s.scanned += i + 2
		i += s.scan
		if payload, ok := parseBlock(s.buf[:i]); ok {
			out = append(out, payload)
		}
		s.buf = s.buf[i+2:]
		s.scan = 0
	}
	if len(s.buf) == 0 {
		s.buf = nil
		s.scan = 0
	}
	return out
}

// Pending returns the number of buffered bytes that do not yet form a block.
func (s *Splitter) Pending() int {
	n := len(s.buf)
	if s.pendingCR {
		n++
	}
	return n
}

// Reset drops any buffered partial block.
func (s *Splitter) Reset() {
	s.buf = nil
	s.scan = 0
	s.pendingCR = false
}

func parseBlock(block []byte) (string, bool) {
	var data [][]byte
	for _, line := range bytes.Split(block, []byte("\n")) {
		if len(line) == 0 || line[0] == ':' {
			continue
		}
		v, ok := bytes.CutPrefix(line, []byte("data:"))
		if !ok {
			// event:, id:, retry: carry nothing we use
			continue
		}
		v, _ = bytes.CutPrefix(v, []byte(" "))
		data = append(data, v)
	}
	if len(data) == 0 {
		return "", false
	}
	return string(bytes.Join(data, []byte("\n"))), true
}

// Decoder reads frame payloads from an event-stream body.
type Decoder struct {
	r     io.Reader
	sp    Splitter
	queue []string
	buf   []byte
	err   error
	// Discarded is the size of the incomplete trailing block dropped at EOF.
	Discarded int
}

// NewDecoder wraps r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r, buf: make([]byte, 32*1024)}
}

// Next returns the next payload. It returns io.EOF once the body is exhausted;
// a trailing block without its blank-line terminator is discarded.
func (d *Decoder) Next() (string, error) {
	for len(d.queue) == 0 {
		if d.err != nil {
			return "", d.err
		}
		n, err := d.r.Read(d.buf)
		if n > 0 {
			d.queue = append(d.queue, d.sp.Push(d.buf[:n])...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				d.Discarded = d.sp.Pending()
				d.sp.Reset()
				d.err = io.EOF
			} else {
				d.err = fmt.Errorf("read event stream: %w", err)
			}
		}
	}
	p := d.queue[0]
	d.queue = d.queue[1:]
	return p, nil
}
