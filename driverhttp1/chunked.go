package driverhttp1

import (
	"bytes"
	"strconv"

	"github.com/badu/evserve"
)

// chunkedState incrementally decodes an HTTP/1.1 chunked transfer-coded
// body (RFC 9112 §7.1) across arbitrarily-sized Feed calls. Grounded on
// the naming the teacher's fragment-only chunks/types.go used
// (chunkedReader/chunkedWriter), reimplemented from scratch since no
// method body for either survived in the retrieval pack (see
// DESIGN.md's "Dropped teacher modules" entry for chunks/).
type chunkedState struct {
	phase        chunkPhase
	chunkLeft    int64
	sawLastChunk bool
}

type chunkPhase int

const (
	phaseSize chunkPhase = iota
	phaseData
	phaseDataCRLF
	phaseTrailer
)

func newChunkedState() *chunkedState {
	return &chunkedState{phase: phaseSize}
}

// feed consumes as much of buf as forms complete chunk-framing, pushing
// EntityPart events for data it extracts. done reports whether the
// terminating 0-length chunk and trailer have been fully consumed.
func (c *chunkedState) feed(buf *bytes.Buffer) (done bool, events []evserve.Event, err error) {
	for {
		switch c.phase {
		case phaseSize:
			line, ok := readLine(buf)
			if !ok {
				return false, events, nil
			}
			// Strip chunk extensions (";name=value"), RFC 9112 §7.1.1.
			if i := bytes.IndexByte(line, ';'); i >= 0 {
				line = line[:i]
			}
			n, perr := strconv.ParseInt(string(bytes.TrimSpace(line)), 16, 64)
			if perr != nil || n < 0 {
				return false, events, errMalformed("invalid chunk size")
			}
			if n == 0 {
				c.sawLastChunk = true
				c.phase = phaseTrailer
				continue
			}
			c.chunkLeft = n
			c.phase = phaseData

		case phaseData:
			avail := buf.Bytes()
			if len(avail) == 0 {
				return false, events, nil
			}
			n := int64(len(avail))
			if n > c.chunkLeft {
				n = c.chunkLeft
			}
			chunk := make([]byte, n)
			buf.Read(chunk)
			if n > 0 {
				events = append(events, evserve.Event{Kind: evserve.EntityPart, Chunk: chunk})
			}
			c.chunkLeft -= n
			if c.chunkLeft == 0 {
				c.phase = phaseDataCRLF
			} else {
				return false, events, nil
			}

		case phaseDataCRLF:
			if buf.Len() < 2 {
				return false, events, nil
			}
			crlf := make([]byte, 2)
			buf.Read(crlf)
			if !bytes.Equal(crlf, []byte("\r\n")) {
				return false, events, errMalformed("malformed chunk terminator")
			}
			c.phase = phaseSize

		case phaseTrailer:
			line, ok := readLine(buf)
			if !ok {
				return false, events, nil
			}
			if len(line) == 0 {
				return true, events, nil
			}
			// Trailer header lines are parsed but discarded: the spec's
			// dispatch view has no trailer field (§3 Data Model).
		}
	}
}

// readLine extracts one CRLF-terminated line from buf without
// consuming it if the terminator hasn't arrived yet.
func readLine(buf *bytes.Buffer) ([]byte, bool) {
	data := buf.Bytes()
	idx := bytes.Index(data, []byte("\r\n"))
	if idx < 0 {
		return nil, false
	}
	line := make([]byte, idx)
	copy(line, data[:idx])
	buf.Next(idx + 2)
	return line, true
}
