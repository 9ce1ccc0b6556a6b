package evserve

import "io"

// Filter is one stage of the response pipeline's filter chain (§4.6): it
// observes or transforms body bytes on their way to the codec (gzip,
// chunked framing, logging, etc.).
//
// Grounded on badu-http's layered-writer idiom (logging_conn.go wrapping
// net.Conn, timeout_writer.go wrapping bufio.Writer) generalized into a
// named, composable chain instead of one-off wrapper types.
type Filter interface {
	// Name identifies the filter for monitoring/logging.
	Name() string
	// Write transforms and forwards p to next. Implementations that
	// buffer (e.g. compression) must still honor Close by flushing.
	Write(next io.Writer, p []byte) (int, error)
	// Close flushes any buffered state and forwards a final write to
	// next if needed.
	Close(next io.Writer) error
}

// FilterChain composes Filters in order: Write(p) flows through
// filters[0] first, whose "next" is filters[1], and so on, terminating
// at the codec's writer.
type FilterChain struct {
	filters []Filter
	tail    io.Writer

	// onDrop, if set, is called with a filter's Name() the moment that
	// filter is recovered from a panic and removed from the chain. The
	// response pipeline uses this to raise the request-level
	// bad-filter-keys flag described in SPEC_FULL's filter-recovery
	// protocol; this type itself has no notion of a Request.
	onDrop func(name string)
}

// NewFilterChain builds a chain ending at tail (the codec writer).
func NewFilterChain(tail io.Writer, filters ...Filter) *FilterChain {
	return &FilterChain{filters: filters, tail: tail}
}

// Write drives p through every filter. A filter that panics is removed
// from the chain and the write retried from the same position without
// it — a single bad filter degrades the response for the rest of this
// chain's life instead of crashing the connection. This is purely a
// within-call/within-chain degrade; it does not by itself implement the
// request-scoped blacklist SPEC_FULL describes (see onDrop above and
// response_pipeline.go's writeAtomic, which does).
func (c *FilterChain) Write(p []byte) (n int, err error) {
	return c.writeFrom(0, p)
}

func (c *FilterChain) writeFrom(i int, p []byte) (n int, err error) {
	if i >= len(c.filters) {
		return c.tail.Write(p)
	}
	next := chainWriter{c: c, i: i + 1}

	defer func() {
		if rec := recover(); rec != nil {
			dropped := c.filters[i]
			c.filters = append(append([]Filter{}, c.filters[:i]...), c.filters[i+1:]...)
			if c.onDrop != nil {
				c.onDrop(dropped.Name())
			}
			n, err = c.writeFrom(i, p)
		}
	}()
	return c.filters[i].Write(next, p)
}

// Close closes every filter in order; each filter's Close may still
// write through the rest of the chain. The tail itself is not closed
// here (pipelineSink.close closes the codec's body writer).
func (c *FilterChain) Close() error {
	return c.closeFrom(0)
}

func (c *FilterChain) closeFrom(i int) (err error) {
	if i >= len(c.filters) {
		return nil
	}
	next := chainWriter{c: c, i: i + 1}
	defer func() {
		if rec := recover(); rec != nil {
			dropped := c.filters[i]
			c.filters = append(append([]Filter{}, c.filters[:i]...), c.filters[i+1:]...)
			if c.onDrop != nil {
				c.onDrop(dropped.Name())
			}
			err = c.closeFrom(i)
		}
	}()
	if err := c.filters[i].Close(next); err != nil {
		return err
	}
	return c.closeFrom(i + 1)
}

// chainWriter is the io.Writer a filter's "next" parameter resolves to:
// the rest of the chain, terminating at the tail.
type chainWriter struct {
	c *FilterChain
	i int
}

func (w chainWriter) Write(p []byte) (int, error) { return w.c.writeFrom(w.i, p) }
