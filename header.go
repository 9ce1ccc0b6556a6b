/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package evserve

import (
	"io"
	"sort"
	"strings"
	"sync"
)

const toLower = 'a' - 'A'

// isTokenTable is a copy of net/http/lex.go's isTokenTable.
// See https://httpwg.github.io/specs/rfc7230.html#rule.token.separators
var isTokenTable = [127]bool{
	'!': true, '#': true, '$': true, '%': true, '&': true, '\'': true,
	'*': true, '+': true, '-': true, '.': true, '0': true, '1': true,
	'2': true, '3': true, '4': true, '5': true, '6': true, '7': true,
	'8': true, '9': true, 'A': true, 'B': true, 'C': true, 'D': true,
	'E': true, 'F': true, 'G': true, 'H': true, 'I': true, 'J': true,
	'K': true, 'L': true, 'M': true, 'N': true, 'O': true, 'P': true,
	'Q': true, 'R': true, 'S': true, 'T': true, 'U': true, 'W': true,
	'V': true, 'X': true, 'Y': true, 'Z': true, '^': true, '_': true,
	'`': true, 'a': true, 'b': true, 'c': true, 'd': true, 'e': true,
	'f': true, 'g': true, 'h': true, 'i': true, 'j': true, 'k': true,
	'l': true, 'm': true, 'n': true, 'o': true, 'p': true, 'q': true,
	'r': true, 's': true, 't': true, 'u': true, 'v': true, 'w': true,
	'x': true, 'y': true, 'z': true, '|': true, '~': true,
}

// commonHeader interns common header strings so CanonicalHeaderKey avoids
// an allocation for the names the wire protocol uses most.
var commonHeader = make(map[string]string)

func init() {
	for _, v := range []string{
		Accept, AcceptCharset, AcceptEncoding, AcceptLanguage, AcceptRanges,
		Authorization, CacheControl, Cc, Connection, ContentEncoding,
		ContentId, ContentLanguage, ContentLength, ContentRange,
		ContentTransferEncoding, ContentType, CookieHeader, Date,
		DkimSignature, Etag, Expires, Expect, From, Host, IfModifiedSince,
		IfNoneMatch, InReplyTo, LastModified, Location, MessageId,
		MimeVersion, Pragma, Received, Referer, ReturnPath, ServerHeader,
		SetCookieHeader, Subject, TransferEncoding, To, Trailer,
		UpgradeHeader, UserAgent, Via, XForwardedFor, XImforwards, XPoweredBy,
	} {
		commonHeader[v] = v
	}
}

// Header is the multimap backing a Request's and a Response's header
// fields. It keeps the order of values within one key, not the order of
// keys; WriteSubset writes keys in sorted order.
type Header map[string][]string

// CanonicalHeaderKey returns the canonical format of the header key s: the
// first letter and any letter following a hyphen are upper-cased, the rest
// are lower-cased. Keys containing invalid header-field bytes are returned
// unmodified.
func CanonicalHeaderKey(s string) string {
	upper := true
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !validHeaderFieldByte(c) {
			return s
		}
		if upper && 'a' <= c && c <= 'z' {
			return canonicalMIMEHeaderKey([]byte(s))
		}
		if !upper && 'A' <= c && c <= 'Z' {
			return canonicalMIMEHeaderKey([]byte(s))
		}
		upper = c == '-'
	}
	return s
}

func validHeaderFieldByte(b byte) bool {
	return int(b) < len(isTokenTable) && isTokenTable[b]
}

func canonicalMIMEHeaderKey(a []byte) string {
	for _, c := range a {
		if !validHeaderFieldByte(c) {
			return string(a)
		}
	}
	upper := true
	for i, c := range a {
		if upper && 'a' <= c && c <= 'z' {
			c -= toLower
		} else if !upper && 'A' <= c && c <= 'Z' {
			c += toLower
		}
		a[i] = c
		upper = c == '-'
	}
	if v := commonHeader[string(a)]; v != "" {
		return v
	}
	return string(a)
}

// Add appends value to the values for key, canonicalizing key.
func (h Header) Add(key, value string) {
	h[CanonicalHeaderKey(key)] = append(h[CanonicalHeaderKey(key)], value)
}

// Set replaces any existing values for key with value, canonicalizing key.
func (h Header) Set(key, value string) {
	h[CanonicalHeaderKey(key)] = []string{value}
}

// Get returns the first value for key, or "" if absent.
func (h Header) Get(key string) string {
	if h == nil {
		return ""
	}
	v := h[CanonicalHeaderKey(key)]
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

// Values returns all values for key, canonicalizing key.
func (h Header) Values(key string) []string {
	return h[CanonicalHeaderKey(key)]
}

// Del deletes the values for key.
func (h Header) Del(key string) {
	delete(h, CanonicalHeaderKey(key))
}

// get is like Get but assumes key is already canonical, skipping
// canonicalization.
func (h Header) get(key string) string {
	if v, ok := h[key]; ok && len(v) > 0 {
		return v[0]
	}
	return ""
}

// Clone returns a deep copy of h.
func (h Header) Clone() Header {
	if h == nil {
		return nil
	}
	c := make(Header, len(h))
	for k, vv := range h {
		cv := make([]string, len(vv))
		copy(cv, vv)
		c[k] = cv
	}
	return c
}

// WriteSubset writes h to w in canonical sorted-key order, skipping any key
// present in exclude. It is used both by the HTTP/1.1 driver (wire order
// matters for readability/determinism, not correctness) and by tests that
// want a stable dump.
func (h Header) WriteSubset(w io.Writer, exclude map[string]bool) error {
	ws, ok := w.(writeStringer)
	if !ok {
		ws = stringWriter{w}
	}

	kvs, sorter := h.sortedKeyValues(exclude)
	defer headerSorterPool.Put(sorter)

	for _, kv := range kvs {
		for _, v := range kv.values {
			v = headerNewlineToSpace.Replace(v)
			v = strings.TrimSpace(v)
			for _, line := range []string{kv.key, ": ", v, "\r\n"} {
				if _, err := ws.WriteString(line); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (h Header) sortedKeyValues(exclude map[string]bool) ([]keyValues, *headerSorter) {
	sorter := headerSorterPool.Get().(*headerSorter)
	if cap(sorter.kvs) < len(h) {
		sorter.kvs = make([]keyValues, 0, len(h))
	}
	kvs := sorter.kvs[:0]
	for k, vv := range h {
		if !exclude[k] {
			kvs = append(kvs, keyValues{k, vv})
		}
	}
	sorter.kvs = kvs
	sort.Sort(sorter)
	return kvs, sorter
}

type (
	writeStringer interface {
		WriteString(string) (int, error)
	}

	stringWriter struct {
		w io.Writer
	}

	keyValues struct {
		key    string
		values []string
	}

	// headerSorter implements sort.Interface over a []keyValues so header
	// output is byte-stable, which makes wire captures in tests diffable.
	headerSorter struct {
		kvs []keyValues
	}
)

func (w stringWriter) WriteString(s string) (int, error) {
	return w.w.Write([]byte(s))
}

func (s *headerSorter) Len() int           { return len(s.kvs) }
func (s *headerSorter) Swap(i, j int)      { s.kvs[i], s.kvs[j] = s.kvs[j], s.kvs[i] }
func (s *headerSorter) Less(i, j int) bool { return s.kvs[i].key < s.kvs[j].key }

var headerSorterPool = sync.Pool{
	New: func() interface{} { return new(headerSorter) },
}

var headerNewlineToSpace = strings.NewReplacer("\n", " ", "\r", " ")
