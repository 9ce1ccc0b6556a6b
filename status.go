/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package evserve

// Status codes the core itself produces for pre-app responses (§4.5) or
// that drivers commonly need text for.
const (
	StatusOK                    = 200
	StatusBadRequest            = 400
	StatusNotFound              = 404
	StatusMethodNotAllowed      = 405
	StatusRequestEntityTooLarge = 413
	StatusRequestHeaderTooLarge = 431
	StatusInternalServerError   = 500
	StatusServiceUnavailable    = 503
)

var statusText = map[int]string{
	StatusOK:                    "OK",
	StatusBadRequest:            "Bad Request",
	StatusNotFound:              "Not Found",
	StatusMethodNotAllowed:      "Method Not Allowed",
	StatusRequestEntityTooLarge: "Request Entity Too Large",
	StatusRequestHeaderTooLarge: "Request Header Fields Too Large",
	StatusInternalServerError:   "Internal Server Error",
	StatusServiceUnavailable:    "Service Unavailable",
}

// StatusText returns a text for the HTTP status code, or "" if unknown.
func StatusText(code int) string {
	return statusText[code]
}
