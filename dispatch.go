package evserve

// dispatch runs C8's pre-app fast paths in this order: 503 while the
// server is stopping, CONNECT rejection, the method whitelist (405),
// virtual host selection (400), TRACE, OPTIONS *. It falls through to
// the resolved VHost's Handler only if none of them short-circuit the
// request.
func (srv *Server) dispatch(c *clientConn, req *Request, resp *Response) {
	// 0. A server that is stopping takes on no new requests.
	if srv.lc.State() == StateStopping {
		writeFastPath(req, resp, StatusServiceUnavailable, "server is stopping")
		return
	}

	// 1. CONNECT is not a supported method for this core (no tunneling
	// driver); reject before touching VHosts.
	if req.Method == CONNECT {
		writeFastPath(req, resp, StatusBadRequest, "CONNECT not supported")
		return
	}

	// 2. Method whitelist (§6 AllowedMethods).
	if srv.opts.NormalizeMethodCase {
		req.Method = normalizeMethod(req.Method)
	}
	if !srv.opts.AllowsMethod(req.Method) {
		resp.Header.Set("Allow", srv.opts.MethodAllowHeader())
		writeFastPath(req, resp, StatusMethodNotAllowed, "method not allowed")
		return
	}

	// 3. Resolve the VHost from the Host header / authority.
	vhost := srv.vhosts.Resolve(req.Host)
	if vhost == nil {
		writeFastPath(req, resp, StatusBadRequest, "invalid host")
		return
	}
	req.vhost = vhost

	// 4. TRACE is echoed back verbatim by the core itself, never handed
	// to an application (RFC 9110 avoids exposing app-level TRACE
	// handling surface).
	if req.Method == TRACE {
		serveTrace(resp, req)
		return
	}

	// 5. OPTIONS * is answered directly with the Allow header.
	if req.Method == OPTIONS && req.Path == "*" {
		resp.Header.Set("Allow", srv.opts.MethodAllowHeader())
		resp.WriteHeader(StatusOK)
		resp.finish()
		return
	}

	// 6. Hand off to the application. A panicking handler is recovered
	// and turned into a 500, mirroring the filter-recovery posture
	// applied uniformly across the response pipeline.
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				srv.log.WithField("panic", rec).Errorf("handler panic")
				if resp.Status() == 0 {
					writeFastPath(req, resp, StatusInternalServerError, "internal error")
				}
			}
		}()
		vhost.Handler.ServeHTTP(resp, req)
	}()

	resp.finish()
}

// writeFastPath sends a framework-generated response, not an
// application handler's. It goes through Response.writeAtomic rather
// than plain WriteHeader+Write so a filter panicking while producing it
// gets blacklisted and the response regenerated without that filter
// instead of leaving a corrupt partial response on the wire (§4.6).
func writeFastPath(req *Request, resp *Response, status int, msg string) {
	resp.Header.Set(ContentType, "text/plain; charset=utf-8")
	resp.writeAtomic(req, status, []byte(msg))
	resp.finish()
}

func serveTrace(resp *Response, req *Request) {
	resp.Header.Set(ContentType, "message/http")
	var body []byte
	body = append(body, req.Method...)
	body = append(body, ' ')
	body = append(body, req.Path...)
	body = append(body, ' ')
	body = append(body, req.Proto...)
	body = append(body, "\r\n"...)
	for k, vs := range req.Header {
		for _, v := range vs {
			body = append(body, k...)
			body = append(body, ": "...)
			body = append(body, v...)
			body = append(body, "\r\n"...)
		}
	}
	resp.writeAtomic(req, StatusOK, body)
	resp.finish()
}

func normalizeMethod(m string) string {
	out := make([]byte, len(m))
	for i := 0; i < len(m); i++ {
		b := m[i]
		if b >= 'a' && b <= 'z' {
			b -= 'a' - 'A'
		}
		out[i] = b
	}
	return string(out)
}
