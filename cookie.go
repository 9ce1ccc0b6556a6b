package evserve

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Cookie mirrors net/http's field set; evserve keeps server-side cookie
// handling (parsing the Cookie header, writing Set-Cookie) in-core since
// the teacher's client-only cookie jar (cli/) has no server-side
// counterpart in the pack — see DESIGN.md's "Dropped teacher modules"
// entry for cli/.
type Cookie struct {
	Name     string
	Value    string
	Path     string
	Domain   string
	Expires  time.Time
	MaxAge   int
	Secure   bool
	HttpOnly bool
	SameSite SameSite
}

// SameSite mirrors net/http.SameSite's small enum.
type SameSite int

const (
	SameSiteDefaultMode SameSite = iota + 1
	SameSiteLaxMode
	SameSiteStrictMode
	SameSiteNoneMode
)

// ParseCookies parses a Cookie request header value into individual
// cookies, skipping malformed pairs rather than failing the whole header
// — the same tolerant posture the teacher's header parsing takes toward
// a single bad field.
func ParseCookies(header string) []*Cookie {
	var cookies []*Cookie
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if !isCookieToken(name) {
			continue
		}
		value = strings.TrimSpace(value)
		if v, ok := unquoteCookieValue(value); ok {
			value = v
		} else {
			continue
		}
		cookies = append(cookies, &Cookie{Name: name, Value: value})
	}
	return cookies
}

// CookieValue looks up one cookie by name, the common case when an
// application only needs a single value out of the header.
func CookieValue(header, name string) (string, bool) {
	for _, c := range ParseCookies(header) {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

// String renders a Cookie as a Set-Cookie header value.
func (c *Cookie) String() string {
	if c == nil || !isCookieToken(c.Name) {
		return ""
	}
	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteByte('=')
	b.WriteString(sanitizeCookieValue(c.Value))

	if len(c.Path) > 0 {
		fmt.Fprintf(&b, "; Path=%s", sanitizeCookiePath(c.Path))
	}
	if len(c.Domain) > 0 {
		fmt.Fprintf(&b, "; Domain=%s", c.Domain)
	}
	if validCookieExpires(c.Expires) {
		b.WriteString("; Expires=")
		b.WriteString(c.Expires.UTC().Format(TimeFormat))
	}
	if c.MaxAge > 0 {
		fmt.Fprintf(&b, "; Max-Age=%d", c.MaxAge)
	} else if c.MaxAge < 0 {
		b.WriteString("; Max-Age=0")
	}
	if c.HttpOnly {
		b.WriteString("; HttpOnly")
	}
	if c.Secure {
		b.WriteString("; Secure")
	}
	switch c.SameSite {
	case SameSiteLaxMode:
		b.WriteString("; SameSite=Lax")
	case SameSiteStrictMode:
		b.WriteString("; SameSite=Strict")
	case SameSiteNoneMode:
		b.WriteString("; SameSite=None")
	}
	return b.String()
}

func validCookieExpires(t time.Time) bool { return !t.IsZero() }

func isCookieToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isTokenTable[s[i]] {
			return false
		}
	}
	return true
}

func unquoteCookieValue(v string) (string, bool) {
	if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
		v = v[1 : len(v)-1]
	}
	for i := 0; i < len(v); i++ {
		b := v[i]
		if b < 0x20 || b == 0x7f || b == '"' || b == ';' || b == '\\' {
			return "", false
		}
	}
	return v, true
}

func sanitizeCookieValue(v string) string {
	if _, ok := unquoteCookieValue(v); ok {
		return v
	}
	return url.QueryEscape(v)
}

func sanitizeCookiePath(p string) string {
	var b strings.Builder
	for i := 0; i < len(p); i++ {
		if c := p[i]; c >= 0x20 && c < 0x7f && c != ';' {
			b.WriteByte(c)
		}
	}
	return b.String()
}
