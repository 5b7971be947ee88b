// Package browser models the already-authenticated browser session the
// importer piggybacks on. It only carries credentials; it never logs in
// and never renews anything.
package browser

import (
	"net/http"
)

// Session is a snapshot of one institution's browser cookies plus any
// extra headers the institution's endpoints require. It is immutable
// after construction; if the bank invalidates it mid-run that surfaces
// as a session-expired failure, not a refresh.
type Session struct {
	referer string
	cookies map[string]string
	headers map[string]string
}

func NewSession(referer string, cookies, headers map[string]string) Session {
	c := make(map[string]string, len(cookies))
	for k, v := range cookies {
		c[k] = v
	}
	h := make(map[string]string, len(headers))
	for k, v := range headers {
		h[k] = v
	}
	return Session{referer: referer, cookies: c, headers: h}
}

func (s Session) Referer() string {
	return s.referer
}

func (s Session) Cookies() []*http.Cookie {
	out := make([]*http.Cookie, 0, len(s.cookies))
	for name, value := range s.cookies {
		out = append(out, &http.Cookie{Name: name, Value: value})
	}
	return out
}

func (s Session) Headers() map[string]string {
	out := make(map[string]string, len(s.headers))
	for k, v := range s.headers {
		out[k] = v
	}
	return out
}

// WithHeaders returns a copy of the session carrying extra headers.
// Connectors use this for institution-specific requirements (csrf
// tokens lifted from cookies, content types) without mutating the
// session handed to them.
func (s Session) WithHeaders(extra map[string]string) Session {
	merged := s.Headers()
	for k, v := range extra {
		merged[k] = v
	}
	return NewSession(s.referer, s.cookies, merged)
}

// Cookie returns the value of a single cookie, or "" if absent. A few
// institutions stash auth material inside cookie values.
func (s Session) Cookie(name string) string {
	return s.cookies[name]
}
