package browser

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSessionImmutable(t *testing.T) {
	cookies := map[string]string{"SESSIONID": "abc"}
	headers := map[string]string{"x-csrf": "tok"}
	sess := NewSession("https://bank.example", cookies, headers)

	// mutating the inputs or accessor results must not leak back in
	cookies["SESSIONID"] = "mutated"
	headers["x-csrf"] = "mutated"
	sess.Headers()["x-csrf"] = "mutated"

	require.Equal(t, "abc", sess.Cookie("SESSIONID"))
	require.Equal(t, map[string]string{"x-csrf": "tok"}, sess.Headers())
}

func TestSessionWithHeaders(t *testing.T) {
	sess := NewSession("https://bank.example", nil, map[string]string{"a": "1"})
	derived := sess.WithHeaders(map[string]string{"b": "2"})

	require.Equal(t, map[string]string{"a": "1", "b": "2"}, derived.Headers())
	require.Equal(t, map[string]string{"a": "1"}, sess.Headers())
	require.Equal(t, "https://bank.example", derived.Referer())
}

func TestSessionCookies(t *testing.T) {
	sess := NewSession("", map[string]string{"a": "1"}, nil)
	cookies := sess.Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, "a", cookies[0].Name)
	require.Equal(t, "1", cookies[0].Value)
	require.Equal(t, "", sess.Cookie("missing"))
}
