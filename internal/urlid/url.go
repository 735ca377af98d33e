// Package urlid canonicalizes url strings and derives their identity.
//
// The identity of a url is a name-based (version 5) UUID of its canonical
// string in the RFC 4122 URL namespace. Any party that canonicalizes the same
// string gets the same identity without coordination, which is what lets a
// browser extension, an import job and the server agree on "the same
// bookmark".
package urlid

import (
	"strings"

	"github.com/google/uuid"
)

var allowedSchemes = map[string]struct{}{
	"http":  {},
	"https": {},
}

// URL is a canonical url split into its five parts. The zero value is not a
// valid URL; construct one with Canonicalize or Follow.
type URL struct {
	id        uuid.UUID
	scheme    string
	authority string
	path      string
	query     string
	fragment  string
}

func (u URL) ID() uuid.UUID     { return u.id }
func (u URL) Scheme() string    { return u.scheme }
func (u URL) Authority() string { return u.authority }
func (u URL) Path() string      { return u.path }
func (u URL) Query() string     { return u.query }
func (u URL) Fragment() string  { return u.fragment }
func (u URL) IsZero() bool      { return u.id == uuid.Nil }
func (u URL) String() string    { return u.parts().join() }

// Parts returns scheme, authority, path, query and fragment in that order.
func (u URL) Parts() [5]string { return u.parts().array() }

// Equal reports whether both urls have the same parts and identity.
func (u URL) Equal(other URL) bool { return u == other }

// MarshalText implements encoding.TextMarshaler.
func (u URL) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Text input must already
// be canonical.
func (u *URL) UnmarshalText(text []byte) error {
	parsed, err := Canonicalize(string(text), false)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// Identity returns the identity of an already canonical url string.
func Identity(canonical string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(canonical))
}

// Canonicalize splits raw into its five parts and derives its identity.
//
// With coerce set, an empty path becomes "/" and an empty query or fragment
// loses its delimiter; this is for human-entered or legacy data. Without
// coerce, raw must already be canonical: an empty path or any difference
// between raw and its rejoined form is a BadCanonicalizationError.
func Canonicalize(raw string, coerce bool) (URL, error) {
	p := split(raw)

	if _, ok := allowedSchemes[p.scheme]; !ok {
		return URL{}, &DisallowedSchemeError{URL: raw, Scheme: p.scheme}
	}

	if p.path == "" {
		if !coerce {
			return URL{}, &BadCanonicalizationError{URL: raw, Reason: "empty path"}
		}
		p.path = "/"
	}

	canonical := p.join()
	if !coerce && canonical != raw {
		return URL{}, &BadCanonicalizationError{URL: raw, Reason: "not in canonical form"}
	}

	if again := split(canonical); again != p || again.join() != canonical {
		return URL{}, &BadCanonicalizationError{URL: raw, Reason: "does not round trip"}
	}

	return URL{
		id:        Identity(canonical),
		scheme:    p.scheme,
		authority: p.authority,
		path:      p.path,
		query:     p.query,
		fragment:  p.fragment,
	}, nil
}

// MustCanonicalize is like Canonicalize but panics on error. For tests and
// constants only.
func MustCanonicalize(raw string) URL {
	u, err := Canonicalize(raw, false)
	if err != nil {
		panic(err)
	}
	return u
}

// Follow resolves href against base the way a browser resolves a link, then
// canonicalizes the result with the same rules as Canonicalize. Resolution is
// RFC 3986 section 5.2 in its non-strict form: a reference whose scheme equals
// the base scheme and that has no authority is treated as relative.
func Follow(base URL, href string, coerce bool) (URL, error) {
	r := splitRef(strings.TrimSpace(href))
	if r.scheme == base.scheme && !r.hasAuthority {
		r.scheme = ""
	}

	var t parts
	switch {
	case r.scheme != "":
		t = r.parts
		t.path = removeDotSegments(t.path)
	case r.hasAuthority:
		t = r.parts
		t.scheme = base.scheme
		t.path = removeDotSegments(t.path)
	case r.path == "":
		t = base.parts()
		t.fragment = r.fragment
		if r.query != "" {
			t.query = r.query
		}
	default:
		t = base.parts()
		t.query = r.query
		t.fragment = r.fragment
		if strings.HasPrefix(r.path, "/") {
			t.path = removeDotSegments(r.path)
		} else {
			t.path = removeDotSegments(mergePaths(base, r.path))
		}
	}

	return Canonicalize(t.join(), coerce)
}

func mergePaths(base URL, ref string) string {
	if base.authority != "" && base.path == "" {
		return "/" + ref
	}
	i := strings.LastIndexByte(base.path, '/')
	return base.path[:i+1] + ref
}

// removeDotSegments is RFC 3986 section 5.2.4.
func removeDotSegments(path string) string {
	if !strings.Contains(path, ".") {
		return path
	}
	in, out := path, ""
	dropLast := func() {
		if i := strings.LastIndexByte(out, '/'); i >= 0 {
			out = out[:i]
		} else {
			out = ""
		}
	}
	for in != "" {
		switch {
		case strings.HasPrefix(in, "../"):
			in = in[3:]
		case strings.HasPrefix(in, "./"):
			in = in[2:]
		case strings.HasPrefix(in, "/./"):
			in = in[2:]
		case in == "/.":
			in = "/"
		case strings.HasPrefix(in, "/../"):
			in = in[3:]
			dropLast()
		case in == "/..":
			in = "/"
			dropLast()
		case in == "." || in == "..":
			in = ""
		default:
			n := strings.IndexByte(in[1:], '/')
			if n < 0 {
				out += in
				in = ""
			} else {
				out += in[:n+1]
				in = in[n+1:]
			}
		}
	}
	return out
}

type parts struct {
	scheme    string
	authority string
	path      string
	query     string
	fragment  string
}

func (u URL) parts() parts {
	return parts{
		scheme:    u.scheme,
		authority: u.authority,
		path:      u.path,
		query:     u.query,
		fragment:  u.fragment,
	}
}

func (p parts) array() [5]string {
	return [5]string{p.scheme, p.authority, p.path, p.query, p.fragment}
}

type ref struct {
	parts
	hasAuthority bool
}

// splitRef is the RFC 3986 appendix B split. It is purely syntactic: nothing
// is decoded or escaped and only the scheme is case folded.
func splitRef(raw string) ref {
	var r ref
	rest := raw

	if i := strings.IndexAny(rest, ":/?#"); i > 0 && rest[i] == ':' && validScheme(rest[:i]) {
		r.scheme = strings.ToLower(rest[:i])
		rest = rest[i+1:]
	}

	if strings.HasPrefix(rest, "//") {
		rest = rest[2:]
		r.hasAuthority = true
		i := strings.IndexAny(rest, "/?#")
		if i < 0 {
			i = len(rest)
		}
		r.authority, rest = rest[:i], rest[i:]
	}

	if i := strings.IndexByte(rest, '#'); i >= 0 {
		r.fragment, rest = rest[i+1:], rest[:i]
	}
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		r.query, rest = rest[i+1:], rest[:i]
	}
	r.path = rest
	return r
}

func validScheme(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z':
		case i > 0 && ('0' <= c && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return s != ""
}

// split breaks raw into scheme, authority, path, query and fragment. Empty
// query and fragment parts are indistinguishable from absent ones.
func split(raw string) parts {
	return splitRef(raw).parts
}

// join is the inverse of split: delimiters are only written for non-empty
// parts.
func (p parts) join() string {
	var b strings.Builder
	b.Grow(len(p.scheme) + len(p.authority) + len(p.path) + len(p.query) + len(p.fragment) + 5)

	if p.scheme != "" {
		b.WriteString(p.scheme)
		b.WriteByte(':')
	}
	b.WriteString("//")
	b.WriteString(p.authority)
	if p.path != "" && !strings.HasPrefix(p.path, "/") {
		b.WriteByte('/')
	}
	b.WriteString(p.path)
	if p.query != "" {
		b.WriteByte('?')
		b.WriteString(p.query)
	}
	if p.fragment != "" {
		b.WriteByte('#')
		b.WriteString(p.fragment)
	}
	return b.String()
}
