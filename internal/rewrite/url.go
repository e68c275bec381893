package rewrite

import (
	"fmt"
	"net/url"
	"strings"

	"subaggr/internal/hostlist"
	"subaggr/internal/util"
)

// endpoint is a hierarchical proxy URI split into its raw parts, so that
// everything except the host and fragment can be written back unchanged.
type endpoint struct {
	scheme   string
	userinfo string
	hasUser  bool
	hostname string
	port     string
	path     string
	rawQuery string
	fragment string
}

func parseEndpoint(uri string) (*endpoint, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, err
	}
	prefix := u.Scheme + "://"
	if u.Scheme == "" || !strings.HasPrefix(strings.ToLower(uri), strings.ToLower(prefix)) {
		return nil, errMalformed
	}
	if u.Hostname() == "" {
		return nil, errNoHost
	}

	ep := &endpoint{
		scheme:   uri[:len(u.Scheme)],
		hostname: u.Hostname(),
		port:     u.Port(),
		fragment: u.Fragment,
	}

	rest := uri[len(prefix):]
	if i := strings.IndexByte(rest, '#'); i >= 0 {
		rest = rest[:i]
	}
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		ep.rawQuery = rest[i+1:]
		rest = rest[:i]
	}
	authority := rest
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		authority = rest[:i]
		ep.path = rest[i:]
	}
	if i := strings.LastIndexByte(authority, '@'); i >= 0 {
		ep.userinfo = authority[:i]
		ep.hasUser = true
	}

	return ep, nil
}

func (e *endpoint) hasParam(name string) bool {
	if e.rawQuery == "" {
		return false
	}
	for _, pair := range strings.Split(e.rawQuery, "&") {
		key, _, _ := strings.Cut(pair, "=")
		if decoded, err := url.QueryUnescape(key); err == nil {
			key = decoded
		}
		if key == name {
			return true
		}
	}
	return false
}

func (e *endpoint) addParam(name, value string) {
	param := url.QueryEscape(name) + "=" + url.QueryEscape(value)
	if e.rawQuery == "" {
		e.rawQuery = param
		return
	}
	e.rawQuery += "&" + param
}

func (e *endpoint) String() string {
	var b strings.Builder
	b.WriteString(e.scheme)
	b.WriteString("://")
	if e.hasUser {
		b.WriteString(e.userinfo)
		b.WriteByte('@')
	}
	b.WriteString(hostlist.FormatForURL(e.hostname))
	if e.port != "" {
		b.WriteByte(':')
		b.WriteString(e.port)
	}
	b.WriteString(e.path)
	if e.rawQuery != "" {
		b.WriteByte('?')
		b.WriteString(e.rawQuery)
	}
	b.WriteByte('#')
	b.WriteString(util.EncodeURIComponent(e.fragment))
	return b.String()
}

// rewriteURL handles vless, trojan and hysteria2: the original hostname is
// kept in the keepParam query parameter unless one is already present.
func rewriteURL(uri, host string, index int, keepParam string) (string, error) {
	ep, err := parseEndpoint(uri)
	if err != nil {
		return "", fmt.Errorf("parse %s uri: %w", Detect(uri), err)
	}

	if !ep.hasParam(keepParam) {
		ep.addParam(keepParam, ep.hostname)
	}
	ep.hostname = hostlist.StripBrackets(host)
	ep.fragment += suffix(index)

	return ep.String(), nil
}
