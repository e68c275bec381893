// Package rewrite relocates the connection endpoint of a proxy URI onto a
// preferred ("best") IP while keeping the original host as a side parameter.
//
// Rewrite never fails: every scheme handler reports malformed input as an
// error and the error is collapsed to the unmodified URI.
package rewrite

import (
	"errors"
	"strconv"
	"strings"

	"subaggr/internal/logger"
)

// Scheme identifies the URI encoding family of a proxy line.
type Scheme int

const (
	Unknown Scheme = iota
	Vmess
	VlessTrojan
	Shadowsocks
	ShadowsocksR
	Hysteria2
)

var (
	errMalformed = errors.New("malformed proxy uri")
	errNoHost    = errors.New("proxy uri has no host")
	errTooShort  = errors.New("ssr record has fewer than 6 fields")
)

func (s Scheme) String() string {
	switch s {
	case Vmess:
		return "vmess"
	case VlessTrojan:
		return "vless/trojan"
	case Shadowsocks:
		return "ss"
	case ShadowsocksR:
		return "ssr"
	case Hysteria2:
		return "hysteria2"
	default:
		return "unknown"
	}
}

// Detect classifies uri strictly by its scheme prefix.
func Detect(uri string) Scheme {
	switch {
	case strings.HasPrefix(uri, "vmess://"):
		return Vmess
	case strings.HasPrefix(uri, "vless://"), strings.HasPrefix(uri, "trojan://"):
		return VlessTrojan
	case strings.HasPrefix(uri, "ss://"):
		return Shadowsocks
	case strings.HasPrefix(uri, "ssr://"):
		return ShadowsocksR
	case strings.HasPrefix(uri, "hysteria2://"), strings.HasPrefix(uri, "hy2://"):
		return Hysteria2
	default:
		return Unknown
	}
}

// Rewrite returns a copy of uri whose endpoint points at host. index is the
// 0-based position of host in the best-IP list; index+1 is appended to the
// display name so that copies of one line stay distinguishable.
func Rewrite(uri, host string, index int) string {
	var (
		out    string
		err    error
		scheme = Detect(uri)
	)

	switch scheme {
	case Vmess:
		out, err = rewriteVmess(uri, host, index)
	case VlessTrojan:
		out, err = rewriteURL(uri, host, index, "host")
	case Shadowsocks:
		out, err = rewriteSS(uri, host, index)
	case ShadowsocksR:
		out, err = rewriteSSR(uri, host)
	case Hysteria2:
		out, err = rewriteURL(uri, host, index, "sni")
	default:
		return uri
	}

	if err != nil {
		logger.Debug("[优选替换] 节点替换失败，保留原始节点", "scheme", scheme.String(), "error", err)
		return uri
	}
	return out
}

func suffix(index int) string {
	return "_" + strconv.Itoa(index+1)
}
