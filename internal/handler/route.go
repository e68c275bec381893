package handler

import (
	"net/http"
	"regexp"
	"strings"
)

var subNamePattern = regexp.MustCompile(`^/(sub\d+)(/|$)`)

// route 是从请求中解析出的路由信息
type route struct {
	path      string
	rawQuery  string
	segments  []string
	subName   string // sub1、sub2 ...，主订阅为空
	pathToken string // 子订阅取第二段，主订阅取第一段
	token     string // ?token=

	userAgent string // 原始 User-Agent
	uaLower   string // 小写，缺失时为 "null"
	wantsHTML bool

	origin string
	host   string
}

func parseRoute(r *http.Request) route {
	rt := route{
		path:      r.URL.Path,
		rawQuery:  r.URL.RawQuery,
		token:     r.URL.Query().Get("token"),
		userAgent: r.Header.Get("User-Agent"),
		host:      r.Host,
	}
	if rt.path == "" {
		rt.path = "/"
	}

	rt.uaLower = "null"
	if rt.userAgent != "" {
		rt.uaLower = strings.ToLower(rt.userAgent)
	}
	rt.wantsHTML = strings.Contains(r.Header.Get("Accept"), "text/html") || strings.Contains(rt.uaLower, "mozilla")

	for _, seg := range strings.Split(rt.path, "/") {
		if seg != "" {
			rt.segments = append(rt.segments, seg)
		}
	}

	if m := subNamePattern.FindStringSubmatch(rt.path); m != nil {
		rt.subName = m[1]
	}
	idx := 0
	if rt.subName != "" {
		idx = 1
	}
	if len(rt.segments) > idx {
		rt.pathToken = rt.segments[idx]
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
	}
	rt.origin = scheme + "://" + r.Host

	return rt
}

// hostname 去掉端口的主机名
func (rt route) hostname() string {
	host := rt.host
	if strings.HasPrefix(host, "[") {
		if end := strings.Index(host, "]"); end > 0 {
			return host[1:end]
		}
	}
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		return host[:idx]
	}
	return host
}

// entry 是用于通知的路径与查询串
func (rt route) entry() string {
	if rt.rawQuery == "" {
		return rt.path
	}
	return rt.path + "?" + rt.rawQuery
}

// subPrefix 子订阅路径前缀，主订阅为空
func (rt route) subPrefix() string {
	if rt.subName == "" {
		return ""
	}
	return "/" + rt.subName
}

// firstNonSubSegment 子订阅路径中第一个不等于订阅名的段
func (rt route) firstNonSubSegment() string {
	for _, seg := range rt.segments {
		if seg != rt.subName {
			return seg
		}
	}
	return ""
}

func (rt route) storeID() string {
	if rt.subName == "" {
		return "main"
	}
	return rt.subName
}
