package handler

import (
	"io"
	"net/http"
	"net/url"

	"subaggr/internal/logger"
	"subaggr/internal/notify"
	"subaggr/internal/web"
)

// 反代伪装时不转发的逐跳响应头
var hopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

// deny 未授权访问：可选告警，然后按 URL302 跳转、URL 反代或 nginx 欢迎页伪装
func (a *App) deny(w http.ResponseWriter, r *http.Request, rt route) {
	ctx := r.Context()
	logger.Info("[访问控制] 未授权访问",
		"request_id", RequestIDFromContext(ctx),
		"ip", getClientIP(r),
		"path", a.redact(rt.path),
	)

	if a.cfg.AlertsEnabled() && rt.path != "/" && rt.path != "/favicon.ico" {
		a.notify(ctx, r, rt, notify.KindAbnormalAccess+" "+a.cfg.FileName, rt.uaLower)
	}

	switch {
	case a.cfg.URL302 != "":
		http.Redirect(w, r, a.cfg.URL302, http.StatusFound)
	case a.cfg.URL != "":
		a.proxyDisguise(w, r)
	default:
		web.Nginx(w)
	}
}

// proxyDisguise 把请求路径和查询串拼到 URL 上，原样返回目标站点的响应
func (a *App) proxyDisguise(w http.ResponseWriter, r *http.Request) {
	target, err := url.Parse(a.cfg.URL)
	if err != nil {
		writeText(w, http.StatusBadGateway, "Proxy Error: "+err.Error())
		return
	}
	target.Path = r.URL.Path
	target.RawPath = r.URL.RawPath
	target.RawQuery = r.URL.RawQuery

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		writeText(w, http.StatusBadGateway, "Proxy Error: "+err.Error())
		return
	}

	resp, err := a.disguise.Do(req)
	if err != nil {
		writeText(w, http.StatusBadGateway, "Proxy Error: "+err.Error())
		return
	}
	defer resp.Body.Close()

	for k, values := range resp.Header {
		if _, skip := hopHeaders[k]; skip {
			continue
		}
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}
