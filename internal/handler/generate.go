package handler

import (
	"net/http"
	"strconv"

	"github.com/samber/lo"

	"subaggr/internal/aggregate"
	"subaggr/internal/auth"
	"subaggr/internal/logger"
	"subaggr/internal/notify"
	"subaggr/internal/subscription"
)

// serveSubscription 汇总节点并按客户端格式返回订阅，始终返回 200
func (a *App) serveSubscription(w http.ResponseWriter, r *http.Request, rt route, settings subSettings, tokens auth.Tokens, mainData string) {
	ctx := r.Context()
	query := r.URL.Query()

	a.notify(ctx, r, rt, notify.KindFetch+" "+settings.FileName, rt.userAgent)

	callback := rt.origin + rt.subPrefix() + "/" + auth.MD5MD5(tokens.Fake) + "?token=" + tokens.Fake

	req := subscription.Request{
		MainText:       mainData,
		SourceURLs:     lo.Compact(aggregate.Split(a.cfg.LinkSub)),
		BestIPURL:      settings.BestIPURL,
		CustomHosts:    settings.CustomHosts,
		Format:         subscription.DetectFormat(rt.userAgent, query),
		ForceBase64:    rt.token != "" && rt.token == tokens.Fake,
		AppendUA:       subscription.AppendUA(query),
		UserAgent:      rt.userAgent,
		CallbackURL:    callback,
		WarpURLs:       lo.Compact(aggregate.Split(a.cfg.Warp)),
		Converter:      a.converter,
		ConfigURL:      settings.SubConfig,
		FileName:       settings.FileName,
		UpdateInterval: a.cfg.UpdateInterval,
	}

	resp := a.generator.Generate(ctx, req)

	logger.Info("[订阅生成] 下发订阅",
		"request_id", RequestIDFromContext(ctx),
		"path", a.redact(rt.path),
		"role", auth.RoleFromContext(ctx).String(),
		"format", resp.Format.String(),
		"converted", resp.Converted,
		"nodes", resp.Nodes,
	)

	for k, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.Body)))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write([]byte(resp.Body))
	}
}
