package handler

import (
	"io"
	"net/http"
	"net/url"
	"strings"

	"subaggr/internal/auth"
	"subaggr/internal/logger"
	"subaggr/internal/web"
)

const maxLinksBody = 4 << 20

// handleEdit 编辑接口：GET 渲染编辑页，POST JSON 保存名称或优选配置，POST 文本保存链接
func (a *App) handleEdit(w http.ResponseWriter, r *http.Request, rt route, settings subSettings, tokens auth.Tokens) {
	ctx := r.Context()
	id := rt.storeID()

	if r.Method == http.MethodPost {
		if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
			a.handleEditJSON(w, r, id)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxLinksBody))
		if err != nil {
			writeText(w, http.StatusInternalServerError, "保存失败: "+err.Error())
			return
		}
		if err := a.store.SaveLinks(ctx, id, string(body)); err != nil {
			writeText(w, http.StatusInternalServerError, "保存失败: "+err.Error())
			return
		}
		logger.Info("[订阅编辑] 保存链接", "request_id", RequestIDFromContext(ctx), "id", id, "bytes", len(body))
		writeText(w, http.StatusOK, "链接保存成功")
		return
	}

	content, err := a.store.ReadLinks(ctx, id)
	if err != nil {
		content = "读取数据失败: " + err.Error()
	}

	prefix := rt.subPrefix()
	publicSubPath := "/"
	if rt.subName != "" {
		publicSubPath = prefix
	}
	base := rt.origin + prefix

	web.RenderEdit(w, web.EditPage{
		SubName:       rt.subName,
		DisplayName:   settings.DisplayName,
		FileName:      settings.FileName,
		Content:       content,
		GuestToken:    tokens.Guest,
		Converter:     a.converter.Protocol + "://" + a.converter.Host,
		SubConfig:     settings.SubConfig,
		BestIPURL:     settings.BestIPURL,
		CustomHosts:   settings.CustomHosts,
		ManagePath:    "/" + tokens.Admin,
		PublicSubPath: publicSubPath,
		AdminLinks:    web.SubscriptionLinks(base+"/"+tokens.Admin, false),
		GuestLinks:    web.SubscriptionLinks(base+"/sub?token="+url.QueryEscape(tokens.Guest), false),
	})
}

func (a *App) handleEditJSON(w http.ResponseWriter, r *http.Request, id string) {
	ctx := r.Context()

	payload, err := readPayload(r)
	if err != nil {
		writeText(w, http.StatusBadRequest, "解析失败: "+err.Error())
		return
	}

	switch stringOrEmpty(payload, "action") {
	case "saveMeta":
		if err := a.store.SaveSubMeta(ctx, id, stringOrEmpty(payload, "displayName"), stringOrEmpty(payload, "FileName")); err != nil {
			writeText(w, http.StatusBadRequest, "解析失败: "+err.Error())
			return
		}
		writeText(w, http.StatusOK, "名称保存成功")

	case "saveSubConfig":
		var bestIPURL, customHosts *string
		if v, ok := stringField(payload, "bestIPUrl"); ok {
			bestIPURL = &v
		}
		if v, ok := stringField(payload, "customHosts"); ok {
			customHosts = &v
		}
		if err := a.store.SaveSubConfig(ctx, id, bestIPURL, customHosts); err != nil {
			writeText(w, http.StatusBadRequest, "解析失败: "+err.Error())
			return
		}
		writeText(w, http.StatusOK, "优选配置保存成功")

	default:
		writeText(w, http.StatusBadRequest, "未知操作")
	}
}
