package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"subaggr/internal/auth"
	"subaggr/internal/logger"
	"subaggr/internal/storage"
	"subaggr/internal/web"
)

const maxJSONBody = 1 << 20

// readPayload 读取 JSON 对象请求体
func readPayload(r *http.Request) (map[string]any, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, errors.New("请求体不是 JSON 对象")
	}
	return payload, nil
}

// stringField 字段是字符串时返回其值
func stringField(payload map[string]any, key string) (string, bool) {
	s, ok := payload[key].(string)
	return s, ok
}

// stringOrEmpty 非字符串字段视为空串
func stringOrEmpty(payload map[string]any, key string) string {
	s, _ := stringField(payload, key)
	return s
}

// handleManageAPI 管理页 JSON 接口：list、saveMeta、deleteSub
func (a *App) handleManageAPI(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payload, err := readPayload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "请求体不是有效 JSON")
		return
	}

	switch action := stringOrEmpty(payload, "action"); action {
	case "list":
		ids, err := a.store.ListSubs(ctx)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		main, err := a.store.ReadSubMeta(ctx, storage.MainID, a.cfg.FileName)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		subs, err := a.store.HydrateSubsMeta(ctx, ids, a.cfg.FileName)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"ok": true, "main": main, "subs": subs})

	case "saveMeta":
		id := stringOrEmpty(payload, "id")
		displayName := stringOrEmpty(payload, "displayName")
		fileName := stringOrEmpty(payload, "FileName")
		if err := a.store.UpsertSubMeta(ctx, id, &displayName, &fileName, a.cfg.FileName); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Info("[订阅管理] 保存订阅名称", "request_id", RequestIDFromContext(ctx), "id", id)
		respondJSON(w, http.StatusOK, map[string]any{"ok": true})

	case "deleteSub":
		id := stringOrEmpty(payload, "id")
		if err := a.store.DeleteSub(ctx, id); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Info("[订阅管理] 删除订阅", "request_id", RequestIDFromContext(ctx), "id", id)
		respondJSON(w, http.StatusOK, map[string]any{"ok": true})

	default:
		writeError(w, http.StatusBadRequest, "未知 action")
	}
}

func (a *App) renderManagePage(w http.ResponseWriter, r *http.Request, rt route, tokens auth.Tokens) {
	ctx := r.Context()

	ids, err := a.store.ListSubs(ctx)
	if err != nil {
		logger.Warn("[订阅管理] 读取订阅列表失败", "error", err)
	}
	if ids == nil {
		ids = []string{}
	}
	main, err := a.store.ReadSubMeta(ctx, storage.MainID, a.cfg.FileName)
	if err != nil {
		logger.Warn("[订阅管理] 读取主订阅失败", "error", err)
		main = storage.SubMeta{ID: storage.MainID, DisplayName: a.cfg.FileName, FileName: a.cfg.FileName}
	}
	subs, err := a.store.HydrateSubsMeta(ctx, ids, a.cfg.FileName)
	if err != nil {
		logger.Warn("[订阅管理] 读取订阅名称失败", "error", err)
	}

	adminPath := "/" + tokens.Admin
	adminQ := url.QueryEscape(tokens.Admin)
	guestQ := url.QueryEscape(tokens.Guest)

	entries := make([]web.ManageEntry, 0, len(subs)+1)
	entries = append(entries, web.ManageEntry{
		ID:          storage.MainID,
		IsMain:      true,
		DisplayName: main.DisplayName,
		FileName:    main.FileName,
		ViewPath:    "/",
		EditPath:    adminPath + "/edit",
		AdminURL:    rt.origin + "/sub?token=" + adminQ,
		GuestURL:    guestURL(rt.origin+"/sub", guestQ),
	})
	for _, s := range subs {
		entries = append(entries, web.ManageEntry{
			ID:          s.ID,
			DisplayName: s.DisplayName,
			FileName:    s.FileName,
			ViewPath:    "/" + s.ID,
			EditPath:    "/" + s.ID + adminPath,
			AdminURL:    rt.origin + "/" + s.ID + "/sub?token=" + adminQ,
			GuestURL:    guestURL(rt.origin+"/"+s.ID+"/sub", guestQ),
		})
	}

	web.RenderManage(w, web.ManagePage{
		Title:     a.cfg.FileName,
		Hostname:  rt.hostname(),
		HasStore:  true,
		AdminPath: adminPath,
		SubIDs:    ids,
		Subs:      entries,
	})
}

func guestURL(base, guestQ string) string {
	if guestQ == "" {
		return ""
	}
	return base + "?token=" + guestQ
}

func (a *App) renderSubPage(w http.ResponseWriter, rt route, settings subSettings, tokens auth.Tokens) {
	name := settings.DisplayName
	if name == "" {
		name = settings.FileName
	}
	base := rt.origin + "/" + rt.subName + "/sub?token=" + url.QueryEscape(tokens.Guest)
	web.RenderSub(w, web.SubPage{
		SubID:       rt.subName,
		DisplayName: name,
		Hostname:    rt.hostname(),
		Links:       web.SubscriptionLinks(base, true),
	})
}
