// Package handler 实现订阅服务的 HTTP 入口：页面、管理接口、编辑接口和订阅生成
package handler

import (
	"context"
	"html"
	"net/http"
	"strings"
	"time"

	"subaggr/internal/auth"
	"subaggr/internal/config"
	"subaggr/internal/logger"
	"subaggr/internal/notify"
	"subaggr/internal/storage"
	"subaggr/internal/subscription"
	"subaggr/internal/version"
	"subaggr/internal/web"
)

type Options struct {
	Config    config.Config
	Store     *storage.Repository
	Generator *subscription.Generator
	Notifier  *notify.Telegram
	// Disguise 用于 URL 反代伪装，nil 时使用 10s 超时的默认客户端
	Disguise *http.Client
	Now      func() time.Time
}

type App struct {
	cfg       config.Config
	store     *storage.Repository
	generator *subscription.Generator
	notifier  *notify.Telegram
	disguise  *http.Client
	converter subscription.Converter
	now       func() time.Time
}

// subSettings 是某个订阅生效的名称与优选配置（存储中的值覆盖环境变量）
type subSettings struct {
	FileName    string
	DisplayName string
	SubConfig   string
	BestIPURL   string
	CustomHosts string
}

func NewApp(opt Options) *App {
	if opt.Store == nil {
		panic("handler requires storage")
	}
	if opt.Generator == nil {
		panic("handler requires subscription generator")
	}
	if opt.Disguise == nil {
		opt.Disguise = &http.Client{Timeout: 10 * time.Second}
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	return &App{
		cfg:       opt.Config,
		store:     opt.Store,
		generator: opt.Generator,
		notifier:  opt.Notifier,
		disguise:  opt.Disguise,
		converter: subscription.ParseConverter(opt.Config.SubAPI),
		now:       opt.Now,
	}
}

func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rt := parseRoute(r)
	tokens := auth.NewTokens(a.cfg.Token, a.cfg.GuestToken, a.now())
	settings := a.loadSettings(ctx, rt.subName)

	isAdmin := tokens.IsAdmin(rt.token) || tokens.IsAdmin(rt.pathToken)
	adminPath := "/" + tokens.Admin
	onAdminPath := tokens.Admin != "" && (rt.path == adminPath || rt.path == adminPath+"/")
	onManagePath := rt.path == "/manage" || rt.path == "/manage/"

	switch {
	case r.Method == http.MethodGet && rt.wantsHTML && (rt.path == "/" || rt.path == "/index.html"):
		web.RenderHome(w, web.HomePage{Title: a.cfg.FileName, Version: version.Version, HasStore: true})
		return

	case r.Method == http.MethodGet && rt.wantsHTML && rt.subName != "" &&
		(rt.path == "/"+rt.subName || rt.path == "/"+rt.subName+"/"):
		a.renderSubPage(w, rt, settings, tokens)
		return

	case r.Method == http.MethodGet && rt.wantsHTML && isAdmin && onAdminPath:
		a.renderManagePage(w, r, rt, tokens)
		return

	case r.Method != http.MethodPost && onManagePath && isAdmin:
		http.Redirect(w, r, adminPath, http.StatusFound)
		return

	case r.Method == http.MethodPost && isAdmin && (onAdminPath || onManagePath):
		a.handleManageAPI(w, r)
		return
	}

	role := a.accessRole(rt, tokens)
	if role == auth.RoleNone {
		a.deny(w, r, rt)
		return
	}
	r = r.WithContext(auth.ContextWithRole(ctx, role))
	ctx = r.Context()

	linkKey := storage.LinkKey(rt.storeID())
	if _, err := a.store.MigrateAddressList(ctx, linkKey); err != nil {
		logger.Warn("[订阅存储] 迁移旧版链接列表失败", "request_id", RequestIDFromContext(ctx), "error", err)
	}

	if a.isEditEndpoint(rt, tokens) && ((r.Method == http.MethodGet && rt.wantsHTML) || r.Method == http.MethodPost) {
		a.notify(ctx, r, rt, notify.KindEdit+" "+settings.FileName, rt.userAgent)
		a.handleEdit(w, r, rt, settings, tokens)
		return
	}

	mainData, err := a.store.ReadLinks(ctx, rt.storeID())
	if err != nil {
		logger.Warn("[订阅存储] 读取链接失败，使用默认链接", "request_id", RequestIDFromContext(ctx), "error", err)
	}
	if mainData == "" {
		mainData = a.cfg.Link
	}

	a.serveSubscription(w, r, rt, settings, tokens, mainData)
}

// accessRole 子订阅接受 ?token 或路径中的任意有效令牌，主订阅路径中只接受管理员令牌
func (a *App) accessRole(rt route, tokens auth.Tokens) auth.Role {
	if role := tokens.Role(rt.token); role != auth.RoleNone {
		return role
	}
	if rt.subName != "" {
		return tokens.Role(rt.firstNonSubSegment())
	}
	if tokens.IsAdmin(rt.pathToken) {
		return auth.RoleAdmin
	}
	return auth.RoleNone
}

// isEditEndpoint /<token>/edit、/subN/<token>、/subN/<token>/edit，且不带查询串
func (a *App) isEditEndpoint(rt route, tokens auth.Tokens) bool {
	if rt.rawQuery != "" || !tokens.IsAdmin(rt.pathToken) {
		return false
	}
	if rt.subName != "" {
		return len(rt.segments) == 2 || (len(rt.segments) > 2 && rt.segments[2] == "edit")
	}
	return len(rt.segments) > 1 && rt.segments[1] == "edit"
}

func (a *App) loadSettings(ctx context.Context, subName string) subSettings {
	s := subSettings{
		FileName:    a.cfg.FileName,
		DisplayName: a.cfg.FileName,
		SubConfig:   a.cfg.SubConfig,
		BestIPURL:   a.cfg.BestIPURL,
		CustomHosts: a.cfg.CustomHosts,
	}

	id := storage.MainID
	if subName != "" {
		id = subName
	}
	stored, ok, err := a.store.ReadSubConfig(ctx, id)
	if err != nil {
		logger.Warn("[订阅存储] 读取订阅配置失败", "id", id, "error", err)
		return s
	}
	if !ok {
		return s
	}

	s.FileName = stored.FileName
	if s.FileName == "" {
		s.FileName = storage.FallbackFileName(id, a.cfg.FileName)
	}
	s.DisplayName = stored.DisplayName
	if s.DisplayName == "" {
		s.DisplayName = s.FileName
	}
	if stored.SubConfig != "" {
		s.SubConfig = stored.SubConfig
	}
	if stored.BestIPURL != nil {
		s.BestIPURL = *stored.BestIPURL
	}
	if stored.CustomHosts != nil {
		s.CustomHosts = *stored.CustomHosts
	}
	return s
}

// notify 推送事件，UA、入口放在 spoiler 中；所有值都做 HTML 转义
func (a *App) notify(ctx context.Context, r *http.Request, rt route, kind, ua string) {
	if !a.notifier.Enabled() {
		return
	}
	extra := "UA: <tg-spoiler>" + html.EscapeString(ua) + "</tg-spoiler>\n" +
		"域名: " + html.EscapeString(rt.hostname()) + "\n" +
		"入口: <tg-spoiler>" + html.EscapeString(rt.entry()) + "</tg-spoiler>"
	a.notifier.Send(ctx, html.EscapeString(kind), html.EscapeString(getClientIP(r)), extra)
}

// redact 日志中隐藏路径里的管理员令牌
func (a *App) redact(path string) string {
	if a.cfg.Token == "" {
		return path
	}
	return strings.ReplaceAll(path, a.cfg.Token, "***")
}
