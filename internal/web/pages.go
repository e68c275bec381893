// Package web 渲染内置的 HTML 页面
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"sync"
)

//go:embed templates/*.html
var embeddedFiles embed.FS

var (
	initOnce   sync.Once
	pages      map[string]*template.Template
	nginxBytes []byte
)

const (
	pageHome   = "home.html"
	pageSub    = "sub.html"
	pageManage = "manage.html"
	pageEdit   = "edit.html"
)

func initialize() {
	sub, err := fs.Sub(embeddedFiles, "templates")
	if err != nil {
		panic(err)
	}

	pages = make(map[string]*template.Template)
	for _, name := range []string{pageHome, pageSub, pageManage, pageEdit} {
		pages[name] = template.Must(template.New(name).ParseFS(sub, "styles.html", name))
	}

	nginxBytes, err = fs.ReadFile(sub, "nginx.html")
	if err != nil {
		panic(err)
	}
}

// Link 是页面上展示的一条订阅地址
type Link struct {
	Label string
	URL   string
}

type HomePage struct {
	Title    string
	Version  string
	HasStore bool
}

type SubPage struct {
	SubID       string
	DisplayName string
	Hostname    string
	Links       []Link
}

// ManageEntry 是管理页上的一张订阅卡片
type ManageEntry struct {
	ID          string
	IsMain      bool
	DisplayName string
	FileName    string
	ViewPath    string
	EditPath    string
	AdminURL    string
	GuestURL    string
}

type ManagePage struct {
	Title     string
	Hostname  string
	HasStore  bool
	AdminPath string // "/<token>"
	SubIDs    []string
	Subs      []ManageEntry
}

type EditPage struct {
	SubName       string
	DisplayName   string
	FileName      string
	Content       string
	GuestToken    string
	Converter     string
	SubConfig     string
	BestIPURL     string
	CustomHosts   string
	ManagePath    string
	PublicSubPath string
	AdminLinks    []Link
	GuestLinks    []Link
}

// SubscriptionLinks 生成 base 对应的各客户端订阅地址。
// base 已带查询串时以 & 连接参数，否则以 ? 连接。
func SubscriptionLinks(base string, withQuanX bool) []Link {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	links := []Link{
		{Label: "通用", URL: base},
		{Label: "Base64", URL: base + sep + "b64"},
		{Label: "Clash", URL: base + sep + "clash"},
		{Label: "Sing-box", URL: base + sep + "sb"},
		{Label: "Surge", URL: base + sep + "surge"},
	}
	if withQuanX {
		links = append(links, Link{Label: "QuanX", URL: base + sep + "quanx"})
	}
	return append(links, Link{Label: "Loon", URL: base + sep + "loon"})
}

func RenderHome(w http.ResponseWriter, data HomePage) {
	render(w, pageHome, data)
}

func RenderSub(w http.ResponseWriter, data SubPage) {
	render(w, pageSub, data)
}

func RenderManage(w http.ResponseWriter, data ManagePage) {
	render(w, pageManage, data)
}

func RenderEdit(w http.ResponseWriter, data EditPage) {
	render(w, pageEdit, data)
}

// Nginx 返回伪装用的 nginx 欢迎页
func Nginx(w http.ResponseWriter) {
	initOnce.Do(initialize)
	setHTMLHeaders(w)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(nginxBytes)
}

func render(w http.ResponseWriter, name string, data any) {
	initOnce.Do(initialize)

	var buf bytes.Buffer
	if err := pages[name].ExecuteTemplate(&buf, name, data); err != nil {
		http.Error(w, fmt.Sprintf("render %s: %v", name, err), http.StatusInternalServerError)
		return
	}

	setHTMLHeaders(w)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func setHTMLHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=UTF-8")
	w.Header().Set("Cache-Control", "no-store")
}
