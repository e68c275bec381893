package subscription

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"subaggr/internal/fetch"
)

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		ua    string
		query string
		want  Format
	}{
		{"", "", Base64},
		{"v2rayN/6.0", "", Base64},
		{"ClashMeta/1.18", "", Clash},
		{"clash.meta", "clash", Clash},
		{"NekoBox/1.0 clash", "", Base64},
		{"subconverter/0.9", "clash", Base64},
		{"SFA/1.9 (sing-box 1.9)", "", SingBox},
		{"Mozilla/5.0", "sb", SingBox},
		{"Mozilla/5.0", "singbox", SingBox},
		{"Surge iOS/2000", "", Surge},
		{"Quantumult%20X/1.4", "", QuanX},
		{"Mozilla/5.0", "quanx", QuanX},
		{"Loon/3.0", "", Loon},
		{"curl/8.0", "loon", Loon},
		{"curl/8.0", "clash&loon", Clash},
		{"curl/8.0", "b64", Base64},
	}
	for _, tt := range cases {
		q, _ := url.ParseQuery(tt.query)
		if got := DetectFormat(tt.ua, q); got != tt.want {
			t.Errorf("DetectFormat(%q, %q)=%v, want=%v", tt.ua, tt.query, got, tt.want)
		}
	}
}

func TestAppendUA(t *testing.T) {
	cases := map[string]string{
		"":           "v2rayn",
		"b64":        "v2rayn",
		"sb":         "v2rayn",
		"clash":      "clash",
		"singbox":    "singbox",
		"surge":      "surge",
		"quanx":      "Quantumult%20X",
		"loon":       "Loon",
		"loon&clash": "clash",
	}
	for query, want := range cases {
		q, _ := url.ParseQuery(query)
		if got := AppendUA(q); got != want {
			t.Errorf("AppendUA(%q)=%q, want=%q", query, got, want)
		}
	}
}

func TestParseConverter(t *testing.T) {
	cases := []struct {
		in   string
		want Converter
	}{
		{"SUBAPI.fxxk.dedyn.io", Converter{Protocol: "https", Host: "SUBAPI.fxxk.dedyn.io"}},
		{"https://api.example.com", Converter{Protocol: "https", Host: "api.example.com"}},
		{"http://127.0.0.1:25500", Converter{Protocol: "http", Host: "127.0.0.1:25500"}},
	}
	for _, tt := range cases {
		if got := ParseConverter(tt.in); got != tt.want {
			t.Errorf("ParseConverter(%q)=%+v, want=%+v", tt.in, got, tt.want)
		}
	}
}

func TestConverterURL(t *testing.T) {
	c := Converter{Protocol: "https", Host: "sub.example.com"}
	const (
		callback = "https://a.b/x?token=t"
		config   = "https://c/d.ini"
		prefix   = "https://sub.example.com/sub?target="
		common   = "&url=https%3A%2F%2Fa.b%2Fx%3Ftoken%3Dt&insert=false&config=https%3A%2F%2Fc%2Fd.ini&emoji=true&list=false&tfo=false&scv=true&fdn=false&sort=false"
	)

	cases := map[Format]string{
		Clash:   prefix + "clash" + common + "&new_name=true",
		SingBox: prefix + "singbox" + common + "&new_name=true",
		Surge:   prefix + "surge&ver=4" + common + "&new_name=true",
		QuanX:   prefix + "quanx" + common + "&udp=true",
		Loon:    prefix + "loon" + common,
	}
	for f, want := range cases {
		got, ok := ConverterURL(f, c, callback, config)
		if !ok || got != want {
			t.Errorf("ConverterURL(%v)=%q,%v\nwant %q", f, got, ok, want)
		}
	}

	if _, ok := ConverterURL(Base64, c, callback, config); ok {
		t.Fatalf("base64 should not build a converter url")
	}
}

func TestClashFix(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "after marker",
			in:   "proxies:\n  - {name: a, server: 1.2.3.4}",
			want: "proxies:\n  - {name: a,server: 1.2.3.4}",
		},
		{
			name: "before marker untouched",
			in:   "x: {k: v, server: keep}\nproxies:\n  - {name: a, server: 1.2.3.4}\nproxy-groups:\n  - {name: g, proxies: [a]}",
			want: "x: {k: v, server: keep}\nproxies:\n  - {name: a,server: 1.2.3.4}\nproxy-groups:\n  - {name: g, proxies: [a]}",
		},
		{
			name: "no marker",
			in:   "{name: a, server: 1.2.3.4}",
			want: "{name: a, server: 1.2.3.4}",
		},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClashFix(tt.in); got != tt.want {
				t.Fatalf("ClashFix()=%q, want=%q", got, tt.want)
			}
		})
	}
}

func TestEncode(t *testing.T) {
	text := "vless://a@h:1#香港"
	decoded, err := base64.StdEncoding.DecodeString(Encode(text))
	if err != nil || string(decoded) != text {
		t.Fatalf("round trip failed: %q, %v", decoded, err)
	}
}

type upstream struct {
	srv *httptest.Server

	mu          sync.Mutex
	converterQ    url.Values
	converterOK   bool
	converterBody string
	sourceUA      string
}

func newUpstream(t *testing.T, converterOK bool) *upstream {
	t.Helper()
	u := &upstream{
		converterOK:   converterOK,
		converterBody: "proxies:\n  - {name: a, server: 1.2.3.4, type: vless}\n",
	}
	u.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/bad":
			w.WriteHeader(http.StatusInternalServerError)
		case "/good":
			u.mu.Lock()
			u.sourceUA = r.Header.Get("User-Agent")
			u.mu.Unlock()
			body := "trojan://pw@remote.example.com:443#remote\nvless://id@self.example.com:443?type=ws#self"
			_, _ = w.Write([]byte(base64.StdEncoding.EncodeToString([]byte(body))))
		case "/bestip":
			_, _ = w.Write([]byte("1.2.3.4\n5.6.7.8\n"))
		case "/sub":
			u.mu.Lock()
			u.converterQ = r.URL.Query()
			body := u.converterBody
			u.mu.Unlock()
			if !u.converterOK {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_, _ = w.Write([]byte(body))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(u.srv.Close)
	return u
}

func (u *upstream) request(format Format) Request {
	host := strings.TrimPrefix(u.srv.URL, "http://")
	return Request{
		MainText:       "vless://id@self.example.com:443?type=ws#self|true\n" + u.srv.URL + "/bad\n" + u.srv.URL + "/good",
		BestIPURL:      u.srv.URL + "/bestip",
		CustomHosts:    "5.6.7.8, 9.9.9.9",
		Format:         format,
		AppendUA:       "clash",
		UserAgent:      "ClashMeta/1.18",
		CallbackURL:    "https://agg.example.com/sub1/hash?token=fake",
		WarpURLs:       []string{"https://warp.example.com/w"},
		Converter:      Converter{Protocol: "http", Host: host},
		ConfigURL:      "https://example.com/rules.ini",
		FileName:       "订阅",
		UpdateInterval: 6,
	}
}

func newTestGenerator() *Generator {
	return NewGenerator(fetch.NewClient(fetch.Options{}), fetch.NewClient(fetch.Options{}))
}

func decodeLines(t *testing.T, body string) []string {
	t.Helper()
	data, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		t.Fatalf("body is not base64: %v", err)
	}
	return strings.Split(string(data), "\n")
}

func TestGenerateBase64(t *testing.T) {
	up := newUpstream(t, true)
	resp := newTestGenerator().Generate(context.Background(), up.request(Base64))

	if resp.Converted || resp.Format != Base64 {
		t.Fatalf("expected base64 response, got %+v", resp)
	}
	if resp.Header.Get("Content-Type") != "text/plain; charset=utf-8" || resp.Header.Get("Profile-Update-Interval") != "6" {
		t.Fatalf("headers=%v", resp.Header)
	}
	if resp.Header.Get("Content-Disposition") != "" {
		t.Fatalf("base64 response must not be an attachment")
	}

	want := []string{
		"vless://id@1.2.3.4:443?type=ws&host=self.example.com#self_1",
		"vless://id@5.6.7.8:443?type=ws&host=self.example.com#self_2",
		"vless://id@9.9.9.9:443?type=ws&host=self.example.com#self_3",
		"trojan://pw@remote.example.com:443#remote",
		"vless://id@self.example.com:443?type=ws#self",
	}
	got := decodeLines(t, resp.Body)
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Fatalf("lines=\n%s\nwant=\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
	if resp.Nodes != len(want) {
		t.Fatalf("nodes=%d", resp.Nodes)
	}

	up.mu.Lock()
	defer up.mu.Unlock()
	if !strings.HasPrefix(up.sourceUA, "clash subaggr/") || !strings.HasSuffix(up.sourceUA, " ClashMeta/1.18") {
		t.Fatalf("source user-agent=%q", up.sourceUA)
	}
	if up.converterQ != nil {
		t.Fatalf("converter must not be called for base64")
	}
}

func TestGenerateClashThroughConverter(t *testing.T) {
	up := newUpstream(t, true)
	resp := newTestGenerator().Generate(context.Background(), up.request(Clash))

	if !resp.Converted || resp.Format != Clash {
		t.Fatalf("expected converted clash response, got %+v", resp)
	}
	if resp.Body != "proxies:\n  - {name: a,server: 1.2.3.4, type: vless}\n" {
		t.Fatalf("body=%q", resp.Body)
	}
	if got := resp.Header.Get("Content-Disposition"); got != "attachment; filename*=utf-8''%E8%AE%A2%E9%98%85" {
		t.Fatalf("content-disposition=%q", got)
	}

	up.mu.Lock()
	defer up.mu.Unlock()
	wantCallback := "https://agg.example.com/sub1/hash?token=fake|" + up.srv.URL + "/good|https://warp.example.com/w"
	if got := up.converterQ.Get("url"); got != wantCallback {
		t.Fatalf("callback=%q, want=%q", got, wantCallback)
	}
	if up.converterQ.Get("target") != "clash" || up.converterQ.Get("config") != "https://example.com/rules.ini" || up.converterQ.Get("new_name") != "true" {
		t.Fatalf("converter query=%v", up.converterQ)
	}
}

func TestGenerateConverterFailureFallsBack(t *testing.T) {
	up := newUpstream(t, false)
	resp := newTestGenerator().Generate(context.Background(), up.request(Surge))

	if resp.Converted || resp.Format != Base64 {
		t.Fatalf("expected fallback, got %+v", resp)
	}
	if resp.Header.Get("Content-Disposition") != "" {
		t.Fatalf("fallback must not be an attachment")
	}
	if lines := decodeLines(t, resp.Body); len(lines) != 5 {
		t.Fatalf("lines=%q", lines)
	}
}

func TestGenerateClashWithoutProxiesFallsBack(t *testing.T) {
	for _, body := range []string{"proxies: []\n", "port: 7890\nproxy-groups: []\n"} {
		up := newUpstream(t, true)
		up.converterBody = body
		resp := newTestGenerator().Generate(context.Background(), up.request(Clash))

		if resp.Converted || resp.Format != Base64 {
			t.Fatalf("converter body %q: expected base64 fallback, got %+v", body, resp)
		}
		if resp.Header.Get("Content-Disposition") != "" {
			t.Fatalf("fallback must not be an attachment")
		}
		if lines := decodeLines(t, resp.Body); len(lines) != 5 {
			t.Fatalf("lines=%q", lines)
		}
	}
}

func TestGenerateForceBase64(t *testing.T) {
	up := newUpstream(t, true)
	req := up.request(Clash)
	req.ForceBase64 = true
	resp := newTestGenerator().Generate(context.Background(), req)

	if resp.Converted {
		t.Fatalf("expected base64 when forced")
	}
	up.mu.Lock()
	defer up.mu.Unlock()
	if up.converterQ != nil {
		t.Fatalf("converter must not be called when base64 is forced")
	}
}

func TestGenerateEmptyInput(t *testing.T) {
	resp := newTestGenerator().Generate(context.Background(), Request{Format: Base64, UpdateInterval: 6})
	if resp.Body != "" || resp.Nodes != 0 {
		t.Fatalf("unexpected response %+v", resp)
	}
}
