package subscription

import (
	"strings"

	"subaggr/internal/util"
)

// Converter 是第三方订阅转换服务的地址
type Converter struct {
	Protocol string // http 或 https
	Host     string
}

// ParseConverter 解析 SUBAPI 配置：带 http:// 前缀时使用 http，其余情况一律 https
func ParseConverter(subAPI string) Converter {
	host := subAPI
	if _, after, ok := strings.Cut(subAPI, "//"); ok {
		host = after
	}
	protocol := "https"
	if strings.Contains(subAPI, "http://") {
		protocol = "http"
	}
	return Converter{Protocol: protocol, Host: host}
}

// ConverterURL 构造订阅转换请求地址。Base64 不需要转换，返回 false。
func ConverterURL(f Format, c Converter, callbackURL, configURL string) (string, bool) {
	target := util.EncodeURIComponent(callbackURL)
	config := util.EncodeURIComponent(configURL)

	var b strings.Builder
	b.WriteString(c.Protocol + "://" + c.Host + "/sub?target=" + f.String())
	if f == Surge {
		b.WriteString("&ver=4")
	}
	b.WriteString("&url=" + target + "&insert=false&config=" + config)
	b.WriteString("&emoji=true&list=false&tfo=false&scv=true&fdn=false&sort=false")

	switch f {
	case Clash, SingBox, Surge:
		b.WriteString("&new_name=true")
	case QuanX:
		b.WriteString("&udp=true")
	case Loon:
	default:
		return "", false
	}
	return b.String(), true
}

// ClashFix 只处理第一个 "proxies:" 之后的内容，把 ", server:" 改为 ",server:"
func ClashFix(content string) string {
	head, tail, ok := strings.Cut(content, "proxies:")
	if !ok {
		return content
	}
	return head + "proxies:" + strings.ReplaceAll(tail, ", server:", ",server:")
}
