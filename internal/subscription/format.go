package subscription

import (
	"net/url"
	"strings"
)

// Format 是下发给客户端的订阅格式
type Format int

const (
	Base64 Format = iota
	Clash
	SingBox
	Surge
	QuanX
	Loon
)

func (f Format) String() string {
	switch f {
	case Clash:
		return "clash"
	case SingBox:
		return "singbox"
	case Surge:
		return "surge"
	case QuanX:
		return "quanx"
	case Loon:
		return "loon"
	default:
		return "base64"
	}
}

// DetectFormat 根据 User-Agent（忽略大小写）和查询参数判断客户端需要的格式。
// 空 User-Agent 视为 "null"，与 base64 客户端等同。
func DetectFormat(userAgent string, query url.Values) Format {
	ua := strings.ToLower(userAgent)
	if ua == "" {
		ua = "null"
	}

	switch {
	case strings.Contains(ua, "null"), strings.Contains(ua, "subconverter"), strings.Contains(ua, "nekobox"):
		return Base64
	case strings.Contains(ua, "clash") || query.Has("clash"):
		return Clash
	case strings.Contains(ua, "sing-box") || strings.Contains(ua, "singbox") || query.Has("sb") || query.Has("singbox"):
		return SingBox
	case strings.Contains(ua, "surge") || query.Has("surge"):
		return Surge
	case strings.Contains(ua, "quantumult%20x") || query.Has("quanx"):
		return QuanX
	case strings.Contains(ua, "loon") || query.Has("loon"):
		return Loon
	default:
		return Base64
	}
}

// AppendUA 返回拉取订阅源时附加在 User-Agent 前面的客户端标识
func AppendUA(query url.Values) string {
	switch {
	case query.Has("clash"):
		return "clash"
	case query.Has("singbox"):
		return "singbox"
	case query.Has("surge"):
		return "surge"
	case query.Has("quanx"):
		return "Quantumult%20X"
	case query.Has("loon"):
		return "Loon"
	default:
		return "v2rayn"
	}
}
