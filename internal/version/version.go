package version

// Version 构建时通过 -ldflags "-X subaggr/internal/version.Version=..." 注入
var Version = "dev"

// Product 出现在回源请求的 User-Agent 中
const Product = "subaggr"

// UserAgent 返回 "subaggr/<version>"
func UserAgent() string {
	return Product + "/" + Version
}
