package fetch

import (
	"context"
	"encoding/base64"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"subaggr/internal/logger"
	"subaggr/internal/version"
)

var base64Body = regexp.MustCompile(`^[A-Za-z0-9+/]*={0,2}$`)

// Result 是一次并发拉取的汇总：成功源的节点行，以及按输入顺序排列的成功URL
type Result struct {
	Lines     []string
	Succeeded []string
}

// SucceededJoined 以 "|" 连接成功的订阅URL
func (r Result) SucceededJoined() string {
	return strings.Join(r.Succeeded, "|")
}

// UserAgent 组装回源请求的 User-Agent: "{uaSuffix} subaggr/{version} {originalUA}"，
// 客户端未带 User-Agent 时末段为 "null"
func UserAgent(uaSuffix, originalUA string) string {
	if originalUA == "" {
		originalUA = "null"
	}
	return uaSuffix + " " + version.UserAgent() + " " + originalUA
}

// FetchAll 并发拉取全部订阅源。单个源失败（网络错误、非2xx、超时）只会让该源不贡献任何节点，
// 不会影响其他源，也不会返回错误。
func (c *Client) FetchAll(ctx context.Context, urls []string, uaSuffix, originalUA string) Result {
	if len(urls) == 0 {
		return Result{}
	}

	ua := UserAgent(uaSuffix, originalUA)
	bodies := make([]string, len(urls))
	ok := make([]bool, len(urls))

	var g errgroup.Group
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			body, err := c.FetchText(ctx, u, ua)
			if err != nil {
				logger.Debug("[订阅拉取] 订阅源拉取失败，已忽略", "url", u, "error", err)
				return nil
			}
			bodies[i] = body
			ok[i] = true
			return nil
		})
	}
	_ = g.Wait()

	var res Result
	for i, u := range urls {
		if !ok[i] {
			continue
		}
		res.Lines = append(res.Lines, DecodeBody(bodies[i])...)
		res.Succeeded = append(res.Succeeded, u)
	}

	logger.Debug("[订阅拉取] 订阅源拉取完成", "total", len(urls), "succeeded", len(res.Succeeded), "lines", len(res.Lines))
	return res
}

// IsValidBase64 要求字符集为标准 base64 且长度是 4 的倍数
func IsValidBase64(s string) bool {
	return base64Body.MatchString(s) && len(s)%4 == 0
}

// DecodeBody 将订阅内容拆成非空行。整体是合法 base64 时先解码，解码失败则按原文处理。
func DecodeBody(body string) []string {
	text := body
	if trimmed := strings.TrimSpace(body); IsValidBase64(trimmed) {
		if decoded, err := base64.StdEncoding.DecodeString(trimmed); err == nil {
			text = string(decoded)
		}
	}
	return splitLines(text)
}

func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
