// Package subscription 汇总节点并按客户端格式输出订阅内容
package subscription

import (
	"context"
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"

	"subaggr/internal/aggregate"
	"subaggr/internal/bestip"
	"subaggr/internal/fetch"
	"subaggr/internal/logger"
	"subaggr/internal/util"
)

// Request 是一次订阅生成所需的全部输入，由调用方按请求构造
type Request struct {
	MainText    string   // 粘贴的节点与订阅链接
	SourceURLs  []string // 额外的订阅源（LINKSUB）
	BestIPURL   string
	CustomHosts string

	Format      Format
	ForceBase64 bool // 订阅转换服务回源时始终返回 base64

	AppendUA  string // 回源 User-Agent 前缀
	UserAgent string // 客户端原始 User-Agent

	// CallbackURL 是订阅转换服务回源的地址（不含成功的订阅源与 WARP 链接）
	CallbackURL string
	WarpURLs    []string

	Converter      Converter
	ConfigURL      string
	FileName       string
	UpdateInterval int // 小时
}

// Response 是最终下发给客户端的内容
type Response struct {
	Body      string
	Header    http.Header
	Format    Format // 实际输出格式，转换失败时为 Base64
	Nodes     int
	Converted bool
}

type Generator struct {
	sources   *fetch.Client
	converter *fetch.Client
	resolver  *bestip.Resolver
}

// NewGenerator sources 用于拉取订阅源和优选IP，converter 用于请求订阅转换服务
func NewGenerator(sources, converter *fetch.Client) *Generator {
	if sources == nil || converter == nil {
		panic("subscription generator requires fetch clients")
	}
	return &Generator{
		sources:   sources,
		converter: converter,
		resolver:  bestip.NewResolver(sources),
	}
}

// Generate 始终返回可用的订阅内容：订阅源或转换服务失败时降级为 base64
func (g *Generator) Generate(ctx context.Context, req Request) Response {
	entries := aggregate.Split(req.MainText + "\n" + strings.Join(req.SourceURLs, "\n"))
	selfNodes, subURLs := aggregate.Classify(entries)

	fetched := g.sources.FetchAll(ctx, subURLs, req.AppendUA, req.UserAgent)

	callback := req.CallbackURL
	if joined := fetched.SucceededJoined(); joined != "" {
		callback += "|" + joined
	}
	if len(req.WarpURLs) > 0 {
		callback += "|" + strings.Join(req.WarpURLs, "|")
	}

	bestIPs := bestip.Merge(g.resolver.Resolve(ctx, req.BestIPURL), req.CustomHosts)

	corpus := aggregate.Corpus(selfNodes, fetched.Lines)
	lines := aggregate.Expand(corpus, bestIPs)
	text := aggregate.Join(lines)
	payload := Encode(text)

	logger.Info("[订阅生成] 节点汇总完成",
		"self_nodes", len(selfNodes),
		"sources", len(subURLs),
		"sources_ok", len(fetched.Succeeded),
		"best_ips", len(bestIPs),
		"nodes", len(lines),
		"format", req.Format.String(),
	)

	fallback := Response{
		Body:   payload,
		Header: baseHeader(req.UpdateInterval),
		Format: Base64,
		Nodes:  len(lines),
	}

	if req.Format == Base64 || req.ForceBase64 {
		return fallback
	}

	converterURL, ok := ConverterURL(req.Format, req.Converter, callback, req.ConfigURL)
	if !ok {
		return fallback
	}

	content, err := g.converter.FetchText(ctx, converterURL, "")
	if err != nil {
		logger.Warn("[订阅转换] 订阅转换失败，回退为 base64", "format", req.Format.String(), "error", err)
		return fallback
	}
	if strings.TrimSpace(content) == "" {
		logger.Warn("[订阅转换] 订阅转换返回空内容，回退为 base64", "format", req.Format.String())
		return fallback
	}

	if req.Format == Clash {
		content = ClashFix(content)
		summary, err := util.SummarizeClash(content)
		switch {
		case err != nil:
			logger.Warn("[订阅转换] 无法解析 Clash 配置，原样下发", "error", err)
		case summary.Proxies == 0:
			logger.Warn("[订阅转换] Clash 配置不含任何节点，回退为 base64", "groups", summary.ProxyGroups)
			return fallback
		default:
			logger.Debug("[订阅转换] Clash 配置概况", "proxies", summary.Proxies, "groups", summary.ProxyGroups)
		}
	}

	header := baseHeader(req.UpdateInterval)
	header.Set("Content-Disposition", "attachment; filename*=utf-8''"+util.EncodeURIComponent(req.FileName))

	return Response{
		Body:      content,
		Header:    header,
		Format:    req.Format,
		Nodes:     len(lines),
		Converted: true,
	}
}

// Encode 对 UTF-8 文本做标准 base64 编码
func Encode(text string) string {
	return base64.StdEncoding.EncodeToString([]byte(text))
}

func baseHeader(updateInterval int) http.Header {
	h := make(http.Header)
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Profile-Update-Interval", strconv.Itoa(updateInterval))
	return h
}
