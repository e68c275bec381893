// Package bestip 获取优选IP列表并与自定义地址合并
package bestip

import (
	"context"

	"subaggr/internal/fetch"
	"subaggr/internal/hostlist"
	"subaggr/internal/logger"
)

// Fetcher 是 Resolver 依赖的最小拉取能力
type Fetcher interface {
	FetchText(ctx context.Context, rawURL, userAgent string) (string, error)
}

type Resolver struct {
	fetcher Fetcher
}

func NewResolver(fetcher Fetcher) *Resolver {
	if fetcher == nil {
		panic("bestip resolver requires a fetcher")
	}
	return &Resolver{fetcher: fetcher}
}

// Resolve 拉取远程优选列表。任何失败都返回空列表。
func (r *Resolver) Resolve(ctx context.Context, remoteURL string) []string {
	if remoteURL == "" {
		return nil
	}

	body, err := r.fetcher.FetchText(ctx, remoteURL, "")
	if err != nil {
		logger.Warn("[优选IP] 拉取优选IP列表失败", "url", remoteURL, "error", err)
		return nil
	}

	hosts := hostlist.Parse(body)
	logger.Debug("[优选IP] 拉取优选IP列表成功", "url", remoteURL, "count", len(hosts))
	return hosts
}

// Merge 将自定义地址追加在远程列表之后再去重，远程条目优先
func Merge(remote []string, customText string) []string {
	custom := hostlist.Parse(customText)
	if len(custom) == 0 {
		return remote
	}
	merged := make([]string, 0, len(remote)+len(custom))
	merged = append(merged, remote...)
	merged = append(merged, custom...)
	return hostlist.Unique(merged)
}

var _ Fetcher = (*fetch.Client)(nil)
