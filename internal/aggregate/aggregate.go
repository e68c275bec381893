// Package aggregate 负责链接文本的切分、分类、去重以及按优选IP展开节点
package aggregate

import (
	"regexp"
	"strings"

	"github.com/samber/lo"

	"subaggr/internal/hostlist"
	"subaggr/internal/rewrite"
)

var (
	separatorRun = regexp.MustCompile(`[\t"'\r\n]+`)
	commaRun     = regexp.MustCompile(`,+`)
)

// Split 将粘贴的链接文本切成条目。制表符、引号和换行统一视为逗号；
// "|" 不是分隔符，它用于 |true / |false 优选标记。
func Split(raw string) []string {
	text := separatorRun.ReplaceAllString(raw, ",")
	text = commaRun.ReplaceAllString(text, ",")
	text = strings.TrimPrefix(text, ",")
	text = strings.TrimSuffix(text, ",")
	return strings.Split(text, ",")
}

// Classify 将条目分为自建节点与订阅链接（小写后以 http 开头）
func Classify(lines []string) (selfNodes, subURLs []string) {
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.HasPrefix(strings.ToLower(line), "http") {
			subURLs = append(subURLs, line)
			continue
		}
		selfNodes = append(selfNodes, line)
	}
	return selfNodes, subURLs
}

// Dedup 按完整字符串去重，不做任何规范化
func Dedup(lines []string) []string {
	return lo.Uniq(lines)
}

// Corpus 合并自建节点与远程节点并去重
func Corpus(selfNodes, fetched []string) []string {
	merged := make([]string, 0, len(selfNodes)+len(fetched))
	merged = append(merged, selfNodes...)
	merged = append(merged, fetched...)
	return Dedup(merged)
}

// ParseFlag 去掉行尾的 |true / |false 标记，并返回该行是否需要优选展开
func ParseFlag(line string) (clean string, optimize bool) {
	trimmed := strings.TrimRightFunc(line, hostlist.IsSpace)
	if strings.HasSuffix(trimmed, "|true") {
		return strings.TrimSuffix(trimmed, "|true"), true
	}
	if strings.HasSuffix(trimmed, "|false") {
		return strings.TrimSuffix(trimmed, "|false"), false
	}
	return line, false
}

// Expand 对标记为 |true 的节点按优选IP逐个生成副本，其余节点去掉标记后原样保留
func Expand(corpus, bestIPs []string) []string {
	out := make([]string, 0, len(corpus))
	for _, line := range corpus {
		if !strings.Contains(line, "://") || strings.HasPrefix(line, "http") {
			out = append(out, line)
			continue
		}

		clean, optimize := ParseFlag(line)
		if !optimize || len(bestIPs) == 0 {
			out = append(out, clean)
			continue
		}

		for i, ip := range bestIPs {
			out = append(out, rewrite.Rewrite(clean, ip, i))
		}
	}
	return out
}

// Join 以换行连接节点，空列表返回空串
func Join(lines []string) string {
	return strings.Join(lo.Filter(lines, func(line string, _ int) bool {
		return line != ""
	}), "\n")
}
