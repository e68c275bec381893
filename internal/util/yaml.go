package util

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ClashSummary 描述订阅转换返回的 Clash 配置概况
type ClashSummary struct {
	Proxies     int
	ProxyGroups int
}

// SummarizeClash 解析 Clash 配置，统计节点与策略组数量
func SummarizeClash(content string) (ClashSummary, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return ClashSummary{}, fmt.Errorf("parse clash config: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return ClashSummary{}, fmt.Errorf("clash config is empty")
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return ClashSummary{}, fmt.Errorf("clash config root is not a mapping")
	}

	var summary ClashSummary
	if proxies := GetNodeField(root, "proxies"); proxies != nil && proxies.Kind == yaml.SequenceNode {
		summary.Proxies = len(proxies.Content)
	}
	if groups := GetNodeField(root, "proxy-groups"); groups != nil && groups.Kind == yaml.SequenceNode {
		summary.ProxyGroups = len(groups.Content)
	}

	return summary, nil
}

// GetNodeField returns the value node of a mapping key
func GetNodeField(node *yaml.Node, fieldName string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}

	for i := 0; i < len(node.Content)-1; i += 2 {
		keyNode := node.Content[i]
		if keyNode.Kind == yaml.ScalarNode && keyNode.Value == fieldName {
			return node.Content[i+1]
		}
	}
	return nil
}
