package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"subaggr/internal/logger"
)

// MainID 是主订阅的标识，其余订阅为 sub1、sub2 ...
const MainID = "main"

const subsListKey = "SUBS_LIST"

var (
	ErrInvalidSubID = errors.New("SUB ID 无效（仅支持 sub1/sub2/...）")
	ErrProtectedSub = errors.New("无法删除此订阅")

	subIDPattern  = regexp.MustCompile(`^sub\d+$`)
	subKeyPattern = regexp.MustCompile(`^(sub\d+)_(?:CONFIG|LINK\.txt)$`)
)

// SubConfig 是 MAIN_CONFIG / subN_CONFIG 中保存的 JSON
type SubConfig struct {
	FileName    string  `json:"FileName,omitempty"`
	DisplayName string  `json:"displayName,omitempty"`
	SubConfig   string  `json:"subConfig,omitempty"`
	BestIPURL   *string `json:"bestIPUrl,omitempty"`
	CustomHosts *string `json:"customHosts,omitempty"`
}

// SubMeta 是管理页展示的订阅名称信息
type SubMeta struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	FileName    string `json:"FileName"`
}

// NormalizeSubID 去除空白并校验 subN 格式
func NormalizeSubID(value string) (string, bool) {
	v := strings.TrimSpace(value)
	if !subIDPattern.MatchString(v) {
		return "", false
	}
	return v, true
}

// SortSubIDs 按编号升序排列，编号相同时按字典序
func SortSubIDs(ids []string) []string {
	out := append([]string(nil), ids...)
	num := func(id string) int {
		n, err := strconv.Atoi(strings.TrimPrefix(id, "sub"))
		if err != nil {
			return 0
		}
		return n
	}
	sort.SliceStable(out, func(i, j int) bool {
		ni, nj := num(out[i]), num(out[j])
		if ni != nj {
			return ni < nj
		}
		return out[i] < out[j]
	})
	return out
}

// ConfigKey 返回订阅配置的键名
func ConfigKey(id string) string {
	if id == MainID || id == "" {
		return "MAIN_CONFIG"
	}
	return id + "_CONFIG"
}

// LinkKey 返回订阅链接文本的键名
func LinkKey(id string) string {
	if id == MainID || id == "" {
		return "LINK.txt"
	}
	return id + "_LINK.txt"
}

// FallbackFileName 是未设置文件名时的默认值
func FallbackFileName(id, defaultTitle string) string {
	if id == MainID || id == "" {
		return defaultTitle
	}
	return defaultTitle + "-" + id
}

func resolveID(id string) (string, error) {
	if id == MainID {
		return MainID, nil
	}
	subID, ok := NormalizeSubID(id)
	if !ok {
		return "", ErrInvalidSubID
	}
	return subID, nil
}

// ListSubs 读取 SUBS_LIST；缺失或损坏时扫描 subN_CONFIG / subN_LINK.txt 键
func (r *Repository) ListSubs(ctx context.Context) ([]string, error) {
	raw, err := r.GetString(ctx, subsListKey)
	if err != nil {
		return nil, err
	}
	if raw != "" {
		var parsed []any
		if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
			seen := make(map[string]struct{}, len(parsed))
			ids := make([]string, 0, len(parsed))
			for _, item := range parsed {
				s, ok := item.(string)
				if !ok {
					continue
				}
				id, ok := NormalizeSubID(s)
				if !ok {
					continue
				}
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
			return SortSubIDs(ids), nil
		}
		logger.Warn("[订阅存储] SUBS_LIST 解析失败，改为扫描键", "error", err)
	}

	found := make(map[string]struct{})
	cursor := ""
	for {
		page, err := r.List(ctx, "sub", cursor, 1000)
		if err != nil {
			return nil, err
		}
		for _, key := range page.Keys {
			if m := subKeyPattern.FindStringSubmatch(key); m != nil {
				found[m[1]] = struct{}{}
			}
		}
		if page.Complete || page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}

	ids := make([]string, 0, len(found))
	for id := range found {
		ids = append(ids, id)
	}
	return SortSubIDs(ids), nil
}

// ReadSubConfig 读取订阅配置；不存在或 JSON 损坏时返回空配置
func (r *Repository) ReadSubConfig(ctx context.Context, id string) (SubConfig, bool, error) {
	raw, err := r.GetString(ctx, ConfigKey(id))
	if err != nil {
		return SubConfig{}, false, err
	}
	if raw == "" {
		return SubConfig{}, false, nil
	}
	var cfg SubConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		logger.Warn("[订阅存储] 订阅配置解析失败", "id", id, "error", err)
		return SubConfig{}, false, nil
	}
	return cfg, true, nil
}

func (r *Repository) writeSubConfig(ctx context.Context, id string, cfg SubConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode sub config: %w", err)
	}
	return r.Put(ctx, ConfigKey(id), string(data))
}

// ReadSubMeta 读取订阅名称信息并补全默认值
func (r *Repository) ReadSubMeta(ctx context.Context, id, defaultTitle string) (SubMeta, error) {
	subID, err := resolveID(id)
	if err != nil {
		return SubMeta{}, err
	}

	cfg, _, err := r.ReadSubConfig(ctx, subID)
	if err != nil {
		return SubMeta{}, err
	}

	fallback := FallbackFileName(subID, defaultTitle)
	meta := SubMeta{ID: subID, FileName: cfg.FileName, DisplayName: cfg.DisplayName}
	if meta.FileName == "" {
		meta.FileName = fallback
	}
	if meta.DisplayName == "" {
		meta.DisplayName = meta.FileName
	}
	return meta, nil
}

// HydrateSubsMeta 批量读取名称信息，跳过无效ID
func (r *Repository) HydrateSubsMeta(ctx context.Context, ids []string, defaultTitle string) ([]SubMeta, error) {
	out := make([]SubMeta, 0, len(ids))
	for _, raw := range ids {
		id, ok := NormalizeSubID(raw)
		if !ok {
			continue
		}
		meta, err := r.ReadSubMeta(ctx, id, defaultTitle)
		if err != nil {
			return nil, err
		}
		out = append(out, meta)
	}
	return out, nil
}

// UpsertSubMeta 更新名称（去除首尾空白并补全默认值），新订阅会登记到 SUBS_LIST
func (r *Repository) UpsertSubMeta(ctx context.Context, id string, displayName, fileName *string, defaultTitle string) error {
	subID, err := resolveID(id)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, _, err := r.ReadSubConfig(ctx, subID)
	if err != nil {
		return err
	}
	if displayName != nil {
		cfg.DisplayName = strings.TrimSpace(*displayName)
	}
	if fileName != nil {
		cfg.FileName = strings.TrimSpace(*fileName)
	}
	if cfg.FileName == "" {
		cfg.FileName = FallbackFileName(subID, defaultTitle)
	}
	if cfg.DisplayName == "" {
		cfg.DisplayName = cfg.FileName
	}
	if err := r.writeSubConfig(ctx, subID, cfg); err != nil {
		return err
	}

	if subID == MainID {
		return nil
	}
	return r.registerSub(ctx, subID)
}

func (r *Repository) registerSub(ctx context.Context, id string) error {
	list, err := r.ListSubs(ctx)
	if err != nil {
		return err
	}
	for _, existing := range list {
		if existing == id {
			return nil
		}
	}
	return r.writeSubsList(ctx, append(list, id))
}

func (r *Repository) writeSubsList(ctx context.Context, ids []string) error {
	data, err := json.Marshal(SortSubIDs(ids))
	if err != nil {
		return fmt.Errorf("encode subs list: %w", err)
	}
	return r.Put(ctx, subsListKey, string(data))
}

// SaveSubMeta 只覆盖非空字段，不补默认值（编辑页使用）
func (r *Repository) SaveSubMeta(ctx context.Context, id, displayName, fileName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, _, err := r.ReadSubConfig(ctx, id)
	if err != nil {
		return err
	}
	if displayName != "" {
		cfg.DisplayName = displayName
	}
	if fileName != "" {
		cfg.FileName = fileName
	}
	return r.writeSubConfig(ctx, id, cfg)
}

// SaveSubConfig 保存优选IP来源与自定义地址，nil 表示保持不变
func (r *Repository) SaveSubConfig(ctx context.Context, id string, bestIPURL, customHosts *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, _, err := r.ReadSubConfig(ctx, id)
	if err != nil {
		return err
	}
	if bestIPURL != nil {
		v := *bestIPURL
		cfg.BestIPURL = &v
	}
	if customHosts != nil {
		v := *customHosts
		cfg.CustomHosts = &v
	}
	return r.writeSubConfig(ctx, id, cfg)
}

// DeleteSub 删除订阅的配置和链接，并从 SUBS_LIST 中移除。主订阅不可删除。
func (r *Repository) DeleteSub(ctx context.Context, id string) error {
	if id == "" || id == MainID {
		return ErrProtectedSub
	}
	subID, ok := NormalizeSubID(id)
	if !ok {
		return ErrInvalidSubID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.Delete(ctx, ConfigKey(subID)); err != nil {
		return err
	}
	if err := r.Delete(ctx, LinkKey(subID)); err != nil {
		return err
	}

	list, err := r.ListSubs(ctx)
	if err != nil {
		return err
	}
	remaining := make([]string, 0, len(list))
	for _, existing := range list {
		if existing != subID {
			remaining = append(remaining, existing)
		}
	}
	if len(remaining) == len(list) {
		return nil
	}
	return r.writeSubsList(ctx, remaining)
}

// ReadLinks 读取订阅的链接文本，不存在时返回空串
func (r *Repository) ReadLinks(ctx context.Context, id string) (string, error) {
	return r.GetString(ctx, LinkKey(id))
}

// SaveLinks 覆盖订阅的链接文本
func (r *Repository) SaveLinks(ctx context.Context, id, text string) error {
	return r.Put(ctx, LinkKey(id), text)
}

// MigrateAddressList 把旧版 ADD.txt / subN_ADD.txt 迁移到 LINK.txt / subN_LINK.txt。
// 仅当新键为空且旧键有值时迁移，返回是否发生了迁移。
func (r *Repository) MigrateAddressList(ctx context.Context, linkKey string) (bool, error) {
	oldKey := strings.Replace(strings.Replace(linkKey, ".txt", "", 1), "LINK", "ADD", 1) + ".txt"
	if oldKey == linkKey {
		return false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.GetString(ctx, linkKey)
	if err != nil {
		return false, err
	}
	if existing != "" {
		return false, nil
	}

	oldValue, err := r.GetString(ctx, oldKey)
	if err != nil {
		return false, err
	}
	if oldValue == "" {
		return false, nil
	}

	if err := r.Put(ctx, linkKey, oldValue); err != nil {
		return false, err
	}
	if err := r.Delete(ctx, oldKey); err != nil {
		return false, err
	}
	logger.Info("[订阅存储] 迁移旧版链接列表", "from", oldKey, "to", linkKey)
	return true, nil
}
