// Package notify 通过 Telegram Bot 推送访问事件
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"subaggr/internal/logger"
)

const DefaultAPIBase = "https://api.telegram.org"

// 事件类型，作为消息第一行
const (
	KindAbnormalAccess = "#异常访问"
	KindEdit           = "#编辑订阅"
	KindFetch          = "#获取订阅"
)

type Options struct {
	BotToken string
	ChatID   string
	APIBase  string        // 默认 DefaultAPIBase
	Timeout  time.Duration // 默认 10s
	// 每秒允许发送的消息数和突发量，默认 1/s、突发 5
	Rate  rate.Limit
	Burst int
}

type Telegram struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
	limiter  *rate.Limiter
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func NewTelegram(opt Options) *Telegram {
	if opt.APIBase == "" {
		opt.APIBase = DefaultAPIBase
	}
	if opt.Timeout <= 0 {
		opt.Timeout = 10 * time.Second
	}
	if opt.Rate <= 0 {
		opt.Rate = 1
	}
	if opt.Burst <= 0 {
		opt.Burst = 5
	}
	return &Telegram{
		botToken: strings.TrimSpace(opt.BotToken),
		chatID:   strings.TrimSpace(opt.ChatID),
		apiBase:  strings.TrimRight(opt.APIBase, "/"),
		client:   &http.Client{Timeout: opt.Timeout},
		limiter:  rate.NewLimiter(opt.Rate, opt.Burst),
	}
}

// Enabled 未配置 bot token 或 chat id 时不推送
func (t *Telegram) Enabled() bool {
	return t != nil && t.botToken != "" && t.chatID != ""
}

// Send 推送一条 HTML 消息。失败只记录日志，不影响请求。
func (t *Telegram) Send(ctx context.Context, kind, ip, extra string) {
	if !t.Enabled() {
		return
	}
	if !t.limiter.Allow() {
		logger.Debug("[通知] 推送过于频繁，已丢弃", "kind", kind)
		return
	}
	if err := t.send(ctx, FormatMessage(kind, ip, extra)); err != nil {
		logger.Warn("[通知] Telegram 推送失败", "kind", kind, "error", err)
	}
}

// FormatMessage 生成消息正文，IP 放在 spoiler 中
func FormatMessage(kind, ip, extra string) string {
	return kind + "\nIP: <tg-spoiler>" + ip + "</tg-spoiler>\n" + extra
}

func (t *Telegram) send(ctx context.Context, text string) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:    t.chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	endpoint := t.apiBase + "/bot" + t.botToken + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("telegram status %d", resp.StatusCode)
	}
	return nil
}
