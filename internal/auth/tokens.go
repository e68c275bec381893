// Package auth 计算并校验管理员、访客和每日临时令牌
package auth

import (
	"context"
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Role 表示一次请求通过校验后的身份
type Role int

const (
	RoleNone Role = iota
	RoleGuest
	RoleFake
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleFake:
		return "fake"
	case RoleGuest:
		return "guest"
	default:
		return "none"
	}
}

type contextKey string

const roleContextKey contextKey = "subaggr/auth/role"

// Tokens 是某一天内有效的三种令牌
type Tokens struct {
	Admin string
	Fake  string
	Guest string
}

// MD5MD5 对文本做两次 MD5，第二次以第一次的十六进制小写结果为输入
func MD5MD5(text string) string {
	first := md5.Sum([]byte(text))
	second := md5.Sum([]byte(hex.EncodeToString(first[:])))
	return hex.EncodeToString(second[:])
}

// FakeToken 每天（UTC 零点）变化一次，供订阅转换服务回源使用
func FakeToken(admin string, now time.Time) string {
	midnight := now.UTC().Truncate(24 * time.Hour)
	return MD5MD5(admin + strconv.FormatInt(midnight.Unix(), 10))
}

// GuestToken 优先使用配置值，否则由管理员令牌派生
func GuestToken(admin, configured string) string {
	if configured = strings.TrimSpace(configured); configured != "" {
		return configured
	}
	return MD5MD5(admin)
}

// NewTokens 计算 now 所在日期的令牌。未配置管理员令牌时不派生临时令牌和访客令牌。
func NewTokens(admin, guest string, now time.Time) Tokens {
	admin = strings.TrimSpace(admin)
	if admin == "" {
		return Tokens{Guest: strings.TrimSpace(guest)}
	}
	return Tokens{
		Admin: admin,
		Fake:  FakeToken(admin, now),
		Guest: GuestToken(admin, guest),
	}
}

// IsAdmin 空令牌永远不是管理员
func (t Tokens) IsAdmin(candidate string) bool {
	return equal(candidate, t.Admin)
}

// Role 返回候选令牌对应的身份，未匹配时为 RoleNone
func (t Tokens) Role(candidate string) Role {
	switch {
	case equal(candidate, t.Admin):
		return RoleAdmin
	case equal(candidate, t.Fake):
		return RoleFake
	case equal(candidate, t.Guest):
		return RoleGuest
	default:
		return RoleNone
	}
}

// Valid 判断候选令牌是否为三种令牌之一
func (t Tokens) Valid(candidate string) bool {
	return t.Role(candidate) != RoleNone
}

func equal(candidate, token string) bool {
	if candidate == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(token)) == 1
}

func ContextWithRole(ctx context.Context, role Role) context.Context {
	return context.WithValue(ctx, roleContextKey, role)
}

// RoleFromContext 读取请求上下文中的身份，未设置时为 RoleNone
func RoleFromContext(ctx context.Context) Role {
	if ctx == nil {
		return RoleNone
	}
	role, _ := ctx.Value(roleContextKey).(Role)
	return role
}
