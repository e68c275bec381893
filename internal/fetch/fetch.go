package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

// Kind 描述拉取失败的类别
type Kind int

const (
	KindInvalidURL Kind = iota
	KindNetwork
	KindTimeout
	KindStatus
	KindTooLarge
)

func (k Kind) String() string {
	switch k {
	case KindInvalidURL:
		return "invalid_url"
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindStatus:
		return "status"
	case KindTooLarge:
		return "too_large"
	default:
		return "fetch"
	}
}

var (
	ErrNonSuccess = errors.New("upstream returned non-2xx status")
	ErrTooLarge   = errors.New("upstream body exceeds limit")

	errTooManyRedirects   = errors.New("too many redirects")
	errRedirectBadScheme  = errors.New("redirect target scheme is not http/https")
	errInvalidURLOrScheme = errors.New("invalid url or scheme")
)

// FetchError 是一次远程拉取失败的完整描述
type FetchError struct {
	Kind   Kind
	Status int
	URL    string
	Cause  error
}

func (e *FetchError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Cause }

type Options struct {
	Timeout      time.Duration // default 15s
	MaxBytes     int64         // default 10 MiB
	MaxRedirects int           // default 5
	Transport    http.RoundTripper
}

// Client 拉取订阅源、优选IP列表以及订阅转换结果
type Client struct {
	http     *http.Client
	maxBytes int64
}

func NewClient(opt Options) *Client {
	timeout := opt.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	maxRedirects := opt.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 5
	}
	maxBytes := opt.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 10 * 1024 * 1024
	}
	transport := opt.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &Client{
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) > maxRedirects {
					return errTooManyRedirects
				}
				if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
					return errRedirectBadScheme
				}
				return nil
			},
		},
		maxBytes: maxBytes,
	}
}

// FetchText 发起一次 GET 请求，仅 2xx 视为成功。userAgent 为空时不设置该请求头。
func (c *Client) FetchText(ctx context.Context, rawURL, userAgent string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u == nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", &FetchError{Kind: KindInvalidURL, URL: rawURL, Cause: errors.Join(errInvalidURLOrScheme, err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &FetchError{Kind: KindInvalidURL, URL: rawURL, Cause: err}
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	req.Header.Set("Accept", "*/*")

	resp, err := c.http.Do(req)
	if err != nil {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		return "", &FetchError{Kind: classify(err), URL: rawURL, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", &FetchError{Kind: KindStatus, Status: resp.StatusCode, URL: rawURL, Cause: ErrNonSuccess}
	}

	// 多读一个字节用于判断是否超限
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return "", &FetchError{Kind: classify(err), Status: resp.StatusCode, URL: rawURL, Cause: err}
	}
	if int64(len(body)) > c.maxBytes {
		return "", &FetchError{Kind: KindTooLarge, Status: resp.StatusCode, URL: rawURL, Cause: ErrTooLarge}
	}

	return string(body), nil
}

func classify(err error) Kind {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindNetwork
}
