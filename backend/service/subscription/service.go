package subscription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"momsvpn/backend/domain"
	"momsvpn/backend/logging"
	"momsvpn/backend/service/shared"
)

// ErrBodyTooLarge 上游订阅正文超过上限
var ErrBodyTooLarge = errors.New("subscription body exceeds size limit")

// FetchError 上游不可达/超时/读取失败
type FetchError struct {
	Token string
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch subscription %s: %v", e.Token, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Timeout 是否为超时错误
func (e *FetchError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// Result 一次订阅代理的结果。Passthrough=true 时 Body 为上游原始响应（非 200）。
type Result struct {
	StatusCode  int
	Passthrough bool
	Header      http.Header
	Body        []byte
	Links       []string
	Usage       *Usage
}

// Options 订阅服务参数
type Options struct {
	BaseURL   string
	VerifySSL bool
	Timeout   time.Duration
	Fallback  Fallback
	Labels    *Labels
	Client    *http.Client
}

// Service 订阅代理服务：拉取上游订阅并改写
type Service struct {
	baseURL  string
	timeout  time.Duration
	client   *http.Client
	fallback Fallback
	labels   Labels
	logger   zerolog.Logger
}

// NewService 创建订阅代理服务
func NewService(opts Options) *Service {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = shared.DefaultTimeout
	}
	var client http.Client
	if opts.Client != nil {
		client = *opts.Client
	} else {
		client = *shared.NewHTTPClient(opts.VerifySSL, timeout)
	}
	// 上游 3xx 原样透传给客户端，不跟随跳转
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	labels := DefaultLabels
	if opts.Labels != nil {
		labels = *opts.Labels
	}
	return &Service{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		timeout:  timeout,
		client:   &client,
		fallback: opts.Fallback,
		labels:   labels,
		logger:   logging.Component("subscription"),
	}
}

// Fetch 拉取 {base}/sub/{token}（只转发 User-Agent），成功时改写链接并筛选响应头。
// 不重试：任何传输错误都作为 *FetchError 返回。
func (s *Service) Fetch(ctx context.Context, token, userAgent string) (*Result, error) {
	hint := domain.TokenHint(token)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	endpoint := s.baseURL + "/sub/" + url.PathEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &FetchError{Token: hint, Err: err}
	}
	req.Header = http.Header{}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &FetchError{Token: hint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, shared.MaxDownloadSize+1))
	if err != nil {
		return nil, &FetchError{Token: hint, Err: err}
	}
	if int64(len(body)) > shared.MaxDownloadSize {
		return nil, &FetchError{Token: hint, Err: ErrBodyTooLarge}
	}

	if resp.StatusCode != http.StatusOK {
		s.logger.Warn().Str("token", hint).Int("status", resp.StatusCode).Msg("upstream returned non-200, passing through")
		return &Result{StatusCode: resp.StatusCode, Passthrough: true, Body: body}, nil
	}

	s.logger.Debug().Str("token", hint).Str("raw", preview(body, 500)).Msg("raw subscription content")

	links := Transform(string(body), s.fallback, s.labels)
	header := http.Header{}
	RelayHeaders(resp.Header, header)

	result := &Result{
		StatusCode: http.StatusOK,
		Header:     header,
		Body:       []byte(Render(links)),
		Links:      links,
	}
	if usage, ok := ParseUserinfo(resp.Header.Get("subscription-userinfo")); ok {
		result.Usage = &usage
	}
	return result, nil
}

func preview(body []byte, n int) string {
	if len(body) > n {
		return string(body[:n]) + "..."
	}
	return string(body)
}
