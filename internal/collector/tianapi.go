package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultTianEndpoint = "https://apis.tianapi.com/dongman/index"

	tianMaxResponseBytes = 1 << 20 // 1MB
	tianClientTimeout    = 10 * time.Second
	tianRetryBackoff     = 500 * time.Millisecond
	tianSuccessCode      = 200
)

// ErrFetchFailed 所有拉取失败（网络、状态码、JSON、信封格式）都包装此错误
var ErrFetchFailed = errors.New("fetch news failed")

// TianAPIFetcher 调用天行数据的动漫资讯接口
type TianAPIFetcher struct {
	endpoint string
	client   *http.Client
	retries  int
	logger   *zap.Logger
}

// NewTianAPIFetcher endpoint 为空时使用官方地址；默认对网络错误与 5xx 额外重试一次
func NewTianAPIFetcher(endpoint string, logger *zap.Logger) *TianAPIFetcher {
	if endpoint == "" {
		endpoint = DefaultTianEndpoint
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TianAPIFetcher{
		endpoint: endpoint,
		client:   &http.Client{Timeout: tianClientTimeout},
		retries:  1,
		logger:   logger.Named("tianapi"),
	}
}

// SetRetries 设置额外重试次数，小于 0 按 0 处理
func (f *TianAPIFetcher) SetRetries(n int) {
	if n < 0 {
		n = 0
	}
	f.retries = n
}

type tianNews struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	CTime       string `json:"ctime"`
	PicURL      string `json:"picUrl"`
}

// 响应信封：{code:200, msg:"success", result:{newslist:[...]}}
type tianResp struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Result *struct {
		// 用指针区分 newslist 缺失与空数组
		Newslist *[]tianNews `json:"newslist"`
	} `json:"result"`
}

// FetchNews 拉取 num 条资讯，按接口顺序返回。
// 失败时返回 nil 与包装了 ErrFetchFailed 的错误，原因已记录日志。
func (f *TianAPIFetcher) FetchNews(ctx context.Context, apiKey string, num int) ([]NewsItem, error) {
	items, err := f.fetch(ctx, apiKey, num)
	if err != nil {
		f.logger.Error("fetch news failed", zap.Int("num", num), zap.Error(err))
		return nil, err
	}
	return items, nil
}

func (f *TianAPIFetcher) fetch(ctx context.Context, apiKey string, num int) ([]NewsItem, error) {
	u, err := url.Parse(f.endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: parse endpoint: %v", ErrFetchFailed, err)
	}
	q := u.Query()
	q.Set("key", apiKey)
	q.Set("num", strconv.Itoa(num))
	u.RawQuery = q.Encode()

	body, err := f.get(ctx, u.String())
	if err != nil {
		return nil, err
	}

	var data tianResp
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrFetchFailed, err)
	}
	if data.Code != tianSuccessCode {
		return nil, fmt.Errorf("%w: api code %d (%s)", ErrFetchFailed, data.Code, data.Msg)
	}
	if data.Result == nil || data.Result.Newslist == nil {
		return nil, fmt.Errorf("%w: response has no result.newslist", ErrFetchFailed)
	}

	list := *data.Result.Newslist
	out := make([]NewsItem, 0, len(list))
	for _, n := range list {
		out = append(out, NewsItem{
			Title:       n.Title,
			URL:         n.URL,
			Source:      "tianapi",
			Description: n.Description,
			CTime:       n.CTime,
			PicURL:      n.PicURL,
		})
	}
	return out, nil
}

// get 执行 GET 请求；仅网络错误与 5xx 会重试
func (f *TianAPIFetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrFetchFailed, ctx.Err())
			case <-time.After(time.Duration(attempt) * tianRetryBackoff):
			}
			f.logger.Warn("retry news request", zap.Int("attempt", attempt), zap.Error(lastErr))
		}

		body, retryable, err := f.do(ctx, rawURL)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return nil, lastErr
}

func (f *TianAPIFetcher) do(ctx context.Context, rawURL string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("%w: create request: %v", ErrFetchFailed, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, fmt.Errorf("%w: %v", ErrFetchFailed, redactKey(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode >= 500, fmt.Errorf("%w: unexpected status %d", ErrFetchFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, tianMaxResponseBytes))
	if err != nil {
		return nil, true, fmt.Errorf("%w: read body: %v", ErrFetchFailed, err)
	}
	return body, false, nil
}

// redactKey 去掉 *url.Error 中带 key 的完整 URL，避免密钥进日志
func redactKey(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%s: %w", ue.Op, ue.Err)
	}
	return err
}
