// Package csfloat 实现 CSFloat REST API 客户端。
// 接口: GET /api/v1/listings/{id}，POST /api/v1/listings/buy，GET /api/v1/me
// 授权: Authorization 头直接携带 API Key
// 限速: 任意两次请求之间保持最小间隔
package csfloat

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"skin-arbitrage-monitor/internal/config"
	"skin-arbitrage-monitor/internal/core/model"
)

// BuySuccessMessage 购买成功时响应中的 message
const BuySuccessMessage = "all listings purchased"

// maxBodySize 响应体大小上限
const maxBodySize = 8 << 20

// ErrRateLimited 服务端返回 429
var ErrRateLimited = errors.New("CSFloat 请求被限流")

// Client CSFloat REST 客户端
type Client struct {
	// baseURL API 根地址
	baseURL string
	// apiKey 授权 Key
	apiKey string
	// http 底层 HTTP 客户端
	http *http.Client
	// limiter 请求节流
	limiter *rate.Limiter
	// logger 日志记录器
	logger *zap.Logger
}

// NewClient 创建 CSFloat 客户端
// 参数 cfg: CSFloat 配置
// 参数 logger: 日志记录器
func NewClient(cfg config.CSFloatConfig, logger *zap.Logger) (*Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("解析 CSFloat 代理地址失败: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	interval := time.Duration(cfg.MinRequestIntervalMs) * time.Millisecond
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}

	l := logger.Named("csfloat")
	if cfg.Proxy == "" {
		l.Warn("未配置 CSFloat 代理")
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http: &http.Client{
			Timeout:   time.Duration(cfg.TimeoutMs) * time.Millisecond,
			Transport: transport,
		},
		limiter: rate.NewLimiter(limit, 1),
		logger:  l,
	}, nil
}

// GetListing 获取单条挂单的原始响应
func (c *Client) GetListing(ctx context.Context, listingID string) ([]byte, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/v1/listings/"+url.PathEscape(listingID), nil)
	if err != nil {
		return nil, fmt.Errorf("获取挂单 %s 失败: %w", listingID, err)
	}
	return body, nil
}

// Buy 以指定总价购买挂单
// 返回 true 表示平台确认购买成功。
func (c *Client) Buy(ctx context.Context, listingID string, price model.Price) (bool, error) {
	req := buyRequest{
		TotalPrice:  uint64(price),
		ContractIDs: []string{listingID},
	}
	body, err := c.do(ctx, http.MethodPost, "/api/v1/listings/buy", req)
	if err != nil {
		return false, err
	}

	var resp buyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, fmt.Errorf("解析购买响应失败: %w", err)
	}
	if resp.Message != BuySuccessMessage {
		c.logger.Warn("购买未成功", zap.String("listing_id", listingID), zap.String("message", resp.Message))
	}
	return resp.Message == BuySuccessMessage, nil
}

// Balance 查询账户余额
func (c *Client) Balance(ctx context.Context) (model.Price, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/v1/me", nil)
	if err != nil {
		return 0, fmt.Errorf("查询余额失败: %w", err)
	}
	var resp meResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("解析账户信息失败: %w", err)
	}
	return model.Price(resp.User.Balance), nil
}

// do 发送请求并返回解压后的响应体
// 非 2xx 响应返回错误。
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("等待限速器失败: %w", err)
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("序列化请求失败: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", c.apiKey)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip, br")
	req.Header.Set("User-Agent", "skin-arbitrage-monitor/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, snippet(body))
	}
	return body, nil
}

// readBody 按 Content-Encoding 解压响应体
func readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	case "br":
		reader = brotli.NewReader(resp.Body)
	}
	return io.ReadAll(io.LimitReader(reader, maxBodySize))
}

func snippet(body []byte) string {
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}
