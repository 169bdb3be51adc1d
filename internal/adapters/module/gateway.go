package module

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fibbench/internal/coordinator"
)

const (
	defaultGatewayTimeout = 30 * time.Second
	defaultMaxModuleBytes = 64 << 20
)

// GatewaySource 通过 HTTP 网关拉取 wasm 模块（制品仓库、IPFS 网关或静态文件服务均可）。
type GatewaySource struct {
	baseURL  string
	client   *http.Client
	maxBytes int64
	log      coordinator.Logger
}

// GatewayOption 调整 GatewaySource 的行为。
type GatewayOption func(*GatewaySource)

// WithHTTPClient 替换默认的 http.Client。
func WithHTTPClient(c *http.Client) GatewayOption {
	return func(g *GatewaySource) { g.client = c }
}

// WithMaxBytes 设置单个模块的大小上限。
func WithMaxBytes(n int64) GatewayOption {
	return func(g *GatewaySource) { g.maxBytes = n }
}

// NewGatewaySource 构造面向 HTTP 网关的模块来源。
func NewGatewaySource(baseURL string, log coordinator.Logger, opts ...GatewayOption) (*GatewaySource, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return nil, fmt.Errorf("module gateway base url is empty")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("module gateway base url: %w", err)
	}
	if log == nil {
		log = coordinator.StdLogger{}
	}
	g := &GatewaySource{
		baseURL:  strings.TrimRight(trimmed, "/"),
		client:   &http.Client{Timeout: defaultGatewayTimeout},
		maxBytes: defaultMaxModuleBytes,
		log:      log,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// FetchModule 通过网关下载指定引用的字节流。
func (g *GatewaySource) FetchModule(ctx context.Context, ref string) ([]byte, error) {
	if ref == "" {
		return nil, fmt.Errorf("empty module ref")
	}
	target := fmt.Sprintf("%s/%s", g.baseURL, strings.TrimLeft(ref, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("gateway %s status %s: %s", target, resp.Status, strings.TrimSpace(string(payload)))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, g.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", target, err)
	}
	if int64(len(data)) > g.maxBytes {
		return nil, fmt.Errorf("module %s larger than %d bytes", ref, g.maxBytes)
	}

	g.log.Infof("downloaded wasm module %s (%d bytes) via gateway", ref, len(data))
	return data, nil
}
