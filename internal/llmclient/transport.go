// internal/llmclient/transport.go
package llmclient

import (
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/xkilldash9x/pilot-cli/internal/config"
)

const (
	transportTLSHandshakeTimeout = 10 * time.Second
	transportIdleConnTimeout     = 90 * time.Second
	transportMaxIdleConns        = 10
)

// newGatewayTransport builds the RoundTripper shared by the gateway clients.
// Compression is negotiated and decoded here rather than by net/http so that
// brotli, which the standard transport does not speak, is available; gateway
// responses carry full page screenshots and compress well.
func newGatewayTransport(cfg config.GatewayConfig, logger *zap.Logger) http.RoundTripper {
	base := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		ForceAttemptHTTP2:   cfg.ForceHTTP2,
		MaxIdleConns:        transportMaxIdleConns,
		IdleConnTimeout:     transportIdleConnTimeout,
		TLSHandshakeTimeout: transportTLSHandshakeTimeout,
		// The decompressor below owns content negotiation.
		DisableCompression: true,
	}

	if cfg.ForceHTTP2 {
		if err := http2.ConfigureTransport(base); err != nil {
			logger.Warn("Failed to configure HTTP/2 transport, falling back to HTTP/1.1.", zap.Error(err))
		}
	}

	return &decompressor{next: base}
}

// decompressor is an http.RoundTripper that advertises brotli and gzip
// support and transparently decodes the response body.
type decompressor struct {
	next http.RoundTripper
}

func (d *decompressor) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "br, gzip")
	}

	resp, err := d.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	switch encoding {
	case "":
		return resp, nil
	case "br":
		resp.Body = &decodedBody{
			Reader:     brotli.NewReader(resp.Body),
			underlying: resp.Body,
		}
	case "gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("gzip initialization error: %w", err)
		}
		resp.Body = &decodedBody{
			Reader:     zr,
			underlying: resp.Body,
			closer:     zr,
		}
	default:
		// An encoding we never asked for; hand it through untouched.
		return resp, nil
	}

	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return resp, nil
}

// decodedBody closes both the decoder and the network body beneath it.
type decodedBody struct {
	io.Reader
	underlying io.ReadCloser
	closer     io.Closer
}

func (b *decodedBody) Close() error {
	var decodeErr error
	if b.closer != nil {
		decodeErr = b.closer.Close()
	}
	if err := b.underlying.Close(); err != nil {
		return err
	}
	return decodeErr
}
