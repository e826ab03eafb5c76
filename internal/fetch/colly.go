package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// GetterConfig controls collector behavior.
type GetterConfig struct {
	UserAgent string
	Timeout   time.Duration
}

// CollyGetter issues single-page GETs through Colly, one collector clone per
// request so the proxy can differ every time.
type CollyGetter struct {
	cfg           GetterConfig
	baseCollector *colly.Collector
}

// NewCollyGetter builds a getter.
func NewCollyGetter(cfg GetterConfig) *CollyGetter {
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())
	return &CollyGetter{cfg: cfg, baseCollector: c}
}

// Get fetches url through the given proxy address ("host:port"). The status
// code is returned alongside transport errors so callers can distinguish an
// explicit denial from a dead proxy.
func (g *CollyGetter) Get(ctx context.Context, url, proxyAddr string) (int, []byte, error) {
	collector := g.baseCollector.Clone()
	if g.cfg.UserAgent != "" {
		collector.UserAgent = g.cfg.UserAgent
	}
	timeout := g.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	if proxyAddr != "" {
		if err := collector.SetProxy("http://" + proxyAddr); err != nil {
			return 0, nil, fmt.Errorf("set proxy: %w", err)
		}
	}

	var (
		status   int
		body     []byte
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return 0, nil, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return status, nil, fetchErr
		}
		if err != nil {
			return status, nil, fmt.Errorf("visit %s: %w", url, err)
		}
		return status, body, nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
