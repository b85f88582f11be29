package sentiment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"MarketSignal/internal/domain/models"
	"MarketSignal/pkg/config"
	xhttp "MarketSignal/pkg/http"
	applogger "MarketSignal/pkg/logger"
)

// Sources recorded on a resolved Sentiment.
const (
	SourceRemote  = "remote"
	SourceLexicon = "lexicon"
	SourceNeutral = "neutral"
)

// ErrNotConfigured is returned by an HTTPProvider without a base URL.
var ErrNotConfigured = errors.New("sentiment service not configured")

type newsResponse struct {
	Articles []models.Article `json:"articles"`
}

// HTTPProvider talks to the news-sentiment service. Calls are rate limited
// and transient failures retried with exponential backoff.
type HTTPProvider struct {
	baseURL    string
	client     *xhttp.Client
	limiter    *rate.Limiter
	maxElapsed time.Duration
	l          *applogger.Logger
}

// NewHTTPProvider builds a provider from config. An empty service URL yields
// a provider whose calls fail with ErrNotConfigured.
func NewHTTPProvider(cfg config.Sentiment, l *applogger.Logger) *HTTPProvider {
	if l == nil {
		l = applogger.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 5
	}
	return &HTTPProvider{
		baseURL:    strings.TrimRight(cfg.ServiceURL, "/"),
		client:     xhttp.NewClient(xhttp.WithBaseURL(cfg.ServiceURL), xhttp.WithTimeout(timeout)),
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		maxElapsed: cfg.MaxElapsed,
		l:          l.With(applogger.String("component", "sentiment_http")),
	}
}

// Configured reports whether a service URL is set.
func (p *HTTPProvider) Configured() bool {
	return p != nil && p.baseURL != ""
}

// StockSentiment fetches the service's own score for stock.
func (p *HTTPProvider) StockSentiment(ctx context.Context, stock string) (models.Sentiment, error) {
	var out models.Sentiment
	if err := p.getJSON(ctx, "/api/sentiment/"+url.PathEscape(stock), &out); err != nil {
		return models.Sentiment{}, err
	}
	if out.Stock == "" {
		out.Stock = stock
	}
	if out.Label == "" {
		out.Label = textLabel(out.Score)
	}
	out.Source = SourceRemote
	return out, nil
}

// News fetches recent articles for stock, newest first.
func (p *HTTPProvider) News(ctx context.Context, stock string) ([]models.Article, error) {
	var out newsResponse
	if err := p.getJSON(ctx, "/api/news/"+url.PathEscape(stock), &out); err != nil {
		return nil, err
	}
	return out.Articles, nil
}

func (p *HTTPProvider) getJSON(ctx context.Context, path string, dest interface{}) error {
	if !p.Configured() {
		return ErrNotConfigured
	}

	op := func() error {
		if err := p.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		err := p.client.GetJSON(ctx, path, nil, dest)
		if err == nil {
			return nil
		}
		var se *xhttp.StatusError
		if errors.As(err, &se) && !se.Temporary() {
			return backoff.Permanent(err)
		}
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxElapsedTime = p.maxElapsed
	notify := func(err error, wait time.Duration) {
		p.l.Debug("sentiment request retry",
			applogger.String("path", path),
			applogger.Duration("wait_ms", wait),
			applogger.Error(err))
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(bo, ctx), notify); err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	return nil
}
