package sentiment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketSignal/internal/domain/models"
	"MarketSignal/pkg/config"
	xhttp "MarketSignal/pkg/http"
)

func testProvider(url string) *HTTPProvider {
	return NewHTTPProvider(config.Sentiment{
		ServiceURL:     url,
		Timeout:        time.Second,
		RequestsPerSec: 1000,
		MaxElapsed:     2 * time.Second,
	}, nil)
}

func TestHTTPProviderStockSentiment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sentiment/SFBT", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"score": 0.42, "confidence": 0.8, "article_count": 4,
		})
	}))
	defer srv.Close()

	got, err := testProvider(srv.URL).StockSentiment(context.Background(), "SFBT")
	require.NoError(t, err)
	assert.Equal(t, "SFBT", got.Stock)
	assert.Equal(t, 0.42, got.Score)
	assert.Equal(t, "positive", got.Label)
	assert.Equal(t, 4, got.ArticleCount)
	assert.Equal(t, SourceRemote, got.Source)
}

func TestHTTPProviderRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"score": -0.5, "label": "negative"})
	}))
	defer srv.Close()

	got, err := testProvider(srv.URL).StockSentiment(context.Background(), "BIAT")
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, "negative", got.Label)
}

func TestHTTPProviderDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "unknown stock", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testProvider(srv.URL).StockSentiment(context.Background(), "NOPE")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	var se *xhttp.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
}

func TestHTTPProviderNotConfigured(t *testing.T) {
	p := testProvider("")
	assert.False(t, p.Configured())
	_, err := p.News(context.Background(), "SFBT")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestServiceFallsBackToLexicon(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/sentiment/SFBT":
			http.Error(w, "model offline", http.StatusServiceUnavailable)
		case "/api/news/SFBT":
			_ = json.NewEncoder(w).Encode(newsResponse{Articles: []models.Article{{Title: "Forte hausse"}}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := NewHTTPProvider(config.Sentiment{ServiceURL: srv.URL, Timeout: time.Second, RequestsPerSec: 1000, MaxElapsed: 300 * time.Millisecond}, nil)
	got, err := NewService(p, fixedAnalyzer(), nil).StockSentiment(context.Background(), "SFBT")
	require.NoError(t, err)
	assert.Equal(t, SourceLexicon, got.Source)
	assert.Equal(t, 1.0, got.Score)
	assert.Equal(t, 1, got.ArticleCount)
}

func TestServiceNeutralWhenAllSourcesFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	got, err := NewService(testProvider(srv.URL), fixedAnalyzer(), nil).StockSentiment(context.Background(), "SFBT")
	require.Error(t, err)
	assert.Equal(t, "neutral", got.Label)
	assert.Zero(t, got.Score)
	assert.Equal(t, SourceNeutral, got.Source)
}

func TestServiceWithoutRemoteIsNeutral(t *testing.T) {
	got, err := NewService(testProvider(""), fixedAnalyzer(), nil).StockSentiment(context.Background(), "SFBT")
	require.NoError(t, err)
	assert.Equal(t, "neutral", got.Label)
	assert.Equal(t, "2024-03-15", got.Date)
}
