package sentiment

import (
	"context"
	"errors"
	"fmt"

	"MarketSignal/internal/domain/models"
	domsvc "MarketSignal/internal/domain/service"
	applogger "MarketSignal/pkg/logger"
)

var _ domsvc.SentimentProvider = (*Service)(nil)

// Service resolves instrument sentiment: the remote score first, then the
// lexicon over the service's news feed.
type Service struct {
	remote   *HTTPProvider
	analyzer *Analyzer
	l        *applogger.Logger
}

func NewService(remote *HTTPProvider, analyzer *Analyzer, l *applogger.Logger) *Service {
	if analyzer == nil {
		analyzer = NewAnalyzer()
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &Service{remote: remote, analyzer: analyzer, l: l}
}

func (s *Service) Analyzer() *Analyzer { return s.analyzer }

// StockSentiment never returns a zero Label. Without a remote service the
// result is neutral with no error. When the remote service is configured but
// both lookups fail, the neutral result is returned together with the error.
func (s *Service) StockSentiment(ctx context.Context, stock string) (models.Sentiment, error) {
	if !s.remote.Configured() {
		out := s.analyzer.StockSentiment(stock, nil)
		out.Source = SourceNeutral
		return out, nil
	}

	res, err := s.remote.StockSentiment(ctx, stock)
	if err == nil {
		return res, nil
	}
	s.l.Warn("remote sentiment failed, scoring news locally",
		applogger.String("stock", stock),
		applogger.Error(err))

	articles, newsErr := s.remote.News(ctx, stock)
	if newsErr != nil {
		out := models.NeutralSentiment(stock)
		out.Source = SourceNeutral
		return out, fmt.Errorf("sentiment %s: %w", stock, errors.Join(err, newsErr))
	}
	return s.analyzer.StockSentiment(stock, articles), nil
}
