package sentiment

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketSignal/internal/domain/models"
)

func fixedAnalyzer() *Analyzer {
	return &Analyzer{now: func() time.Time { return time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC) }}
}

func TestAnalyzeText(t *testing.T) {
	a := fixedAnalyzer()
	tests := []struct {
		name string
		text string
		want TextScore
	}{
		{"empty", "", TextScore{Label: "neutral"}},
		{"too short", "hausse", TextScore{Label: "neutral"}},
		{"short after trim", "   baisse \n\t ", TextScore{Label: "neutral"}},
		{"no hits", "Rien a signaler", TextScore{Label: "neutral", Confidence: 0.3}},
		{"positive french", "Forte HAUSSE et croissance du profit", TextScore{Score: 1, Label: "positive", Confidence: 0.6}},
		{"negative french", "La baisse et la crise", TextScore{Score: -1, Label: "negative", Confidence: 0.4}},
		{"mixed", "hausse malgre la baisse", TextScore{Score: 0, Label: "neutral", Confidence: 0.4}},
		{"arabic", "ارتفاع الأرباح", TextScore{Score: 1, Label: "positive", Confidence: 0.4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.AnalyzeText(tt.text))
		})
	}
}

func TestAnalyzeTextConfidenceCaps(t *testing.T) {
	got := fixedAnalyzer().AnalyzeText("hausse croissance profit record gain dividende expansion")
	assert.Equal(t, 1.0, got.Confidence)
	assert.Equal(t, 1.0, got.Score)
}

func TestAnalyzeArticleBlendsTitleAndBody(t *testing.T) {
	body := "Les marches ont connu une baisse puis une chute marquee cette semaine."
	require.Greater(t, len([]rune(body)), 50)

	got := fixedAnalyzer().AnalyzeArticle(models.Article{
		Title:   "Forte hausse",
		Content: body,
		URL:     "https://news.example/a",
		Date:    "2024-03-14",
	})
	assert.InDelta(t, 0.2, got.Score, 1e-9)
	assert.Equal(t, "neutral", got.Label)
	assert.InDelta(t, 0.3, got.Confidence, 1e-9)
	assert.Equal(t, "https://news.example/a", got.URL)
	assert.Equal(t, "2024-03-14", got.Date)
}

func TestAnalyzeArticleShortBodyUsesTitle(t *testing.T) {
	got := fixedAnalyzer().AnalyzeArticle(models.Article{Title: "Forte hausse", Description: "court"})
	assert.Equal(t, 1.0, got.Score)
	assert.Equal(t, "positive", got.Label)
	assert.InDelta(t, 0.14, got.Confidence, 1e-9)
}

func TestAnalyzeArticleTruncatesBody(t *testing.T) {
	body := strings.Repeat("x", 1000) + " baisse"
	got := fixedAnalyzer().AnalyzeArticle(models.Article{Title: "Forte hausse", Content: body})
	// (1*1.5 + 0) / 2.5
	assert.InDelta(t, 0.6, got.Score, 1e-9)
}

func TestStockSentimentWeightsRecentArticles(t *testing.T) {
	got := fixedAnalyzer().StockSentiment("SFBT", []models.Article{
		{Title: "Forte hausse"},
		{Title: "Forte baisse"},
	})
	assert.Equal(t, "SFBT", got.Stock)
	assert.Equal(t, "2024-03-15", got.Date)
	assert.InDelta(t, 0.111, got.Score, 1e-9)
	assert.Equal(t, "neutral", got.Label)
	// mean article confidence 0.14, coverage 2/5
	assert.InDelta(t, 0.27, got.Confidence, 1e-9)
	assert.Equal(t, 2, got.ArticleCount)
	assert.Len(t, got.Articles, 2)
	assert.Equal(t, SourceLexicon, got.Source)
}

func TestStockSentimentCapsArticles(t *testing.T) {
	arts := make([]models.Article, 7)
	for i := range arts {
		arts[i] = models.Article{Title: "croissance"}
	}
	got := fixedAnalyzer().StockSentiment("BIAT", arts)
	assert.Equal(t, 7, got.ArticleCount)
	assert.Len(t, got.Articles, 5)
	assert.InDelta(t, 0.57, got.Confidence, 1e-9)
	assert.Equal(t, "positive", got.Label)
}

func TestStockSentimentConfidence(t *testing.T) {
	body := "La croissance du profit et un dividende record portent le titre."
	tests := []struct {
		name     string
		articles []models.Article
		want     float64
	}{
		{"one short article", []models.Article{{Title: "Forte hausse"}}, 0.17},
		{"one full article", []models.Article{{Title: "Forte hausse", Content: body}}, 0.35},
		{"short titles only", []models.Article{{Title: "hausse"}, {Title: "baisse"}}, 0.2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fixedAnalyzer().StockSentiment("SFBT", tt.articles)
			assert.InDelta(t, tt.want, got.Confidence, 1e-9)
		})
	}
}

func TestStockSentimentEmpty(t *testing.T) {
	got := fixedAnalyzer().StockSentiment("SFBT", nil)
	assert.Zero(t, got.Score)
	assert.Equal(t, "neutral", got.Label)
	assert.Zero(t, got.Confidence)
	assert.Zero(t, got.ArticleCount)
}

func TestMarketSentiment(t *testing.T) {
	a := fixedAnalyzer()
	got := a.MarketSentiment([]models.Sentiment{
		{Score: 0.5, ArticleCount: 3},
		{Score: 0.1, ArticleCount: 1},
		{Score: 0.9, ArticleCount: 0},
	})
	assert.InDelta(t, 0.3, got.Score, 1e-9)
	assert.Equal(t, "bullish", got.Label)
	assert.InDelta(t, 0.667, got.Confidence, 1e-9)

	bear := a.MarketSentiment([]models.Sentiment{{Score: -0.4, ArticleCount: 2}})
	assert.Equal(t, "bearish", bear.Label)

	empty := a.MarketSentiment(nil)
	assert.Equal(t, "neutral", empty.Label)
	assert.Zero(t, empty.Confidence)
}

func TestZeroAnalyzerIsUsable(t *testing.T) {
	var a Analyzer
	got := a.StockSentiment("SFBT", nil)
	assert.NotEmpty(t, got.Date)
}
