// Package sentiment scores news text and resolves per-instrument sentiment
// from a remote service, with a French/Arabic lexicon analyzer as fallback.
package sentiment

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"MarketSignal/internal/domain/models"
	xutil "MarketSignal/pkg/util"
)

const (
	textLabelThreshold   = 0.2
	marketLabelThreshold = 0.1
	titleWeight          = 1.5
	minContentRunes      = 50
	maxContentRunes      = 1000
	shortArticlePenalty  = 0.7
	articleDecay         = 0.8
	maxArticles          = 5
	fullConfidenceHits   = 5
	noHitConfidence      = 0.3
	minTextRunes         = 10
)

var (
	positiveFR = []string{
		"hausse", "augmentation", "croissance", "profit", "benefice", "bénéfice",
		"succes", "succès", "progression", "amelioration", "amélioration", "record",
		"gain", "optimiste", "performance", "dividende", "expansion", "favorable",
	}
	negativeFR = []string{
		"baisse", "chute", "perte", "deficit", "déficit", "crise", "recul",
		"degradation", "dégradation", "effondrement", "risque", "difficile",
		"pessimiste", "dette", "faillite", "inquietude", "inquiétude",
	}
	positiveAR = []string{
		"ارتفاع", "نمو", "ربح", "أرباح", "مكاسب", "نجاح", "تحسن", "تقدم",
		"صعود", "انتعاش", "استقرار", "توزيعات", "إيجابي",
	}
	negativeAR = []string{
		"انخفاض", "خسارة", "خسائر", "أزمة", "تراجع", "هبوط", "انهيار",
		"إفلاس", "عجز", "ديون", "سلبي", "ضعيف",
	}
)

// TextScore is the lexicon result for a single piece of text.
type TextScore struct {
	Score      float64 `json:"score"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Analyzer is a keyword-count sentiment scorer. It is stateless and safe for
// concurrent use.
type Analyzer struct {
	now func() time.Time
}

func NewAnalyzer() *Analyzer {
	return &Analyzer{now: time.Now}
}

// AnalyzeText counts lexicon hits in text. Each word counts at most once.
// Text under ten characters is neutral with no confidence.
func (a *Analyzer) AnalyzeText(text string) TextScore {
	if utf8.RuneCountInString(strings.TrimSpace(text)) < minTextRunes {
		return TextScore{Label: models.SentimentNeutral}
	}
	lower := strings.ToLower(text)
	pos := countHits(lower, positiveFR) + countHits(text, positiveAR)
	neg := countHits(lower, negativeFR) + countHits(text, negativeAR)

	total := pos + neg
	if total == 0 {
		return TextScore{Label: models.SentimentNeutral, Confidence: noHitConfidence}
	}
	score := float64(pos-neg) / float64(total)
	return TextScore{
		Score:      xutil.Round(score, 3),
		Label:      textLabel(score),
		Confidence: xutil.Round(math.Min(float64(total)/fullConfidenceHits, 1), 3),
	}
}

// AnalyzeArticle weighs the title 1.5 against the body when the body is long
// enough to be meaningful, otherwise scores the title alone with reduced
// confidence.
func (a *Analyzer) AnalyzeArticle(article models.Article) models.ArticleResult {
	content := article.Content
	if content == "" {
		content = article.Description
	}

	title := a.AnalyzeText(article.Title)
	var score, confidence float64
	if body := []rune(content); len(body) > minContentRunes {
		if len(body) > maxContentRunes {
			body = body[:maxContentRunes]
		}
		c := a.AnalyzeText(string(body))
		score = (title.Score*titleWeight + c.Score) / (titleWeight + 1)
		confidence = (title.Confidence + c.Confidence) / 2
	} else {
		score = title.Score
		confidence = title.Confidence * shortArticlePenalty
	}

	return models.ArticleResult{
		Score:      xutil.Round(score, 3),
		Label:      textLabel(score),
		Confidence: xutil.Round(confidence, 3),
		URL:        article.URL,
		Date:       article.Date,
	}
}

// StockSentiment aggregates articles, most recent first, with weights 0.8^i.
// Confidence averages the mean article confidence with article coverage.
func (a *Analyzer) StockSentiment(stock string, articles []models.Article) models.Sentiment {
	out := models.Sentiment{
		Stock:  stock,
		Date:   a.today(),
		Label:  models.SentimentNeutral,
		Source: SourceLexicon,
	}
	if len(articles) == 0 {
		return out
	}

	results := make([]models.ArticleResult, len(articles))
	var sum, wsum, conf float64
	w := 1.0
	for i, art := range articles {
		results[i] = a.AnalyzeArticle(art)
		sum += results[i].Score * w
		wsum += w
		w *= articleDecay
		conf += results[i].Confidence
	}
	score := sum / wsum
	coverage := math.Min(float64(len(articles))/fullConfidenceHits, 1)

	if len(results) > maxArticles {
		results = results[:maxArticles]
	}
	out.Score = xutil.Round(score, 3)
	out.Label = textLabel(score)
	out.Confidence = xutil.Round((conf/float64(len(articles))+coverage)/2, 3)
	out.ArticleCount = len(articles)
	out.Articles = results
	return out
}

// MarketSentiment averages the instruments that had at least one article.
func (a *Analyzer) MarketSentiment(stocks []models.Sentiment) models.Sentiment {
	out := models.Sentiment{
		Date:   a.today(),
		Label:  models.SentimentNeutral,
		Source: SourceLexicon,
	}
	if len(stocks) == 0 {
		return out
	}

	var sum float64
	n := 0
	for _, s := range stocks {
		if s.ArticleCount > 0 {
			sum += s.Score
			n++
		}
	}
	var avg float64
	if n > 0 {
		avg = sum / float64(n)
	}

	out.Score = xutil.Round(avg, 3)
	switch {
	case avg > marketLabelThreshold:
		out.Label = models.SentimentBullish
	case avg < -marketLabelThreshold:
		out.Label = models.SentimentBearish
	}
	out.Confidence = xutil.Round(float64(n)/float64(len(stocks)), 3)
	out.ArticleCount = n
	return out
}

func (a *Analyzer) today() string {
	now := time.Now
	if a.now != nil {
		now = a.now
	}
	return now().Format(xutil.DateLayout)
}

func countHits(text string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(text, w) {
			n++
		}
	}
	return n
}

func textLabel(score float64) string {
	switch {
	case score > textLabelThreshold:
		return models.SentimentPositive
	case score < -textLabelThreshold:
		return models.SentimentNegative
	default:
		return models.SentimentNeutral
	}
}
