package models

// Sentiment labels.
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
	SentimentBullish  = "bullish"
	SentimentBearish  = "bearish"
)

// Sentiment is a score in [-1, 1] for an instrument or a text.
type Sentiment struct {
	Stock        string          `json:"stock,omitempty"`
	Date         string          `json:"date,omitempty"`
	Score        float64         `json:"score"`
	Label        string          `json:"label"`
	Confidence   float64         `json:"confidence"`
	ArticleCount int             `json:"article_count"`
	Articles     []ArticleResult `json:"articles,omitempty"`
	Source       string          `json:"source,omitempty"`
}

// Neutral returns a zero-score sentiment for stock.
func NeutralSentiment(stock string) Sentiment {
	return Sentiment{Stock: stock, Label: SentimentNeutral}
}

type Article struct {
	Title       string `json:"title"`
	Content     string `json:"content"`
	Description string `json:"description"`
	Language    string `json:"language"`
	URL         string `json:"url"`
	Date        string `json:"date"`
}

type ArticleResult struct {
	Score      float64 `json:"score"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	URL        string  `json:"url"`
	Date       string  `json:"date"`
}
