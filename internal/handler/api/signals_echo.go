package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"MarketSignal/internal/domain/models"
	"MarketSignal/internal/repository/artifacts"
	"MarketSignal/internal/service/metrics"
	"MarketSignal/internal/service/ratelimit"
	"MarketSignal/internal/services/anomaly"
	"MarketSignal/internal/services/decision"
	"MarketSignal/internal/services/prediction"
	"MarketSignal/internal/services/sentiment"
	"MarketSignal/internal/services/stats"
	"MarketSignal/internal/usecase"
	xhttp "MarketSignal/pkg/http"
	xlogger "MarketSignal/pkg/logger"
	"MarketSignal/pkg/queue"
	xutil "MarketSignal/pkg/util"
)

// HealthChecker is a dependency probed by the health endpoint.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Deps are the collaborators of SignalsEchoHandler. Checks, Limiter, Ingest
// and Refresh may be empty.
type Deps struct {
	Logger    *xlogger.Logger
	Pipeline  *usecase.SignalPipeline
	History   *usecase.HistoryUseCase
	Ingest    *usecase.BarIngest
	Predictor *prediction.Engine
	Detector  *anomaly.Engine
	Analyzer  *sentiment.Analyzer
	Artifacts *artifacts.Set
	Limiter   *ratelimit.Limiter
	RateLimit ratelimit.Config
	Refresh   queue.Enqueuer
	Checks    map[string]HealthChecker
}

// SignalsEchoHandler serves the scoring API.
type SignalsEchoHandler struct {
	Deps
}

func NewSignalsEchoHandler(d Deps) *SignalsEchoHandler {
	if d.Logger == nil {
		d.Logger = xlogger.NewNop()
	}
	if d.Analyzer == nil {
		d.Analyzer = sentiment.NewAnalyzer()
	}
	return &SignalsEchoHandler{Deps: d}
}

func (h *SignalsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/health", h.Health)

	scored := g.Group("", ratelimit.Middleware(h.Limiter, h.RateLimit))
	scored.POST("/predict", h.observe("predict", h.Predict))
	scored.POST("/stats", h.observe("stats", h.Stats))
	scored.POST("/anomaly", h.observe("anomaly", h.Anomaly))
	scored.POST("/anomaly/batch", h.observe("anomaly_batch", h.AnomalyBatch))
	scored.POST("/recommend", h.observe("recommend", h.Recommend))
	scored.POST("/sentiment/analyze", h.observe("sentiment_analyze", h.AnalyzeSentiment))

	stocks := scored.Group("/stocks/:code")
	stocks.GET("/history", h.observe("stock_history", h.StockHistory))
	stocks.POST("/bars", h.observe("stock_bars", h.StockBars))
	stocks.GET("/prediction", h.observe("stock_prediction", h.StockPrediction))
	stocks.GET("/stats", h.observe("stock_stats", h.StockStats))
	stocks.GET("/anomaly", h.observe("stock_anomaly", h.StockAnomaly))
	stocks.GET("/sentiment", h.observe("stock_sentiment", h.StockSentiment))
	stocks.GET("/recommendation", h.observe("stock_recommendation", h.StockRecommendation))
	stocks.POST("/refresh", h.observe("stock_refresh", h.StockRefresh))
}

func (h *SignalsEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	checks := make(map[string]string, len(h.Checks))
	for name, chk := range h.Checks {
		if chk == nil {
			continue
		}
		if err := chk.Health(ctx); err != nil {
			status = "degraded"
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"status":                  status,
		"prediction_model_loaded": h.Predictor != nil && h.Predictor.ModelLoaded(),
		"anomaly_ml_enabled":      h.Detector != nil && h.Detector.MLEnabled(),
		"horizons":                h.Artifacts.LoadedHorizons(),
		"checks":                  checks,
	})
}

func (h *SignalsEchoHandler) Predict(c echo.Context) error {
	req := &models.PredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()

	var (
		res models.PredictionResult
		err error
	)
	if len(req.History) > 0 {
		res, err = h.Predictor.PredictWithMarket(ctx, req.Stock, req.History, req.Market)
	} else {
		res, err = h.Predictor.PredictFeatures(ctx, req.Stock, req.Features)
	}
	if err != nil {
		return h.fail(c, "predict", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *SignalsEchoHandler) Stats(c echo.Context) error {
	req := &models.StatsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.SuccessResponse(c, stats.Compute(req.History))
}

func (h *SignalsEchoHandler) Anomaly(c echo.Context) error {
	req := &models.AnomalyInput{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.SuccessResponse(c, h.Detector.Detect(c.Request().Context(), req.Stock, req.Current, req.Historical))
}

func (h *SignalsEchoHandler) AnomalyBatch(c echo.Context) error {
	req := &models.AnomalyBatchRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	out := h.Detector.DetectBatch(c.Request().Context(), req.Items)
	return xhttp.ListResponse(c, out, int64(len(out)))
}

func (h *SignalsEchoHandler) Recommend(c echo.Context) error {
	req := &models.RecommendRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.SuccessResponse(c, decision.Recommend(req.Prediction, req.SentimentScore, req.AnomalySeverity))
}

func (h *SignalsEchoHandler) AnalyzeSentiment(c echo.Context) error {
	req := &models.AnalyzeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if len(req.Articles) > 0 {
		return xhttp.SuccessResponse(c, h.Analyzer.StockSentiment(req.Stock, req.Articles))
	}
	return xhttp.SuccessResponse(c, h.Analyzer.AnalyzeText(req.Text))
}

func (h *SignalsEchoHandler) StockHistory(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.History.GetHistory(c.Request().Context(), usecase.GetHistoryParams{
		Symbol: req.Code,
		Days:   req.Days,
		Limit:  req.Limit,
	})
	if err != nil {
		return h.fail(c, "stock_history", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.SuccessResponse(c, res)
}

// StockBars stores daily bars for the instrument.
func (h *SignalsEchoHandler) StockBars(c echo.Context) error {
	req := &models.IngestBarsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.Ingest == nil {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("bar ingestion disabled"))
	}
	res, err := h.Ingest.Ingest(c.Request().Context(), req.Code, req.Bars)
	if err != nil {
		return h.fail(c, "stock_bars", err)
	}
	return xhttp.DataResponse(c, http.StatusCreated, res)
}

func (h *SignalsEchoHandler) StockPrediction(c echo.Context) error {
	return h.byStock(c, "stock_prediction", func(ctx context.Context, code string) (interface{}, error) {
		return h.Pipeline.Prediction(ctx, code)
	})
}

func (h *SignalsEchoHandler) StockStats(c echo.Context) error {
	return h.byStock(c, "stock_stats", func(ctx context.Context, code string) (interface{}, error) {
		return h.Pipeline.Stats(ctx, code)
	})
}

func (h *SignalsEchoHandler) StockAnomaly(c echo.Context) error {
	return h.byStock(c, "stock_anomaly", func(ctx context.Context, code string) (interface{}, error) {
		return h.Pipeline.Anomaly(ctx, code)
	})
}

// StockSentiment answers with a neutral score when every source fails.
func (h *SignalsEchoHandler) StockSentiment(c echo.Context) error {
	return h.byStock(c, "stock_sentiment", func(ctx context.Context, code string) (interface{}, error) {
		s, err := h.Pipeline.Sentiment(ctx, code)
		if err != nil && !errors.Is(err, usecase.ErrInvalidStock) {
			h.Logger.Warn("sentiment degraded to neutral",
				xlogger.String("stock", code),
				xlogger.Error(err))
			return s, nil
		}
		return s, err
	})
}

func (h *SignalsEchoHandler) StockRecommendation(c echo.Context) error {
	return h.byStock(c, "stock_recommendation", func(ctx context.Context, code string) (interface{}, error) {
		return h.Pipeline.Run(ctx, code)
	})
}

// StockRefresh queues a background recomputation of the signal.
func (h *SignalsEchoHandler) StockRefresh(c echo.Context) error {
	req := &models.StockRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.Refresh == nil {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("refresh queue disabled"))
	}
	stock := xutil.NormalizeSymbol(req.Code)
	if stock == "" {
		return h.fail(c, "stock_refresh", usecase.ErrInvalidStock)
	}
	if err := h.Refresh.Enqueue(c.Request().Context(), usecase.RefreshJobType, usecase.RefreshRequest{Stock: stock}); err != nil {
		return h.fail(c, "stock_refresh", err)
	}
	return xhttp.DataResponse(c, http.StatusAccepted, map[string]interface{}{
		"stock":  stock,
		"queued": true,
	})
}

func (h *SignalsEchoHandler) byStock(c echo.Context, endpoint string, fn func(context.Context, string) (interface{}, error)) error {
	req := &models.StockRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := fn(c.Request().Context(), req.Code)
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	return xhttp.SuccessResponse(c, res)
}

// observe records the endpoint latency.
func (h *SignalsEchoHandler) observe(endpoint string, next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		defer func() { metrics.ObserveEndpoint(endpoint, time.Since(start)) }()
		return next(c)
	}
}

// fail maps a use case error onto an API error response.
func (h *SignalsEchoHandler) fail(c echo.Context, endpoint string, err error) error {
	appErr := toAppError(err)
	metrics.EndpointFailed(endpoint, appErr.Code)
	if appErr.Status >= http.StatusInternalServerError {
		h.Logger.Error(endpoint+" failed", xlogger.Error(err))
	} else {
		h.Logger.Debug(endpoint+" rejected", xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

func toAppError(err error) *xhttp.AppError {
	var inputErr *prediction.InputError
	switch {
	case errors.As(err, &inputErr):
		return xhttp.FieldError(inputErr.Field, inputErr.Reason).WithError(err)
	case errors.Is(err, usecase.ErrInvalidStock), errors.Is(err, usecase.ErrInvalidRange),
		errors.Is(err, usecase.ErrInvalidBar):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, queue.ErrNotRunning):
		return xhttp.UnavailableError("refresh queue not running").WithError(err)
	case errors.Is(err, usecase.ErrNoHistory):
		return xhttp.NotFoundError(err.Error()).WithError(err)
	case errors.Is(err, context.DeadlineExceeded):
		return xhttp.TimeoutError("request timed out").WithError(err)
	default:
		return xhttp.InternalError("internal error").WithError(err)
	}
}
