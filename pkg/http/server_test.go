package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingHandler struct{}

func (pingHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ping", func(c echo.Context) error { return SuccessResponse(c, "pong") })
	e.GET("/boom", func(c echo.Context) error { return AppErrorResponse(c, NotFoundError("no price history")) })
}

func serve(s *Server, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServerRoutesAndEnvelope(t *testing.T) {
	s := NewServer(pingHandler{})

	rec := serve(s, "/ping")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":200,"message":"OK","data":"pong"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	rec = serve(s, "/boom")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"status":404,"message":"Not Found","data":[{"code":"ERR_NOT_FOUND","message":"no price history"}]}`, rec.Body.String())
}

func TestServerMetricsPath(t *testing.T) {
	assert.Equal(t, http.StatusOK, serve(NewServer(nil), "/metrics").Code)
	assert.Equal(t, http.StatusOK, serve(NewServer(nil, WithMetricsPath("/internal/metrics")), "/internal/metrics").Code)
	assert.Equal(t, http.StatusNotFound, serve(NewServer(nil, WithMetricsPath("")), "/metrics").Code)
}

func TestServerAddr(t *testing.T) {
	cfg := &ServerConfig{Host: "127.0.0.1", Port: 9090}
	assert.Equal(t, "127.0.0.1:9090", cfg.addr())

	s := NewServer(nil, WithHost(""), WithPort(8081))
	assert.Equal(t, "0.0.0.0:8081", s.config.addr())
}

func TestAppErrorResponseHidesUnknownErrors(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	require.NoError(t, AppErrorResponse(c, assert.AnError))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), CodeInternal)
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
}
