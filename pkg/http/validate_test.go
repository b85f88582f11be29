package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type quoteRequest struct {
	Code  string   `param:"code" validate:"required,symbol"`
	Days  int      `query:"days" default:"30" validate:"gte=1,lte=365"`
	Tags  []string `json:"tags" validate:"max=2"`
	Model string   `json:"model" validate:"omitempty,oneof=lstm fallback"`
}

func bindQuote(t *testing.T, code, query, body string) (*quoteRequest, interface{}) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/quotes/"+code+query, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/quotes/:code")
	c.SetParamNames("code")
	c.SetParamValues(code)

	out := &quoteRequest{}
	return out, ReadAndValidateRequest(c, out)
}

func TestReadAndValidateAppliesDefaults(t *testing.T) {
	req, verr := bindQuote(t, "SFBT", "", `{}`)
	require.Nil(t, verr)
	assert.Equal(t, "SFBT", req.Code)
	assert.Equal(t, 30, req.Days)
}

func TestReadAndValidateReportsFields(t *testing.T) {
	_, verr := bindQuote(t, "SF$BT", "?days=900", `{"tags":["a","b","c"],"model":"arima"}`)
	errs, ok := verr.([]ValidationError)
	require.True(t, ok)

	byField := map[string]ValidationError{}
	for _, e := range errs {
		byField[e.Field] = e
	}
	require.Len(t, byField, 4)
	assert.Equal(t, "ERR_SYMBOL", byField["code"].Code)
	assert.Equal(t, "ERR_LTE", byField["days"].Code)
	assert.Equal(t, "365", byField["days"].Params["max"])
	assert.Equal(t, "tags must be at most 2 items", byField["tags"].Message)
	assert.Equal(t, []string{"lstm", "fallback"}, byField["model"].Params["options"])
}

func TestReadAndValidateMalformedBody(t *testing.T) {
	_, verr := bindQuote(t, "SFBT", "", `{"days":`)
	errs, ok := verr.([]ValidationError)
	require.True(t, ok)
	require.Len(t, errs, 1)
	assert.Equal(t, "ERR_MALFORMED", errs[0].Code)
}
