package ratelimit

import (
	"math"
	"strconv"

	"github.com/labstack/echo/v4"

	xhttp "MarketSignal/pkg/http"
)

// Config sizes the per-client bucket. A non-positive Capacity disables
// limiting.
type Config struct {
	Capacity     float64
	RefillPerSec float64
}

// Middleware limits each client IP and route pair to one bucket.
func Middleware(l *Limiter, cfg Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if l == nil || cfg.Capacity <= 0 {
				return next(c)
			}
			ok, wait := l.Reserve(c.RealIP()+":"+c.Path(), cfg.Capacity, cfg.RefillPerSec)
			if !ok {
				if wait > 0 {
					c.Response().Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				}
				return xhttp.AppErrorResponse(c, xhttp.RateLimitedError())
			}
			return next(c)
		}
	}
}
