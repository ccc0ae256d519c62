package server

import (
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

const realtimePath = "/api/v1/realtime"

// skipRealtime exempts websocket upgrades, which hijack the connection, from the timeout writer
func skipRealtime(c echo.Context) bool {
	return c.Request().URL.Path == realtimePath
}

// rateLimit spreads requests evenly over window
func rateLimit(requests int, window time.Duration) rate.Limit {
	if window <= 0 {
		return rate.Limit(requests)
	}
	return rate.Limit(float64(requests) / window.Seconds())
}
