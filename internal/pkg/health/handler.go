package health

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handler serves the aggregated health response. DOWN answers 503;
// DEGRADED still answers 200 with the details in the body.
func Handler(s *Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		response := s.Response(c.Request().Context())

		status := http.StatusOK
		if response.Status == StatusDown {
			status = http.StatusServiceUnavailable
		}
		return c.JSON(status, response)
	}
}

// ReadinessHandler is strict: only UP is ready
func ReadinessHandler(s *Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		_, status := s.Check(c.Request().Context())
		if status == StatusUp {
			return c.String(http.StatusOK, "OK")
		}
		return c.String(http.StatusServiceUnavailable, "NOT READY")
	}
}

// LivenessHandler answers as long as the process can serve requests
func LivenessHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	}
}
