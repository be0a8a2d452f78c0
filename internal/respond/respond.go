// Package respond writes the JSON success envelope shared by all handlers.
package respond

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// OK writes {"status":"success","data":data}.
func OK(c echo.Context, status int, data echo.Map) error {
	return c.JSON(status, echo.Map{"status": "success", "data": data})
}

// List is OK with a "results" count.
func List(c echo.Context, results int, data echo.Map) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "success", "results": results, "data": data})
}

// Token is OK with the issued token alongside the data.
func Token(c echo.Context, status int, token string, data echo.Map) error {
	return c.JSON(status, echo.Map{"status": "success", "token": token, "data": data})
}

// Message writes {"status":"success","message":msg}.
func Message(c echo.Context, msg string) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "success", "message": msg})
}

func Error(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{"status": "error", "message": msg})
}
