package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/sudo-init-do/bidhub/internal/apperr"
	"github.com/sudo-init-do/bidhub/internal/respond"
)

const msgInternal = "Internal Server Error"

// ErrorHandler renders every error as {"status":"error","message":...}.
// Domain errors keep their message; anything unexpected is logged and
// reported as a bare 500.
func ErrorHandler(log logrus.FieldLogger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, msg := http.StatusInternalServerError, msgInternal
		if ae, ok := apperr.As(err); ok && ae.Kind != apperr.KindInternal {
			status, msg = ae.Kind.Status(), ae.Message
		} else if he := new(echo.HTTPError); errors.As(err, &he) {
			status = he.Code
			if m, ok := he.Message.(string); ok {
				msg = m
			} else {
				msg = http.StatusText(he.Code)
			}
		}

		if status >= http.StatusInternalServerError {
			log.WithError(err).WithFields(logrus.Fields{
				"method": c.Request().Method,
				"uri":    c.Request().RequestURI,
			}).Error("request failed")
			msg = msgInternal
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = respond.Error(c, status, msg)
	}
}
