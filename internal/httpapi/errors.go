package httpapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"mediafetch/internal/core/domain"
)

type errorBody struct {
	Error string `json:"error"`
}

// writeJobError renders a classified failure. Only the stable message goes
// to the client; the cause stays in the log.
func (s *Server) writeJobError(c echo.Context, err error) error {
	je := domain.Classify(err)
	ev := s.logger.Warn()
	if je.Kind.HTTPStatus() >= 500 {
		ev = s.logger.Error()
	}
	ev.Err(err).
		Str("kind", je.Kind.String()).
		Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
		Msg("request failed")
	return c.JSON(je.Kind.HTTPStatus(), errorBody{Error: je.Message})
}

// handleError keeps every framework error in the {"error": ...} shape.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	msg := domain.MsgInternal
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok && code < 500 {
			msg = m
		} else if code < 500 {
			msg = http.StatusText(code)
		}
	}
	if code >= 500 {
		s.logger.Error().Err(err).Str("uri", c.Request().RequestURI).Msg("unhandled error")
	}
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, errorBody{Error: msg})
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to write error response")
	}
}
