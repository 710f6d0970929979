package httpapi

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"

	"mediafetch/internal/adapters/localstorage"
	"mediafetch/internal/core/domain"
)

type downloadRequest struct {
	VideoURL     string `json:"videoUrl"`
	DownloadType string `json:"downloadType"`
	MetadataOnly bool   `json:"metadataOnly"`
}

type metadataResponse struct {
	Success  bool    `json:"success"`
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
}

type messageBody struct {
	Message string `json:"message"`
}

func (s *Server) download(c echo.Context) error {
	var body downloadRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "Invalid request body"})
	}

	req, err := domain.NewJobRequest(body.VideoURL, body.DownloadType, c.Request().Header.Get("Range"))
	if err != nil {
		return s.writeJobError(c, err)
	}

	ctx := c.Request().Context()
	if body.MetadataOnly {
		info, err := s.deps.Jobs.Probe(ctx, req)
		if err != nil {
			return s.writeJobError(c, err)
		}
		return c.JSON(http.StatusOK, metadataResponse{Success: true, Title: info.Title, Duration: info.DurationSeconds})
	}

	d, err := s.deps.Jobs.Run(ctx, req)
	if err != nil {
		return s.writeJobError(c, err)
	}
	defer func() {
		if err := d.Close(); err != nil {
			s.logger.Warn().Err(err).Str("job_id", d.JobID).Msg("job cleanup failed")
		}
	}()
	return s.deliver(c, d)
}

func (s *Server) uploadCookies(c echo.Context) error {
	fh, err := c.FormFile("cookies")
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) && he.Code == http.StatusRequestEntityTooLarge {
			return err
		}
		return c.JSON(http.StatusBadRequest, errorBody{Error: "No file provided"})
	}
	if fh.Filename == "" {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "No file selected"})
	}
	if !strings.EqualFold(filepath.Ext(fh.Filename), ".txt") {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "Invalid file type. Please upload a .txt file"})
	}

	f, err := fh.Open()
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to open uploaded cookies")
		return c.JSON(http.StatusInternalServerError, errorBody{Error: "Failed to save cookies"})
	}
	defer f.Close()

	if err := s.deps.Cookies.Store(f); err != nil {
		if errors.Is(err, localstorage.ErrEmptyCookies) {
			return c.JSON(http.StatusBadRequest, errorBody{Error: "Cookie file is empty"})
		}
		s.logger.Error().Err(err).Msg("failed to store cookies")
		return c.JSON(http.StatusInternalServerError, errorBody{Error: "Failed to save cookies"})
	}
	s.logger.Info().Int64("bytes", fh.Size).Msg("cookie jar replaced")
	return c.JSON(http.StatusOK, messageBody{Message: "Cookies uploaded successfully"})
}

type healthBody struct {
	Status     string `json:"status"`
	Engine     bool   `json:"engine"`
	Transcoder bool   `json:"transcoder"`
}

func (s *Server) health(c echo.Context) error {
	h := healthBody{Status: "ok"}
	if s.deps.Engine != nil {
		h.Engine = s.deps.Engine.Available()
	}
	if s.deps.Transcoder != nil {
		h.Transcoder = s.deps.Transcoder.Available()
	}
	if !h.Engine {
		h.Status = "degraded"
		return c.JSON(http.StatusServiceUnavailable, h)
	}
	return c.JSON(http.StatusOK, h)
}
