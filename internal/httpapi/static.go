package httpapi

import (
	"embed"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	"github.com/labstack/echo/v4"
)

const frontPage = "FrontPage.html"

// staticFiles bundles the front-end entry document.
//
//go:embed static/*
var staticFiles embed.FS

// index serves the front page, preferring an operator-supplied directory.
func (s *Server) index(c echo.Context) error {
	if s.cfg.FrontendDir != "" {
		path := filepath.Join(s.cfg.FrontendDir, frontPage)
		if _, err := os.Stat(path); err == nil {
			return c.File(path)
		}
		s.logger.Warn().Str("path", path).Msg("front page not found, serving bundled copy")
	}
	data, err := fs.ReadFile(staticFiles, "static/"+frontPage)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "Front page not found")
	}
	return c.HTMLBlob(http.StatusOK, data)
}
