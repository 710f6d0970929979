package httpapi

import (
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"syscall"

	"github.com/labstack/echo/v4"

	"mediafetch/internal/core/domain"
	"mediafetch/internal/service"
)

const copyBufferSize = 32 * 1024

// deliver writes the artifact. Cleanup is the caller's deferred Close, so it
// runs whether the transfer finished or the client went away.
func (s *Server) deliver(c echo.Context, d *service.Delivery) error {
	if d.Stream == nil {
		return s.serveFile(c, d)
	}
	return s.relay(c, d)
}

func setAttachmentHeaders(c echo.Context, d *service.Delivery) {
	h := c.Response().Header()
	h.Set(echo.HeaderContentDisposition, contentDisposition(d.Title, d.Ext))
	h.Set(echo.HeaderContentType, d.ContentType)
	h.Set("X-Content-Type-Options", "nosniff")
}

// serveFile hands a materialized artifact to http.ServeContent, which sets
// Content-Length and honours Range on the local copy.
func (s *Server) serveFile(c echo.Context, d *service.Delivery) error {
	f, err := os.Open(d.FilePath)
	if err != nil {
		return s.writeJobError(c, domain.NewError(domain.KindArtifactValidation, err))
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return s.writeJobError(c, domain.NewError(domain.KindArtifactValidation, err))
	}
	setAttachmentHeaders(c, d)
	http.ServeContent(c.Response(), c.Request(), "", fi.ModTime(), f)
	s.logger.Debug().Str("job_id", d.JobID).Int64("bytes", fi.Size()).Msg("file delivered")
	return nil
}

// relay copies the upstream body through a fixed buffer, so memory stays
// bounded by what the client has consumed.
func (s *Server) relay(c echo.Context, d *service.Delivery) error {
	st := d.Stream
	setAttachmentHeaders(c, d)
	h := c.Response().Header()
	h.Set("Accept-Ranges", "bytes")
	if st.ContentLength >= 0 {
		h.Set(echo.HeaderContentLength, strconv.FormatInt(st.ContentLength, 10))
	}
	status := http.StatusOK
	if st.StatusCode == http.StatusPartialContent && st.ContentRange != "" {
		h.Set("Content-Range", st.ContentRange)
		status = http.StatusPartialContent
	}
	c.Response().WriteHeader(status)

	buf := make([]byte, copyBufferSize)
	n, err := io.CopyBuffer(c.Response(), st.Body, buf)
	log := s.logger.Debug()
	if err != nil {
		log = s.logger.Info()
		if !isClientGone(err) && c.Request().Context().Err() == nil {
			log = s.logger.Warn()
		}
	}
	log.Err(err).Str("job_id", d.JobID).Int64("bytes", n).Msg("stream relayed")
	return nil
}

func isClientGone(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET)
}
