package ytdlp

import (
	"strings"

	"mediafetch/internal/core/domain"
)

// infoJSON is the subset of yt-dlp --dump-single-json output we consume.
type infoJSON struct {
	Type             string            `json:"_type"`
	ID               string            `json:"id"`
	Title            string            `json:"title"`
	Duration         float64           `json:"duration"`
	IsLive           bool              `json:"is_live"`
	LiveStatus       string            `json:"live_status"`
	URL              string            `json:"url"`
	Ext              string            `json:"ext"`
	Protocol         string            `json:"protocol"`
	Filesize         int64             `json:"filesize"`
	HTTPHeaders      map[string]string `json:"http_headers"`
	RequestedFormats []formatJSON      `json:"requested_formats"`
}

type formatJSON struct {
	FormatID string `json:"format_id"`
	Ext      string `json:"ext"`
	URL      string `json:"url"`
	Protocol string `json:"protocol"`
}

// toResult maps engine output onto the domain model. A direct URL is only
// reported when the selector resolved to one progressive http(s) format;
// merged or segmented (HLS/DASH) selections need the engine to materialize.
func (i *infoJSON) toResult() *domain.ExtractionResult {
	res := &domain.ExtractionResult{
		Title:           i.Title,
		DurationSeconds: i.Duration,
		IsLive:          i.IsLive || i.LiveStatus == "is_live" || i.LiveStatus == "is_upcoming",
	}
	if len(i.RequestedFormats) == 0 && i.URL != "" && isProgressive(i.Protocol) {
		res.DirectURL = i.URL
		res.DirectExt = i.Ext
		res.DirectSize = i.Filesize
		if len(i.HTTPHeaders) > 0 {
			res.DirectHeaders = i.HTTPHeaders
		}
	}
	return res
}

func isProgressive(protocol string) bool {
	switch strings.ToLower(protocol) {
	case "http", "https":
		return true
	default:
		return false
	}
}
