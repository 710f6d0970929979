package service

import (
	"fmt"
	"strings"

	"mediafetch/internal/core/domain"
)

// audioExt pairs a video container with the audio extension yt-dlp can
// merge into it without re-encoding. Empty means any.
var audioExt = map[string]string{
	"webm": "webm",
	"mp4":  "m4a",
	"mkv":  "",
}

var contentTypes = map[string]string{
	"mp3":  "audio/mpeg",
	"m4a":  "audio/mp4",
	"opus": "audio/ogg",
	"ogg":  "audio/ogg",
	"webm": "video/webm",
	"mp4":  "video/mp4",
	"mkv":  "video/x-matroska",
	"mov":  "video/quicktime",
}

// ContentTypeFor returns the mimetype for a file extension, falling back to
// application/octet-stream.
func ContentTypeFor(ext string) string {
	if ct, ok := contentTypes[strings.ToLower(strings.TrimPrefix(ext, "."))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// Policy turns an OutputKind into a FormatPlan. It has no I/O and no failure
// path; kinds are validated before they get here.
type Policy struct {
	container    string
	audioBitrate string
}

// NewPolicy builds a Policy for the given video container (webm, mp4 or mkv)
// and mp3 bitrate.
func NewPolicy(container, audioBitrate string) Policy {
	if _, ok := audioExt[container]; !ok {
		container = "webm"
	}
	if audioBitrate == "" {
		audioBitrate = "192k"
	}
	return Policy{container: container, audioBitrate: audioBitrate}
}

// Resolve returns the plan for kind.
func (p Policy) Resolve(kind domain.OutputKind) domain.FormatPlan {
	switch kind {
	case domain.AudioOnly:
		return domain.FormatPlan{
			Selector: "bestaudio/best",
			PostProcess: []domain.PostProcessStep{
				{Kind: domain.AudioExtract, Codec: "mp3", Quality: p.audioBitrate},
			},
			OutputExt: "mp3",
		}
	default:
		return domain.FormatPlan{
			Selector: videoSelector(p.container),
			PostProcess: []domain.PostProcessStep{
				{Kind: domain.ContainerRemux, Codec: p.container},
			},
			MergeContainer: p.container,
			OutputExt:      p.container,
		}
	}
}

func videoSelector(container string) string {
	audio := "bestaudio"
	if ext := audioExt[container]; ext != "" {
		audio = fmt.Sprintf("bestaudio[ext=%s]", ext)
	}
	return fmt.Sprintf("bestvideo[ext=%[1]s]+%[2]s/best[ext=%[1]s]/best", container, audio)
}
