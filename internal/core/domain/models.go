package domain

import (
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// OutputKind is the coarse shape of the artifact a client asked for.
type OutputKind string

const (
	AudioOnly      OutputKind = "mp3"
	MuxedContainer OutputKind = "video"
)

// ParseOutputKind maps a client downloadType onto an OutputKind.
// "webm" is accepted as an alias for video; older front ends sent it.
func ParseOutputKind(s string) (OutputKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mp3":
		return AudioOnly, true
	case "video", "webm":
		return MuxedContainer, true
	default:
		return "", false
	}
}

var rangeHintRe = regexp.MustCompile(`^bytes=\d*-\d*$`)

// JobRequest is a validated download request. Immutable once built.
type JobRequest struct {
	SourceURL  string
	OutputKind OutputKind
	RangeHint  string // raw "bytes=a-b" header, empty when absent
}

// NewJobRequest validates raw client input. No I/O happens here.
func NewJobRequest(rawURL, downloadType, rangeHeader string) (JobRequest, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" || strings.TrimSpace(downloadType) == "" {
		return JobRequest{}, InvalidRequest("Missing required fields")
	}
	kind, ok := ParseOutputKind(downloadType)
	if !ok {
		return JobRequest{}, InvalidRequest("Invalid download type")
	}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return JobRequest{}, InvalidRequest("Invalid video URL")
	}

	req := JobRequest{SourceURL: u.String(), OutputKind: kind}
	if r := strings.TrimSpace(rangeHeader); r != "" && rangeHintRe.MatchString(r) && r != "bytes=-" {
		req.RangeHint = r
	}
	return req, nil
}

// ExtractionIdentity is the outbound HTTP persona used for one job.
type ExtractionIdentity struct {
	Profile             string
	UserAgent           string
	AcceptLanguage      string
	AcceptEncoding      string
	Referer             string
	Origin              string
	SecFetchDest        string
	SecFetchMode        string
	SecFetchSite        string
	DNT                 bool
	ThrottleBytesPerSec int64
}

// Headers returns the identity as request headers. Accept-Encoding is left to
// the caller because Go's transport only decodes gzip it negotiated itself.
func (id ExtractionIdentity) Headers() map[string]string {
	h := map[string]string{
		"User-Agent":      id.UserAgent,
		"Accept-Language": id.AcceptLanguage,
		"Referer":         id.Referer,
		"Origin":          id.Origin,
		"Sec-Fetch-Dest":  id.SecFetchDest,
		"Sec-Fetch-Mode":  id.SecFetchMode,
		"Sec-Fetch-Site":  id.SecFetchSite,
	}
	if id.DNT {
		h["DNT"] = "1"
	}
	for k, v := range h {
		if v == "" {
			delete(h, k)
		}
	}
	return h
}

// StepKind is a post-processing operation applied after materialization.
type StepKind string

const (
	AudioExtract   StepKind = "audio_extract"
	ContainerRemux StepKind = "container_remux"
)

// PostProcessStep is one ordered transcoder step of a FormatPlan.
type PostProcessStep struct {
	Kind    StepKind
	Codec   string // target codec or container extension
	Quality string // e.g. "192k"; empty for remux
}

// FormatPlan is derived from an OutputKind and never from client input.
type FormatPlan struct {
	Selector       string
	PostProcess    []PostProcessStep
	MergeContainer string
	OutputExt      string
}

// NeedsTranscoder reports whether the plan cannot complete without the transcoder.
func (p FormatPlan) NeedsTranscoder() bool {
	for _, s := range p.PostProcess {
		if s.Kind == AudioExtract {
			return true
		}
	}
	return false
}

// ExtractionResult is produced once per job and never cached.
type ExtractionResult struct {
	Title             string
	DurationSeconds   float64
	IsLive            bool
	DirectURL         string // set when the selector resolved to one fetchable URL
	DirectExt         string
	DirectSize        int64             // exact byte size, 0 when the engine does not know it
	DirectHeaders     map[string]string // headers the direct URL was minted for
	LocalArtifactPath string
}

// Scratch is the per-job slice of the workspace. ID is the job's unique
// discriminator; every path handed out embeds it.
type Scratch struct {
	ID        string
	Dir       string
	CreatedAt time.Time
}

// File returns a path inside the scratch directory for the given label and extension.
func (s Scratch) File(label, ext string) string {
	name := s.ID
	if label != "" {
		name += "-" + label
	}
	if ext != "" {
		name += "." + strings.TrimPrefix(ext, ".")
	}
	return filepath.Join(s.Dir, name)
}

// OutputTemplate is a yt-dlp output template rooted in the scratch directory.
func (s Scratch) OutputTemplate(label string) string {
	return s.File(label, "%(ext)s")
}

// JobState is a node of the orchestrator state machine.
type JobState string

const (
	StateReceived                JobState = "received"
	StatePaced                   JobState = "paced"
	StateIdentityBound           JobState = "identity_bound"
	StateExtracting              JobState = "extracting"
	StateStreamingPassthrough    JobState = "streaming_passthrough"
	StateDownloadingForTranscode JobState = "downloading_for_transcode"
	StateValidating              JobState = "validating"
	StateDelivering              JobState = "delivering"
	StateCompleted               JobState = "completed"
	StateFailed                  JobState = "failed"
)

// Job tracks one pass through the orchestrator.
type Job struct {
	ID        string
	Request   JobRequest
	State     JobState
	CreatedAt time.Time
}
