package model

import (
	"net/url"
	"strings"
	"unicode/utf8"
)

type JobKind string

const (
	JobKindPNG  JobKind = "png"
	JobKindJPEG JobKind = "jpeg"
	JobKindPDF  JobKind = "pdf"
	JobKindHTML JobKind = "html"
)

func (k JobKind) String() string { return string(k) }

func (k JobKind) Valid() bool {
	return k == JobKindPNG || k == JobKindJPEG || k == JobKindPDF || k == JobKindHTML
}

// ParseJobKind normalizes input; empty => png.
// Returns (value, true) if valid; otherwise (png, false).
func ParseJobKind(s string) (JobKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "png":
		return JobKindPNG, true
	case "jpeg", "jpg":
		return JobKindJPEG, true
	case "pdf":
		return JobKindPDF, true
	case "html":
		return JobKindHTML, true
	default:
		return JobKindPNG, false
	}
}

// Bounds for job options. Out-of-range numeric values are clamped, not
// rejected; structurally invalid jobs fail Validate.
const (
	MinViewport   = 16
	MaxWidth      = 3840
	MaxHeight     = 2160
	MaxWaitMillis = 15000
	MaxSourceLen  = 1 << 20 // markdown payload cap
)

// RenderJob describes one rendering request. Exactly one of URL and
// Markdown must be set.
type RenderJob struct {
	URL        string  `json:"url,omitempty"`
	Markdown   string  `json:"markdown,omitempty"`
	Kind       JobKind `json:"kind"`
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
	Quality    int     `json:"quality,omitempty"` // jpeg only
	FullPage   bool    `json:"full_page,omitempty"`
	WaitMillis int     `json:"wait_ms,omitempty"`
}

// Validate checks structure and clamps numeric options in place.
func (j *RenderJob) Validate() error {
	j.URL = strings.TrimSpace(j.URL)

	if !j.Kind.Valid() {
		return ErrInvalidJob("unknown kind")
	}

	switch {
	case j.URL == "" && j.Markdown == "":
		return ErrInvalidJob("url or markdown required")
	case j.URL != "" && j.Markdown != "":
		return ErrInvalidJob("url and markdown are mutually exclusive")
	}

	if j.URL != "" {
		u, err := url.Parse(j.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return ErrInvalidJob("url must be absolute http(s)")
		}
	}
	if utf8.RuneCountInString(j.Markdown) > MaxSourceLen {
		return ErrInvalidJob("markdown too large")
	}

	j.Width = clamp(j.Width, MinViewport, MaxWidth, 1280)
	j.Height = clamp(j.Height, MinViewport, MaxHeight, 800)
	j.WaitMillis = clamp(j.WaitMillis, 0, MaxWaitMillis, 0)

	if j.Kind == JobKindJPEG {
		j.Quality = clamp(j.Quality, 1, 100, 80)
	} else {
		j.Quality = 0
	}

	return nil
}

func clamp(v, lo, hi, def int) int {
	if v == 0 {
		return def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ErrInvalidJob is a malformed-parameters error; not retryable as-is.
type ErrInvalidJob string

func (e ErrInvalidJob) Error() string { return "invalid job: " + string(e) }
