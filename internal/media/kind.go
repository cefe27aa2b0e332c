// Package media turns inbound attachments into text the assistant can read.
package media

import (
	"net/url"
	"path"
	"strings"
)

// Kind classifies an attachment by its file extension.
type Kind int

const (
	KindNone Kind = iota
	KindImage
	KindAudio
	KindPDF
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindImage:
		return "image"
	case KindAudio:
		return "audio"
	case KindPDF:
		return "pdf"
	default:
		return "unsupported"
	}
}

var extensions = map[string]Kind{
	"png":  KindImage,
	"jpeg": KindImage,
	"jpg":  KindImage,
	"gif":  KindImage,
	"ogg":  KindAudio,
	"mp3":  KindAudio,
	"wav":  KindAudio,
	"m4a":  KindAudio,
	"flac": KindAudio,
	"mpga": KindAudio,
	"mpeg": KindAudio,
	"webm": KindAudio,
	"pdf":  KindPDF,
}

// Classify returns the attachment kind for a media URL. Query strings and
// fragments are ignored and extensions match case-insensitively.
func Classify(mediaURL string) Kind {
	raw := strings.TrimSpace(mediaURL)
	if raw == "" {
		return KindNone
	}
	if kind, ok := extensions[Extension(raw)]; ok {
		return kind
	}
	return KindUnsupported
}

// Extension returns the lower-cased extension of the URL path without the dot.
func Extension(mediaURL string) string {
	p := mediaURL
	if u, err := url.Parse(mediaURL); err == nil && u.Path != "" {
		p = u.Path
	}
	return strings.TrimPrefix(strings.ToLower(path.Ext(p)), ".")
}
