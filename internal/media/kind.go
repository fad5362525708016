package media

import (
	"fmt"
	"mime"
	"strings"

	"github.com/kikiluvv/splice/pkg/util"
)

// Kind is the type of a source asset.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
	KindImage Kind = "image"
)

var extensionKinds = map[string]Kind{
	".mp4":  KindVideo,
	".mov":  KindVideo,
	".mkv":  KindVideo,
	".webm": KindVideo,
	".avi":  KindVideo,
	".mp3":  KindAudio,
	".m4a":  KindAudio,
	".aac":  KindAudio,
	".wav":  KindAudio,
	".flac": KindAudio,
	".ogg":  KindAudio,
	".png":  KindImage,
	".jpg":  KindImage,
	".jpeg": KindImage,
	".gif":  KindImage,
	".webp": KindImage,
}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindVideo, KindAudio, KindImage:
		return k, nil
	default:
		return "", fmt.Errorf("unknown media kind %q", s)
	}
}

// KindFromPath guesses the kind from the file extension.
func KindFromPath(path string) (Kind, bool) {
	k, ok := extensionKinds[util.Ext(path)]
	return k, ok
}

// KindFromContentType maps a declared MIME type ("video/mp4") to a kind.
func KindFromContentType(contentType string) (Kind, bool) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", false
	}
	major, _, _ := strings.Cut(mediaType, "/")
	switch major {
	case "video":
		return KindVideo, true
	case "audio":
		return KindAudio, true
	case "image":
		return KindImage, true
	}
	return "", false
}

// Timed reports whether assets of this kind carry a decoded duration.
func (k Kind) Timed() bool {
	return k == KindVideo || k == KindAudio
}
