package ffmpeg

import "time"

// VideoInfo contains metadata about a media file
type VideoInfo struct {
	FilePath   string
	Duration   time.Duration
	Width      int
	Height     int
	FPS        float64
	Bitrate    int64
	HasVideo   bool
	VideoCodec string
	HasAudio   bool
	AudioCodec string
	Channels   int
}

// Progress represents one block of ffmpeg -progress output
type Progress struct {
	Frame   int
	FPS     float64
	Bitrate string
	OutTime time.Duration
	Speed   string
	Done    bool
}

// ProgressFunc is a callback for progress updates during ffmpeg operations.
// Called once per -progress block as the operation executes.
type ProgressFunc func(*Progress)

// RunOptions configures ffmpeg execution
type RunOptions struct {
	Args            []string
	ProgressHandler ProgressFunc
	LogHandler      func(line string)
}

// Default encoding settings
const (
	DefaultCRF         = 23
	DefaultPreset      = "medium"
	DefaultVideoCodec  = "libx264"
	DefaultAudioCodec  = "aac"
	DefaultPixelFormat = "yuv420p"
	DefaultFPS         = 30

	// diagnosticLines is how much encoder stderr is kept for error reports.
	diagnosticLines = 64
)
