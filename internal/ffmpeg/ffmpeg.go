package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ixugo/goddd/pkg/queue"
	"github.com/rs/zerolog"

	"github.com/kikiluvv/splice/internal/logging"
)

// Options selects the binaries an Executor drives.
type Options struct {
	BinaryPath string
	ProbePath  string
	Threads    int
}

// Executor handles all ffmpeg operations with progress streaming
type Executor struct {
	logger      zerolog.Logger
	ffmpegPath  string
	ffprobePath string
	threads     int
}

// RunError is returned when ffmpeg exits unsuccessfully. Log holds the
// tail of its diagnostic output.
type RunError struct {
	Err error
	Log []string
}

func (e *RunError) Error() string {
	if len(e.Log) == 0 {
		return fmt.Sprintf("ffmpeg execution failed: %v", e.Err)
	}
	return fmt.Sprintf("ffmpeg execution failed: %v: %s", e.Err, e.Log[len(e.Log)-1])
}

func (e *RunError) Unwrap() error { return e.Err }

// New creates a new ffmpeg executor
func New(logger zerolog.Logger, opts Options) (*Executor, error) {
	if opts.BinaryPath == "" {
		opts.BinaryPath = "ffmpeg"
	}
	if opts.ProbePath == "" {
		opts.ProbePath = "ffprobe"
	}

	ffmpegPath, err := exec.LookPath(opts.BinaryPath)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	ffprobePath, err := exec.LookPath(opts.ProbePath)
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found: %w", err)
	}

	return &Executor{
		logger:      logging.WithComponent(logger, "ffmpeg"),
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		threads:     opts.Threads,
	}, nil
}

// Run executes ffmpeg with the given arguments and streams progress
func (e *Executor) Run(ctx context.Context, opts RunOptions) error {
	if len(opts.Args) == 0 {
		return fmt.Errorf("no arguments provided")
	}

	// Build args with threads BEFORE other arguments
	baseArgs := []string{"-y", "-hide_banner", "-nostats", "-loglevel", "warning"}

	if e.threads > 0 {
		baseArgs = append(baseArgs, "-threads", strconv.Itoa(e.threads))
	}

	baseArgs = append(baseArgs, "-progress", "pipe:2")
	args := append(baseArgs, opts.Args...)

	e.logger.Debug().
		Str("cmd", "ffmpeg").
		Strs("args", args).
		Msg("executing ffmpeg")

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	tail := queue.NewCirQueue[string](diagnosticLines)
	var tailMu sync.Mutex
	logLine := func(line string) {
		tailMu.Lock()
		tail.Push(line)
		tailMu.Unlock()
		if opts.LogHandler != nil {
			opts.LogHandler(line)
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)

	// stderr carries both -progress blocks and warnings
	go func() {
		defer wg.Done()
		streamOutput(stderr, opts.ProgressHandler, logLine)
	}()

	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			logLine(scanner.Text())
		}
	}()

	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		tailMu.Lock()
		lines := tail.Range()
		tailMu.Unlock()
		return &RunError{Err: err, Log: lines}
	}

	e.logger.Debug().Msg("ffmpeg execution completed")
	return nil
}

// streamOutput parses ffmpeg output and calls handlers. Lines that belong
// to a -progress block are consumed; anything else goes to logHandler.
func streamOutput(r io.Reader, progressHandler ProgressFunc, logHandler func(string)) {
	scanner := bufio.NewScanner(r)
	progressData := &Progress{}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok || !isProgressKey(key) {
			if logHandler != nil {
				logHandler(line)
			}
			continue
		}
		value = strings.TrimSpace(value)

		switch key {
		case "frame":
			progressData.Frame, _ = strconv.Atoi(value)
		case "fps":
			progressData.FPS, _ = strconv.ParseFloat(value, 64)
		case "bitrate":
			progressData.Bitrate = value
		case "out_time_us", "out_time_ms":
			// both keys are reported in microseconds
			if us, err := strconv.ParseInt(value, 10, 64); err == nil && us >= 0 {
				progressData.OutTime = time.Duration(us) * time.Microsecond
			}
		case "speed":
			progressData.Speed = value
		case "progress":
			// End of progress block
			progressData.Done = value == "end"
			if progressHandler != nil && (progressData.Frame > 0 || progressData.OutTime > 0 || progressData.Done) {
				progressHandler(progressData)
			}
			progressData = &Progress{}
		}
	}
}

var progressKeys = map[string]struct{}{
	"frame": {}, "fps": {}, "bitrate": {}, "total_size": {}, "out_time_us": {},
	"out_time_ms": {}, "out_time": {}, "dup_frames": {}, "drop_frames": {},
	"speed": {}, "progress": {},
}

func isProgressKey(key string) bool {
	if _, ok := progressKeys[key]; ok {
		return true
	}
	// per-stream quality keys such as stream_0_0_q
	return strings.HasPrefix(key, "stream_")
}

// IsRunError reports whether err came from a failed ffmpeg process.
func IsRunError(err error) (*RunError, bool) {
	var runErr *RunError
	if errors.As(err, &runErr) {
		return runErr, true
	}
	return nil, false
}
