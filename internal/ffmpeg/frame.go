package ffmpeg

import (
	"context"
	"fmt"
	"time"

	"github.com/kikiluvv/splice/pkg/util"
)

// ExtractFrame writes the frame shown at timestamp to output (the image
// format follows the output extension).
func (e *Executor) ExtractFrame(ctx context.Context, input, output string, timestamp time.Duration) error {
	if input == "" {
		return fmt.Errorf("input path is required")
	}
	if output == "" {
		return fmt.Errorf("output path is required")
	}

	e.logger.Debug().
		Str("input", input).
		Str("output", output).
		Dur("timestamp", timestamp).
		Msg("extracting frame")

	args := []string{
		"-ss", util.FormatDuration(timestamp),
		"-i", input,
		"-frames:v", "1",
		"-q:v", "2",
		output,
	}

	return e.Run(ctx, RunOptions{
		Args: args,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("frame extraction")
		},
	})
}
