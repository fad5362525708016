package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kikiluvv/splice/internal/config"
	"github.com/kikiluvv/splice/internal/export"
	"github.com/kikiluvv/splice/internal/ffmpeg"
	"github.com/kikiluvv/splice/internal/gui"
	"github.com/kikiluvv/splice/internal/logging"
	"github.com/kikiluvv/splice/internal/media"
	"github.com/kikiluvv/splice/internal/project"
	"github.com/kikiluvv/splice/internal/timeline"
	"github.com/kikiluvv/splice/pkg/util"
)

var (
	cfgFile string
	verbose bool
	logFile string

	closeLog = func() error { return nil }

	outputPath string
	aspectFlag string
	writeBack  bool
)

func main() {
	ctx := context.Background()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "splice",
	Short: "splice - timeline video composition and export",
	Long:  "Compose video, audio, image and text clips on a layered timeline, preview them and export a single encoded file.",
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLog()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := logging.Init(logging.Options{Verbose: verbose, File: logFile})
		if err != nil {
			return err
		}
		closeLog = c

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		cmd.SetContext(config.WithConfig(cmd.Context(), cfg))
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write JSON logs to this file")

	exportCmd.Flags().StringVarP(&outputPath, "output", "o", "out.mp4", "output file")
	exportCmd.Flags().StringVar(&aspectFlag, "aspect", "", "aspect ratio (16:9, 9:16, 1:1); overrides the project")
	splitCmd.Flags().BoolVarP(&writeBack, "write", "w", false, "save the result back to the project file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(splitCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
}

func timelineDefaults(cfg *config.Config) timeline.Defaults {
	return timeline.Defaults{
		StillDuration: cfg.Timeline.DefaultStillDuration,
		FontSize:      cfg.Timeline.DefaultFontSize,
		FontFamily:    cfg.Timeline.DefaultFontFamily,
		Color:         cfg.Timeline.DefaultColor,
	}
}

func ffmpegOptions(cfg *config.Config) ffmpeg.Options {
	return ffmpeg.Options{
		BinaryPath: cfg.FFmpeg.BinaryPath,
		ProbePath:  cfg.FFmpeg.ProbePath,
		Threads:    cfg.FFmpeg.Threads,
	}
}

// newProber uses ffprobe when it can be found and falls back to the
// built-in mp3 decoder otherwise.
func newProber(cfg *config.Config) (*media.Prober, *ffmpeg.Executor) {
	executor, err := ffmpeg.New(log.Logger, ffmpegOptions(cfg))
	if err != nil {
		log.Warn().Err(err).Msg("ffmpeg unavailable, durations limited to mp3")
		return media.NewProber(log.Logger, nil), nil
	}
	return media.NewProber(log.Logger, executor), executor
}

func loadProject(ctx context.Context, cfg *config.Config, path string) (*project.Project, error) {
	doc, err := project.Load(path)
	if err != nil {
		return nil, err
	}
	prober, _ := newProber(cfg)
	return doc.Build(ctx, log.Logger, timelineDefaults(cfg), prober)
}

var exportCmd = &cobra.Command{
	Use:   "export [project file]",
	Short: "Export a project to a single video file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p, err := loadProject(ctx, cfg, args[0])
		if err != nil {
			return err
		}
		aspect := p.Aspect
		if aspectFlag != "" {
			aspect = export.Aspect(aspectFlag)
		}

		if err := util.EnsureDir(filepath.Dir(outputPath)); err != nil {
			return err
		}
		out, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		defer out.Close()

		exporter := export.New(log.Logger, export.OptionsFromConfig(cfg), export.FFmpegEncoder(log.Logger, ffmpegOptions(cfg)))
		defer exporter.Close()

		bar := progressbar.NewOptions(1000,
			progressbar.OptionSetDescription("Exporting"),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "█",
				SaucerHead:    "█",
				SaucerPadding: "░",
				BarStart:      "▐",
				BarEnd:        "▌",
			}),
			progressbar.OptionSetWidth(50),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetRenderBlankState(true),
		)

		session := export.NewSession(exporter)
		job, err := session.Start(ctx, p.Timeline, aspect, out, func(f float64) {
			bar.Set(int(f * 1000))
		})
		if err != nil {
			return err
		}

		res, err := job.Wait()
		bar.Finish()
		fmt.Fprintln(os.Stderr)
		if err != nil {
			os.Remove(outputPath)
			return reportExportError(err)
		}

		log.Info().
			Str("output", outputPath).
			Int("width", res.Width).
			Int("height", res.Height).
			Dur("duration", res.Duration).
			Int64("bytes", res.Bytes).
			Msg("export complete")
		return nil
	},
}

func reportExportError(err error) error {
	var loadErr *export.AssetLoadError
	var initErr *export.EncoderInitError
	var encErr *export.EncodeError

	switch {
	case errors.Is(err, export.ErrCancelled):
		log.Warn().Msg("export cancelled")
	case errors.As(err, &loadErr):
		log.Error().Err(loadErr.Err).Str("clip", loadErr.ClipID).Str("source", loadErr.Source).Msg("source could not be loaded")
	case errors.As(err, &initErr):
		log.Error().Err(initErr.Err).Msg("encoder could not be started; check ffmpeg.binary_path")
	case errors.As(err, &encErr):
		for _, line := range encErr.Diagnostics {
			log.Error().Str("ffmpeg", line).Msg("encoder output")
		}
		log.Error().Err(encErr.Err).Msg("encode failed")
	default:
		log.Error().Err(err).Msg("export failed")
	}
	return err
}

var probeCmd = &cobra.Command{
	Use:   "probe [media file]",
	Short: "Show the kind and decoded duration of a media file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		prober, _ := newProber(cfg)

		asset, err := prober.Probe(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		duration := "unknown"
		if asset.DurationKnown {
			duration = util.FormatDuration(asset.Duration)
		} else if !asset.Kind.Timed() {
			duration = "n/a"
		}
		fmt.Printf("%s\t%s\t%s\n", asset.Kind, duration, asset.DisplayName)
		return nil
	},
}

var splitCmd = &cobra.Command{
	Use:   "split [project file] [clip id] [time]",
	Short: "Split a clip at a composition time and print the timeline",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		at, err := util.ParseTimestamp(args[2])
		if err != nil {
			return err
		}
		p, err := loadProject(cmd.Context(), cfg, args[0])
		if err != nil {
			return err
		}

		left, right, err := p.Timeline.Split(args[1], at)
		switch {
		case errors.Is(err, timeline.ErrInvalidOperation):
			log.Warn().Err(err).Msg("nothing to split")
		case err != nil:
			return err
		default:
			log.Info().Str("left", left.ID).Str("right", right.ID).Dur("at", at).Msg("clip split")
		}

		doc := project.FromProject(p)
		if writeBack && err == nil {
			if err := doc.Save(args[0]); err != nil {
				return err
			}
		}
		return yaml.NewEncoder(os.Stdout).Encode(doc.Clips)
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview [project file]",
	Short: "Open the preview window",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		p, err := loadProject(cmd.Context(), cfg, args[0])
		if err != nil {
			return err
		}
		_, executor := newProber(cfg)

		opts := gui.Options{
			Project:  p,
			Exporter: export.New(log.Logger, export.OptionsFromConfig(cfg), export.FFmpegEncoder(log.Logger, ffmpegOptions(cfg))),
			TempDir:  cfg.TempDir,
			Preview:  cfg.Preview,
		}
		if executor != nil {
			opts.Extractor = executor
		}
		defer opts.Exporter.Close()
		return gui.Run(cmd.Context(), log.Logger, opts)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Ingest media files dropped into a folder",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		dir := cfg.Ingest.WatchDir
		if len(args) == 1 {
			dir = args[0]
		}
		if dir == "" {
			return fmt.Errorf("no watch directory given")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		reg := media.NewRegistry()
		cancel := reg.Subscribe(func(a media.Asset) {
			ev := log.Info().Str("id", a.ID).Str("kind", string(a.Kind)).Str("name", a.DisplayName)
			if a.DurationKnown {
				ev = ev.Dur("duration", a.Duration)
			}
			ev.Msg("asset ingested")
		})
		defer cancel()

		prober, _ := newProber(cfg)
		w, err := media.NewWatcher(log.Logger, util.ExpandHome(dir), reg, prober, cfg.Ingest.Debounce)
		if err != nil {
			return err
		}
		defer w.Close()

		log.Info().Str("dir", dir).Msg("watching for media")
		<-ctx.Done()
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config management commands",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		return yaml.NewEncoder(os.Stdout).Encode(cfg)
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "config.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if util.FileExists(path) {
			return fmt.Errorf("%s already exists", path)
		}
		if err := config.Default().Save(path); err != nil {
			return err
		}
		log.Info().Str("path", path).Msg("config written")
		return nil
	},
}
