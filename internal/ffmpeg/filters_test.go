package ffmpeg

import (
	"strings"
	"testing"
	"time"
)

func TestFilterBuilder(t *testing.T) {
	fb := NewFilterBuilder()
	filter := fb.Trim(2*time.Second, 3*time.Second).Format("rgba").Build()

	expected := "trim=start=2.000:duration=3.000,format=rgba"
	if filter != expected {
		t.Errorf("expected %q, got %q", expected, filter)
	}
}

func TestFilterBuilderEmpty(t *testing.T) {
	fb := NewFilterBuilder()
	filter := fb.Build()

	if filter != "" {
		t.Errorf("expected empty string, got %q", filter)
	}
}

func TestFilterBuilderSkipsInvalidFit(t *testing.T) {
	filter := NewFilterBuilder().FitAlpha(0, 1080).Fit(-1, 2).Format("yuv420p").Build()
	if filter != "format=yuv420p" {
		t.Errorf("expected only format filter, got %q", filter)
	}
}

func TestFilterBuilderFit(t *testing.T) {
	filter := NewFilterBuilder().Fit(1080, 1920).Build()
	expected := "scale=1080:1920:force_original_aspect_ratio=decrease," +
		"pad=1080:1920:(ow-iw)/2:(oh-ih)/2:color=black,setsar=1"
	if filter != expected {
		t.Errorf("expected %q, got %q", expected, filter)
	}
}

func TestFilterBuilderFitAlpha(t *testing.T) {
	filter := NewFilterBuilder().FitAlpha(1080, 1080).Build()
	expected := "format=rgba,scale=1080:1080:force_original_aspect_ratio=decrease," +
		"pad=1080:1080:(ow-iw)/2:(oh-ih)/2:color=black@0,setsar=1"
	if filter != expected {
		t.Errorf("expected %q, got %q", expected, filter)
	}
}

func TestFilterBuilderShiftPTS(t *testing.T) {
	cases := []struct {
		start time.Duration
		speed float64
		want  string
	}{
		{0, 1, "setpts=PTS-STARTPTS"},
		{2 * time.Second, 1, "setpts=PTS-STARTPTS+2.000/TB"},
		{1500 * time.Millisecond, 2, "setpts=(PTS-STARTPTS)/2+1.500/TB"},
	}
	for _, c := range cases {
		got := NewFilterBuilder().ShiftPTS(c.start, c.speed).Build()
		if got != c.want {
			t.Errorf("ShiftPTS(%v, %v) = %q, want %q", c.start, c.speed, got, c.want)
		}
	}
}

func TestFilterBuilderAudioChain(t *testing.T) {
	got := NewFilterBuilder().
		ATrim(time.Second, 3*time.Second).
		Volume(0.5).
		ADelay(2500 * time.Millisecond).
		Build()
	expected := "atrim=start=1.000:duration=3.000,asetpts=PTS-STARTPTS,volume=0.5,adelay=delays=2500:all=1"
	if got != expected {
		t.Errorf("expected %q, got %q", expected, got)
	}
}

func TestFilterBuilderATempoChainsOutOfRangeFactors(t *testing.T) {
	got := NewFilterBuilder().ATempo(4).Build()
	if got != "atempo=2.0,atempo=2" {
		t.Errorf("unexpected chain for 4x: %q", got)
	}

	got = NewFilterBuilder().ATempo(0.25).Build()
	if got != "atempo=0.5,atempo=0.5" {
		t.Errorf("unexpected chain for 0.25x: %q", got)
	}

	if got := NewFilterBuilder().ATempo(1).Build(); got != "" {
		t.Errorf("unit speed should add nothing, got %q", got)
	}
}

func TestFilterBuilderUnitVolumeIsNoop(t *testing.T) {
	if got := NewFilterBuilder().Volume(1).Build(); got != "" {
		t.Errorf("expected no filter for unit gain, got %q", got)
	}
	if got := NewFilterBuilder().Volume(0).Build(); got != "volume=0" {
		t.Errorf("expected mute filter, got %q", got)
	}
}

func TestGraphLabelsAndChains(t *testing.T) {
	g := NewGraph()
	if l := g.Label("v"); l != "v0" {
		t.Fatalf("expected v0, got %s", l)
	}
	if l := g.Label("v"); l != "v1" {
		t.Fatalf("expected v1, got %s", l)
	}
	if l := g.Label("a"); l != "a0" {
		t.Fatalf("expected a0, got %s", l)
	}

	g.Chain([]string{VideoInput(0)}, "scale=10:10", "v0")
	g.Chain([]string{"v0", VideoInput(1)}, Overlay(0, 0, EnableWindow(time.Second, 3*time.Second)), "v1")
	g.Chain([]string{AudioInput(2)}, "", "a0")

	expected := "[0:v]scale=10:10[v0];" +
		"[v0][1:v]overlay=0:0:eof_action=pass:enable='gte(t,1.000)*lt(t,3.000)'[v1];" +
		"[2:a]anull[a0]"
	if got := g.String(); got != expected {
		t.Errorf("expected %q, got %q", expected, got)
	}
}

func TestBuildEncodeArgs(t *testing.T) {
	args, err := BuildEncodeArgs(EncodeOptions{
		Inputs: []Input{
			{Path: "color=c=black:s=1080x1080:d=7.000", Lavfi: true},
			{Path: "title.png", Loop: true, Duration: 5 * time.Second},
			{Path: "music.mp3"},
		},
		FilterGraph: "[0:v][1:v]overlay[vout];[2:a]anull[aout]",
		VideoMap:    "vout",
		AudioMap:    "aout",
		Duration:    7 * time.Second,
		Output:      "/work/out.mp4",
	})
	if err != nil {
		t.Fatalf("BuildEncodeArgs: %v", err)
	}

	joined := strings.Join(args, " ")
	for _, want := range []string{
		"-f lavfi -i color=c=black:s=1080x1080:d=7.000",
		"-loop 1 -t 5.000 -i title.png",
		"-i music.mp3",
		"-filter_complex [0:v][1:v]overlay[vout];[2:a]anull[aout]",
		"-map [vout] -map [aout]",
		"-c:v libx264",
		"-pix_fmt yuv420p",
		"-c:a aac",
		"-t 7.000",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing %q in %s", want, joined)
		}
	}
	if args[len(args)-1] != "/work/out.mp4" {
		t.Errorf("output must be last, got %q", args[len(args)-1])
	}
}

func TestBuildEncodeArgsWithoutAudio(t *testing.T) {
	args, err := BuildEncodeArgs(EncodeOptions{
		Inputs:   []Input{{Path: "in.mp4"}},
		VideoMap: "vout",
		Output:   "out.mp4",
	})
	if err != nil {
		t.Fatalf("BuildEncodeArgs: %v", err)
	}
	joined := strings.Join(args, " ")
	if strings.Contains(joined, "-c:a") || strings.Contains(joined, "[aout]") {
		t.Errorf("audio flags present without audio map: %s", joined)
	}
}

func TestBuildEncodeArgsValidation(t *testing.T) {
	if _, err := BuildEncodeArgs(EncodeOptions{Output: "out.mp4", VideoMap: "v"}); err == nil {
		t.Error("expected error without inputs")
	}
	if _, err := BuildEncodeArgs(EncodeOptions{Inputs: []Input{{Path: "a"}}, VideoMap: "v"}); err == nil {
		t.Error("expected error without output")
	}
	if _, err := BuildEncodeArgs(EncodeOptions{Inputs: []Input{{Path: "a"}}, Output: "o", VideoMap: "v", CRF: 60}); err == nil {
		t.Error("expected error for CRF 60")
	}
}

func TestFilterBuilderADelayCoversAllChannels(t *testing.T) {
	if got := NewFilterBuilder().ADelay(1250 * time.Millisecond).Build(); got != "adelay=delays=1250:all=1" {
		t.Errorf("got %q", got)
	}
	if got := NewFilterBuilder().ADelay(0).Build(); got != "" {
		t.Errorf("zero delay should add nothing, got %q", got)
	}
}
