package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"BlockReel-server/logger"
)

var (
	// ErrNoInputs is returned before the engine is ever invoked.
	ErrNoInputs = errors.New("no input clips")
	// ErrProbeFailed marks unreadable inputs during duration probing.
	ErrProbeFailed = errors.New("probe failed")
)

// Runner executes ffmpeg/ffprobe against constructed inputs and filter
// graphs. It never owns temp files: cleanup belongs to the orchestrator
// that created them.
type Runner struct {
	ffmpegPath  string
	ffprobePath string
	fontsDir    string
	log         *logger.Logger
	opTimeout   time.Duration
}

func NewRunner(ffmpegPath, ffprobePath, fontsDir string, log *logger.Logger) *Runner {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Runner{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		fontsDir:    fontsDir,
		log:         log.With("service", "ffmpeg"),
		opTimeout:   10 * time.Minute,
	}
}

// CheckAvailability verifies the engine binaries are installed and
// responsive. Called at process startup; a failure there is a warning, not
// fatal, so non-video endpoints stay usable.
func (r *Runner) CheckAvailability(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, bin := range []string{r.ffmpegPath, r.ffprobePath} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("missing required binary %q in PATH: %w", bin, err)
		}
	}
	if _, err := exec.CommandContext(ctx, r.ffmpegPath, "-version").Output(); err != nil {
		return fmt.Errorf("ffmpeg not responsive: %w", err)
	}
	return nil
}

// Probe returns the container duration of a media file in seconds. Files
// without duration metadata report zero.
func (r *Runner) Probe(ctx context.Context, path string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("%w: ffprobe %s: %v", ErrProbeFailed, path, err)
	}
	return ParseProbeDuration(string(out))
}

// ParseProbeDuration interprets ffprobe duration output. "N/A" and empty
// output mean the container carries no duration, which is treated as zero.
func ParseProbeDuration(out string) (float64, error) {
	s := strings.TrimSpace(out)
	if s == "" || s == "N/A" {
		return 0, nil
	}
	d, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: unexpected ffprobe output %q", ErrProbeFailed, s)
	}
	return d, nil
}

// Stitch concatenates the input clips into one output in order,
// re-encoding to the fixed H.264/yuv420p + AAC target. With trimming
// enabled each clip is probed and shaved per the policy first.
func (r *Runner) Stitch(ctx context.Context, inputPaths []string, outputPath string, policy TrimPolicy) error {
	if len(inputPaths) == 0 {
		return ErrNoInputs
	}

	clips := make([]Clip, len(inputPaths))
	for i, path := range inputPaths {
		clips[i] = Clip{Path: path}
		if policy.Enabled {
			d, err := r.Probe(ctx, path)
			if err != nil {
				return err
			}
			clips[i].Duration = d
		}
	}

	graph, err := BuildConcatGraph(clips, policy)
	if err != nil {
		return err
	}
	return r.run(ctx, StitchArgs(inputPaths, graph, outputPath), "stitch")
}

// ExtractAudio strips the video stream and re-encodes the audio to mp3.
func (r *Runner) ExtractAudio(ctx context.Context, videoPath, outputPath string) error {
	return r.run(ctx, ExtractAudioArgs(videoPath, outputPath), "extract audio")
}

// ReplaceAudio swaps the audio track of a clip without re-encoding video,
// truncated to the shorter of the two inputs.
func (r *Runner) ReplaceAudio(ctx context.Context, videoPath, audioPath, outputPath string) error {
	return r.run(ctx, ReplaceAudioArgs(videoPath, audioPath, outputPath), "replace audio")
}

// BurnCaptions renders the subtitle track onto the clip, copying audio.
func (r *Runner) BurnCaptions(ctx context.Context, videoPath, subtitlePath, outputPath string) error {
	return r.run(ctx, BurnCaptionsArgs(videoPath, subtitlePath, outputPath, r.fontsDir), "burn captions")
}

func StitchArgs(inputPaths []string, graph *Graph, outputPath string) []string {
	args := []string{"-y"}
	for _, p := range inputPaths {
		args = append(args, "-i", p)
	}
	args = append(args,
		"-filter_complex", graph.String(),
		"-map", "["+graph.VideoOut+"]",
		"-map", "["+graph.AudioOut+"]",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		outputPath,
	)
	return args
}

func ExtractAudioArgs(videoPath, outputPath string) []string {
	return []string{"-y", "-i", videoPath, "-vn", "-acodec", "libmp3lame", outputPath}
}

func ReplaceAudioArgs(videoPath, audioPath, outputPath string) []string {
	return []string{
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-c:v", "copy",
		"-c:a", "aac",
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-shortest",
		outputPath,
	}
}

func BurnCaptionsArgs(videoPath, subtitlePath, outputPath, fontsDir string) []string {
	vf := "ass=" + subtitlePath
	if fontsDir != "" {
		vf += ":fontsdir=" + fontsDir
	}
	return []string{"-y", "-i", videoPath, "-vf", vf, "-c:a", "copy", outputPath}
}

func (r *Runner) run(ctx context.Context, args []string, op string) error {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	if err != nil {
		return fmt.Errorf("ffmpeg %s failed: %w; stderr=%s", op, err, tail(stderr.String(), 2000))
	}
	r.log.Debug("ffmpeg op finished", "op", op, "elapsed", time.Since(start).String())
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	cut := s[len(s)-n:]
	for len(cut) > 0 && !utf8.RuneStart(cut[0]) {
		cut = cut[1:]
	}
	return "..." + cut
}
