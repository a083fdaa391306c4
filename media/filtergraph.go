package media

import (
	"fmt"
	"strings"
)

const (
	// Fixed 9:16 output frame. Inputs of other sizes are scaled to fit and
	// center-padded before concatenation.
	FrameWidth  = 720
	FrameHeight = 1280
)

// TrimPolicy shaves a fixed lead/tail off every clip before concatenation.
type TrimPolicy struct {
	Enabled     bool
	LeadSeconds float64
	TailSeconds float64
}

// Clip is one local input file with both a video and an audio stream.
// Duration is only consulted when trimming is enabled.
type Clip struct {
	Path     string
	Duration float64
}

// KeepDuration returns how much of the clip survives the trim policy.
// Clips shorter than lead+tail degenerate to a zero-length segment.
func (p TrimPolicy) KeepDuration(duration float64) float64 {
	keep := duration - p.LeadSeconds - p.TailSeconds
	if keep < 0 {
		return 0
	}
	return keep
}

// chain is one filter_complex step: input labels, a filter expression and
// the labels it produces. The graph is assembled as a list of chains and
// compiled to ffmpeg syntax at the very end, so labels are generated in one
// place and cannot collide.
type chain struct {
	inputs  []string
	expr    string
	outputs []string
}

// Graph is a compiled-on-demand filter graph for one concat run.
type Graph struct {
	chains   []chain
	VideoOut string
	AudioOut string
}

func (g *Graph) add(inputs []string, expr string, outputs ...string) {
	g.chains = append(g.chains, chain{inputs: inputs, expr: expr, outputs: outputs})
}

// String renders the graph in ffmpeg filter_complex syntax.
func (g *Graph) String() string {
	parts := make([]string, 0, len(g.chains))
	for _, c := range g.chains {
		var b strings.Builder
		for _, in := range c.inputs {
			b.WriteString("[" + in + "]")
		}
		b.WriteString(c.expr)
		for _, out := range c.outputs {
			b.WriteString("[" + out + "]")
		}
		parts = append(parts, b.String())
	}
	return strings.Join(parts, ";")
}

// BuildConcatGraph builds the trim/normalize/concat graph for the given
// clips in order. Every clip must carry both a video and an audio stream;
// muxing silence onto silent clips is the caller's job.
func BuildConcatGraph(clips []Clip, policy TrimPolicy) (*Graph, error) {
	if len(clips) == 0 {
		return nil, ErrNoInputs
	}

	g := &Graph{VideoOut: "outv", AudioOut: "outa"}
	concatIn := make([]string, 0, len(clips)*2)

	for i, clip := range clips {
		scaled := fmt.Sprintf("v%d", i)
		g.add(
			[]string{fmt.Sprintf("%d:v", i)},
			fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
				FrameWidth, FrameHeight, FrameWidth, FrameHeight),
			scaled,
		)

		if !policy.Enabled {
			concatIn = append(concatIn, scaled, fmt.Sprintf("%d:a", i))
			continue
		}

		keep := policy.KeepDuration(clip.Duration)
		vt := fmt.Sprintf("vt%d", i)
		at := fmt.Sprintf("at%d", i)
		g.add(
			[]string{scaled},
			fmt.Sprintf("trim=start=%s:duration=%s,setpts=PTS-STARTPTS",
				formatSeconds(policy.LeadSeconds), formatSeconds(keep)),
			vt,
		)
		g.add(
			[]string{fmt.Sprintf("%d:a", i)},
			fmt.Sprintf("atrim=start=%s:duration=%s,asetpts=PTS-STARTPTS",
				formatSeconds(policy.LeadSeconds), formatSeconds(keep)),
			at,
		)
		concatIn = append(concatIn, vt, at)
	}

	g.add(concatIn, fmt.Sprintf("concat=n=%d:v=1:a=1", len(clips)), g.VideoOut, g.AudioOut)
	return g, nil
}

func formatSeconds(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", v), "0"), ".")
}
