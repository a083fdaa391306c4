package media

import (
	"fmt"
	"strings"
)

// AlignedChar is one character of a forced-alignment result.
type AlignedChar struct {
	Char  string
	Start float64
	End   float64
}

// Alignment is the per-character timing for one spoken script. It is
// produced per render and never persisted.
type Alignment struct {
	Chars []AlignedChar
}

// TimedWord is one whitespace-delimited word recovered from an alignment.
type TimedWord struct {
	Text  string
	Start float64
	End   float64
}

// Cue is a caption group of one to three words.
type Cue struct {
	Text  string
	Start float64
	End   float64
}

const cueMaxWords = 3

// GroupWords scans the aligned characters in order and groups them into
// words. A space closes the current word at the previous character's end
// time; the next word starts at the character immediately following the
// space. Runs of spaces collapse (empty accumulations are dropped).
func GroupWords(a Alignment) []TimedWord {
	var words []TimedWord
	var current strings.Builder
	var start, end float64

	for _, ch := range a.Chars {
		if ch.Char == " " {
			if current.Len() > 0 {
				words = append(words, TimedWord{Text: current.String(), Start: start, End: end})
				current.Reset()
			}
			continue
		}
		if current.Len() == 0 {
			start = ch.Start
		}
		current.WriteString(ch.Char)
		end = ch.End
	}
	if current.Len() > 0 {
		words = append(words, TimedWord{Text: current.String(), Start: start, End: end})
	}
	return words
}

// BuildCues groups words into caption cues. A cue closes once it holds
// three words or its most recent word ends a sentence, whichever comes
// first. Cue text is the upper-cased space-joined word run; timing spans
// first word start to last word end.
func BuildCues(words []TimedWord) []Cue {
	var cues []Cue
	var run []TimedWord

	flush := func() {
		if len(run) == 0 {
			return
		}
		texts := make([]string, len(run))
		for i, w := range run {
			texts[i] = w.Text
		}
		cues = append(cues, Cue{
			Text:  strings.ToUpper(strings.Join(texts, " ")),
			Start: run[0].Start,
			End:   run[len(run)-1].End,
		})
		run = run[:0]
	}

	for _, w := range words {
		run = append(run, w)
		if len(run) >= cueMaxWords || endsSentence(w.Text) {
			flush()
		}
	}
	flush()
	return cues
}

func endsSentence(word string) bool {
	return strings.HasSuffix(word, ".") || strings.HasSuffix(word, "!") || strings.HasSuffix(word, "?")
}

// BuildCaptions is the full alignment-to-cues pipeline.
func BuildCaptions(a Alignment) []Cue {
	return BuildCues(GroupWords(a))
}

// RenderASS serializes cues into an ASS subtitle track sized for the fixed
// 9:16 canvas: one bottom-anchored outlined style, one Dialogue event per
// cue. Timestamps use centisecond precision as the format requires.
func RenderASS(cues []Cue) string {
	var b strings.Builder

	b.WriteString("[Script Info]\n")
	b.WriteString("ScriptType: v4.00+\n")
	fmt.Fprintf(&b, "PlayResX: %d\n", FrameWidth)
	fmt.Fprintf(&b, "PlayResY: %d\n", FrameHeight)
	b.WriteString("WrapStyle: 0\n")
	b.WriteString("\n")

	b.WriteString("[V4+ Styles]\n")
	b.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, OutlineColour, BackColour, Bold, Italic, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")
	b.WriteString("Style: Default,Montserrat,64,&H00FFFFFF,&H00000000,&H00000000,-1,0,1,4,0,2,40,40,120,1\n")
	b.WriteString("\n")

	b.WriteString("[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	for _, cue := range cues {
		fmt.Fprintf(&b, "Dialogue: 0,%s,%s,Default,,0,0,0,,%s\n",
			FormatASSTime(cue.Start), FormatASSTime(cue.End), escapeASSText(cue.Text))
	}
	return b.String()
}

// FormatASSTime renders seconds as H:MM:SS.CS (centiseconds, not millis).
func FormatASSTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	centis := int(seconds*100 + 0.5)
	h := centis / 360000
	m := centis % 360000 / 6000
	s := centis % 6000 / 100
	cs := centis % 100
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, cs)
}

func escapeASSText(text string) string {
	text = strings.ReplaceAll(text, "\\", "\\\\")
	text = strings.ReplaceAll(text, "\n", "\\N")
	return text
}
