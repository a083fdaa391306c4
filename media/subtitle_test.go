package media

import (
	"math"
	"strconv"
	"strings"
	"testing"
)

// alignText builds an alignment where each character occupies a fixed
// 0.1s slot, mirroring what the forced-alignment service returns.
func alignText(text string) Alignment {
	const step = 0.1
	chars := make([]AlignedChar, 0, len(text))
	for i, r := range []rune(text) {
		chars = append(chars, AlignedChar{
			Char:  string(r),
			Start: float64(i) * step,
			End:   float64(i+1) * step,
		})
	}
	return Alignment{Chars: chars}
}

func TestGroupWords_CountMatchesSpaceSeparatedWords(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"hola", 1},
		{"hola mundo", 2},
		{"mira esto ahora mismo", 4},
		{"doble  espacio", 2},
		{" leading and trailing ", 3},
		{"", 0},
		{"   ", 0},
	}
	for _, tt := range tests {
		words := GroupWords(alignText(tt.text))
		if len(words) != tt.want {
			t.Errorf("GroupWords(%q) produced %d words, want %d", tt.text, len(words), tt.want)
		}
	}
}

func TestGroupWords_RejoinedTextMatchesOriginal(t *testing.T) {
	text := "esto  es   una prueba completa"
	words := GroupWords(alignText(text))

	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = w.Text
	}
	got := strings.Join(parts, " ")
	want := strings.Join(strings.Fields(text), " ")
	if got != want {
		t.Errorf("rejoined words = %q, want %q", got, want)
	}
}

func TestGroupWords_Timing(t *testing.T) {
	// "ab cd": a=[0,0.1) b=[0.1,0.2) space=[0.2,0.3) c=[0.3,0.4) d=[0.4,0.5)
	words := GroupWords(alignText("ab cd"))
	if len(words) != 2 {
		t.Fatalf("got %d words, want 2", len(words))
	}
	if words[0].Start != 0 || math.Abs(words[0].End-0.2) > 1e-9 {
		t.Errorf("word 0 span = [%v,%v], want [0,0.2]", words[0].Start, words[0].End)
	}
	// Second word starts at the character following the space.
	if math.Abs(words[1].Start-0.3) > 1e-9 || math.Abs(words[1].End-0.5) > 1e-9 {
		t.Errorf("word 1 span = [%v,%v], want [0.3,0.5]", words[1].Start, words[1].End)
	}
}

func TestGroupWords_EmptyAlignmentIsSafe(t *testing.T) {
	if words := GroupWords(Alignment{}); len(words) != 0 {
		t.Errorf("empty alignment produced %d words", len(words))
	}
	if cues := BuildCaptions(Alignment{}); len(cues) != 0 {
		t.Errorf("empty alignment produced %d cues", len(cues))
	}
}

func TestBuildCues_NeverExceedsThreeWords(t *testing.T) {
	cues := BuildCaptions(alignText("uno dos tres cuatro cinco seis siete"))
	for _, cue := range cues {
		if n := len(strings.Fields(cue.Text)); n > 3 {
			t.Errorf("cue %q holds %d words", cue.Text, n)
		}
	}
	if len(cues) != 3 {
		t.Errorf("got %d cues, want 3", len(cues))
	}
}

func TestBuildCues_SentencePunctuationClosesEarly(t *testing.T) {
	cues := BuildCaptions(alignText("si! luego seguimos con mas"))
	if len(cues) == 0 {
		t.Fatal("no cues produced")
	}
	if cues[0].Text != "SI!" {
		t.Errorf("first cue = %q, want %q", cues[0].Text, "SI!")
	}

	// An early close must only happen on sentence-ending punctuation.
	for _, cue := range cues {
		words := strings.Fields(cue.Text)
		if len(words) < cueMaxWords && cue != cues[len(cues)-1] {
			last := words[len(words)-1]
			if !strings.HasSuffix(last, ".") && !strings.HasSuffix(last, "!") && !strings.HasSuffix(last, "?") {
				t.Errorf("cue %q closed early without sentence punctuation", cue.Text)
			}
		}
	}
}

func TestBuildCues_TextIsUppercased(t *testing.T) {
	cues := BuildCaptions(alignText("hola mundo"))
	if len(cues) != 1 {
		t.Fatalf("got %d cues, want 1", len(cues))
	}
	if cues[0].Text != "HOLA MUNDO" {
		t.Errorf("cue text = %q, want %q", cues[0].Text, "HOLA MUNDO")
	}
}

func TestBuildCues_TimingSpansFirstToLastWord(t *testing.T) {
	// "ab cd ef" with 0.1s chars: first word starts 0, last char ends 0.8.
	cues := BuildCaptions(alignText("ab cd ef"))
	if len(cues) != 1 {
		t.Fatalf("got %d cues, want 1", len(cues))
	}
	if cues[0].Start != 0 || math.Abs(cues[0].End-0.8) > 1e-9 {
		t.Errorf("cue span = [%v,%v], want [0,0.8]", cues[0].Start, cues[0].End)
	}
}

func TestFormatASSTime(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "0:00:00.00"},
		{1.5, "0:00:01.50"},
		{61.25, "0:01:01.25"},
		{3661.07, "1:01:01.07"},
		{0.005, "0:00:00.01"},
		{-1, "0:00:00.00"},
	}
	for _, tt := range tests {
		if got := FormatASSTime(tt.seconds); got != tt.want {
			t.Errorf("FormatASSTime(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestRenderASS_HeaderAndEvents(t *testing.T) {
	track := RenderASS([]Cue{{Text: "HOLA MUNDO", Start: 0.5, End: 1.2}})

	for _, want := range []string{
		"PlayResX: 720",
		"PlayResY: 1280",
		"[V4+ Styles]",
		"[Events]",
		"Dialogue: 0,0:00:00.50,0:00:01.20,Default,,0,0,0,,HOLA MUNDO",
	} {
		if !strings.Contains(track, want) {
			t.Errorf("rendered track missing %q", want)
		}
	}
}

// parseDialogues reads Dialogue events back out of a rendered track so the
// cue list can be compared round-trip.
func parseDialogues(t *testing.T, track string) []Cue {
	t.Helper()
	var cues []Cue
	for _, line := range strings.Split(track, "\n") {
		if !strings.HasPrefix(line, "Dialogue: ") {
			continue
		}
		fields := strings.SplitN(strings.TrimPrefix(line, "Dialogue: "), ",", 10)
		if len(fields) != 10 {
			t.Fatalf("malformed dialogue line: %q", line)
		}
		cues = append(cues, Cue{
			Text:  fields[9],
			Start: parseASSTime(t, fields[1]),
			End:   parseASSTime(t, fields[2]),
		})
	}
	return cues
}

func parseASSTime(t *testing.T, s string) float64 {
	t.Helper()
	var h, m int
	var sec float64
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		t.Fatalf("malformed timestamp: %q", s)
	}
	h, _ = strconv.Atoi(parts[0])
	m, _ = strconv.Atoi(parts[1])
	sec, _ = strconv.ParseFloat(parts[2], 64)
	return float64(h)*3600 + float64(m)*60 + sec
}

func TestRenderASS_RoundTrip(t *testing.T) {
	original := BuildCaptions(alignText("la primera frase termina. y luego algo mas"))
	parsed := parseDialogues(t, RenderASS(original))

	if len(parsed) != len(original) {
		t.Fatalf("round trip produced %d cues, want %d", len(parsed), len(original))
	}
	for i := range original {
		if parsed[i].Text != original[i].Text {
			t.Errorf("cue %d text = %q, want %q", i, parsed[i].Text, original[i].Text)
		}
		// Timestamps survive at centisecond precision.
		if math.Abs(parsed[i].Start-original[i].Start) > 0.01 {
			t.Errorf("cue %d start = %v, want %v", i, parsed[i].Start, original[i].Start)
		}
		if math.Abs(parsed[i].End-original[i].End) > 0.01 {
			t.Errorf("cue %d end = %v, want %v", i, parsed[i].End, original[i].End)
		}
	}
}
