// Package chunk splits raw document text into ordered segments ready for
// embedding and extraction. Four strategies are supported: fixed-size
// (characters), sentence-boundary, token-count, and markdown-aware.
package chunk

import (
	"strings"

	"github.com/loreweave/loreweave/engine/domain"
)

// Strategy selects how text is split.
type Strategy string

const (
	StrategyFixedSize Strategy = "fixed_size"
	StrategySentence  Strategy = "sentence"
	StrategyToken     Strategy = "token"
	StrategyMarkdown  Strategy = "markdown"
)

const (
	// DefaultSize is the target segment size (characters or tokens,
	// depending on strategy).
	DefaultSize = 512
	// DefaultOverlap suits prose when a caller wants overlap. New never
	// applies it implicitly; zero overlap stays zero.
	DefaultOverlap = 50
)

// Config controls the splitting behaviour. Overlap zero means no
// overlap; it is a valid setting, not a request for the default.
type Config struct {
	Strategy Strategy `json:"strategy"`
	Size     int      `json:"size"`
	Overlap  int      `json:"overlap"`
}

// Splitter splits document text into ordered segment texts.
type Splitter struct {
	cfg Config
}

// New returns a Splitter with the given configuration. An empty Strategy
// and a zero Size are replaced with defaults; Overlap is taken as given,
// so zero overlap stays zero. Size must exceed overlap.
func New(cfg Config) (*Splitter, error) {
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyFixedSize
	}
	if cfg.Size == 0 {
		cfg.Size = DefaultSize
	}
	switch cfg.Strategy {
	case StrategyFixedSize, StrategySentence, StrategyToken, StrategyMarkdown:
	default:
		return nil, domain.NewConfigError("chunking.strategy", "unknown strategy "+string(cfg.Strategy))
	}
	if cfg.Size < 0 {
		return nil, domain.NewConfigError("chunking.size", "must be positive")
	}
	if cfg.Overlap < 0 {
		return nil, domain.NewConfigError("chunking.overlap", "must not be negative")
	}
	if cfg.Size <= cfg.Overlap {
		return nil, domain.NewConfigError("chunking.size", "must be greater than overlap")
	}
	return &Splitter{cfg: cfg}, nil
}

// Split divides text into ordered segment texts. Empty or whitespace-only
// input yields an empty slice, not an error. Every returned string is
// non-empty and no longer than the configured size (in the strategy's
// unit).
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	switch s.cfg.Strategy {
	case StrategySentence:
		return s.splitSentenceBounded(text)
	case StrategyToken:
		return s.splitTokens(text)
	case StrategyMarkdown:
		return s.splitMarkdown(text)
	default:
		return s.splitFixed(text)
	}
}

// splitFixed slices text into fixed-size character windows, stepping by
// size-overlap so consecutive segments share the configured overlap.
func (s *Splitter) splitFixed(text string) []string {
	runes := []rune(text)
	step := s.cfg.Size - s.cfg.Overlap

	var out []string
	for start := 0; start < len(runes); start += step {
		end := start + s.cfg.Size
		if end > len(runes) {
			end = len(runes)
		}
		seg := strings.TrimSpace(string(runes[start:end]))
		if seg != "" {
			out = append(out, seg)
		}
		if end == len(runes) {
			break
		}
	}
	return out
}

// splitTokens groups whitespace tokens into windows of Size tokens with
// Overlap tokens repeated between consecutive windows.
func (s *Splitter) splitTokens(text string) []string {
	tokens := strings.Fields(text)
	step := s.cfg.Size - s.cfg.Overlap

	var out []string
	for start := 0; start < len(tokens); start += step {
		end := start + s.cfg.Size
		if end > len(tokens) {
			end = len(tokens)
		}
		out = append(out, strings.Join(tokens[start:end], " "))
		if end == len(tokens) {
			break
		}
	}
	return out
}

// splitSentenceBounded packs whole sentences into segments of at most
// Size tokens, carrying roughly Overlap tokens of trailing sentences
// into the next segment.
func (s *Splitter) splitSentenceBounded(text string) []string {
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var out []string
	start := 0
	for start < len(sentences) {
		var buf strings.Builder
		tokens := 0
		end := start

		for end < len(sentences) {
			n := wordCount(sentences[end])
			if tokens+n > s.cfg.Size && tokens > 0 {
				break
			}
			if buf.Len() > 0 {
				buf.WriteRune(' ')
			}
			buf.WriteString(sentences[end])
			tokens += n
			end++
		}

		out = append(out, buf.String())
		if end >= len(sentences) {
			break
		}

		// Walk back over trailing sentences until the overlap budget is met.
		overlapTokens := 0
		newStart := end
		for newStart > start && overlapTokens < s.cfg.Overlap {
			newStart--
			overlapTokens += wordCount(sentences[newStart])
		}
		if newStart == start {
			start = end // forward progress on oversized sentences
		} else {
			start = newStart
		}
	}
	return out
}

// splitMarkdown splits on markdown headings, then applies token splitting
// to oversized sections. Heading lines stay attached to their section.
func (s *Splitter) splitMarkdown(text string) []string {
	var sections []string
	var current strings.Builder

	flush := func() {
		if sec := strings.TrimSpace(current.String()); sec != "" {
			sections = append(sections, sec)
		}
		current.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		if isMarkdownHeading(line) && current.Len() > 0 {
			flush()
		}
		current.WriteString(line)
		current.WriteRune('\n')
	}
	flush()

	var out []string
	for _, sec := range sections {
		if wordCount(sec) <= s.cfg.Size {
			out = append(out, sec)
			continue
		}
		out = append(out, s.splitTokens(sec)...)
	}
	return out
}

func isMarkdownHeading(line string) bool {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "#") {
		return false
	}
	rest := strings.TrimLeft(trimmed, "#")
	return rest != trimmed && (rest == "" || strings.HasPrefix(rest, " "))
}

// SplitSentences splits text into sentences using punctuation and
// newlines as boundaries.
func SplitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	bytes := []byte(text)
	for i := 0; i < len(bytes); i++ {
		c := bytes[i]
		current.WriteByte(c)
		if c == '.' || c == '!' || c == '?' || c == '\n' {
			// End of sentence only when followed by whitespace or EOF.
			if c == '\n' || i == len(bytes)-1 || isSpace(bytes[i+1]) {
				if s := strings.TrimSpace(current.String()); s != "" {
					sentences = append(sentences, s)
				}
				current.Reset()
			}
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
