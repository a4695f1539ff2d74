package transcript

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/abadojack/whatlanggo"
	"github.com/google/uuid"
	"golang.org/x/text/language"
)

// Reader parses a subtitle file into transcript lines.
type Reader interface {
	Read() (*Transcript, error)
}

// DefaultReader reads SRT and VTT files.
type DefaultReader struct {
	path string
}

func NewReader(path string) Reader {
	return &DefaultReader{path: path}
}

func (r *DefaultReader) Read() (*Transcript, error) {
	ext := strings.ToLower(filepath.Ext(r.path))
	if ext != ".srt" && ext != ".vtt" {
		return nil, fmt.Errorf("unsupported transcript format: %s", r.path)
	}

	if _, err := os.Stat(r.path); os.IsNotExist(err) {
		return nil, fmt.Errorf("transcript file does not exist: %s", r.path)
	}

	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript file: %w", err)
	}
	defer f.Close()

	lines, err := parseCues(f, ext == ".vtt")
	if err != nil {
		return nil, err
	}

	title := strings.TrimSuffix(filepath.Base(r.path), filepath.Ext(r.path))
	return &Transcript{
		ID:       uuid.NewString(),
		Title:    title,
		Language: detectLanguage(lines),
		Lines:    lines,
	}, nil
}

// parseCues walks the file with a small state machine: an optional index
// line, a time line, then text lines until a blank line closes the block.
// VTT blocks may omit the index line.
func parseCues(src io.Reader, vtt bool) ([]Line, error) {
	var lines []Line
	scanner := bufio.NewScanner(src)

	current := Line{}
	state := "index"
	var textLines []string
	nextIndex := 1

	flush := func() {
		if len(textLines) == 0 {
			return
		}
		speaker, utterance := splitSpeaker(strings.Join(textLines, "\n"))
		current.Speaker = speaker
		current.Utterance = utterance
		current.ID = uuid.NewString()
		if current.Index == 0 {
			current.Index = nextIndex
		}
		nextIndex = current.Index + 1
		lines = append(lines, current)
		current = Line{}
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch state {
		case "index":
			if line == "" || line == "WEBVTT" || strings.HasPrefix(line, "NOTE") {
				continue
			}
			if isCueTiming(line) {
				// VTT cue without an identifier line
				start, end, err := parseCueTiming(line)
				if err != nil {
					return nil, fmt.Errorf("failed to parse time: %w", err)
				}
				current.InCue = &start
				current.OutCue = &end
				state = "text"
				textLines = []string{}
				continue
			}
			index, err := strconv.Atoi(line)
			if err != nil {
				if vtt {
					// VTT cue identifiers may be arbitrary strings
					state = "time"
				}
				continue
			}
			current.Index = index
			state = "time"

		case "time":
			if line == "" {
				continue
			}
			start, end, err := parseCueTiming(line)
			if err != nil {
				return nil, fmt.Errorf("failed to parse time: %w", err)
			}
			current.InCue = &start
			current.OutCue = &end
			state = "text"
			textLines = []string{}

		case "text":
			if line == "" {
				flush()
				state = "index"
				textLines = []string{}
			} else {
				textLines = append(textLines, line)
			}
		}
	}

	if state == "text" {
		flush()
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transcript file: %w", err)
	}

	return lines, nil
}

// SRT: 00:02:16,612 --> 00:02:19,376
// VTT: 00:02:16.612 --> 00:02:19.376 (hours optional)
var cueTimingPattern = regexp.MustCompile(
	`(?:(\d{1,2}):)?(\d{2}):(\d{2})[,.](\d{3})\s*-->\s*(?:(\d{1,2}):)?(\d{2}):(\d{2})[,.](\d{3})`)

func isCueTiming(line string) bool {
	return cueTimingPattern.MatchString(line)
}

func parseCueTiming(timeString string) (float64, float64, error) {
	matches := cueTimingPattern.FindStringSubmatch(timeString)
	if len(matches) != 9 {
		return 0, 0, fmt.Errorf("invalid time format: %s", timeString)
	}

	parse := func(hours, minutes, seconds, milliseconds string) float64 {
		h, _ := strconv.Atoi(hours)
		m, _ := strconv.Atoi(minutes)
		s, _ := strconv.Atoi(seconds)
		ms, _ := strconv.Atoi(milliseconds)
		return float64(h)*3600 + float64(m)*60 + float64(s) + float64(ms)/1000
	}

	start := parse(matches[1], matches[2], matches[3], matches[4])
	end := parse(matches[5], matches[6], matches[7], matches[8])
	return start, end, nil
}

// splitSpeaker splits a "Name: utterance" prefix off the cue text. A prefix
// only counts as a speaker label when it is short and contains no sentence
// punctuation, so clock references like "12:30" stay in the utterance.
func splitSpeaker(text string) (string, string) {
	idx := strings.Index(text, ":")
	if idx <= 0 || idx > 40 {
		return "", text
	}
	prefix := text[:idx]
	if strings.ContainsAny(prefix, ".!?\n") {
		return "", text
	}
	if _, err := strconv.Atoi(strings.TrimSpace(prefix)); err == nil {
		return "", text
	}
	rest := strings.TrimSpace(text[idx+1:])
	if rest == "" {
		return "", text
	}
	return strings.TrimSpace(prefix), rest
}

// detectLanguage picks the dominant language over the parsed utterances.
func detectLanguage(lines []Line) language.Tag {
	if len(lines) == 0 {
		return language.Und
	}

	langMap := make(map[string]int)

	for _, line := range lines {
		lang := whatlanggo.DetectLang(line.Utterance).Iso6391()
		langMap[lang]++
	}

	var topLang string
	var topCount int
	for lang, count := range langMap {
		if count > topCount {
			topLang = lang
			topCount = count
		}
	}

	return language.All.Make(topLang)
}
