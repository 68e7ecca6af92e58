// Package extract turns a raw conversation transcript into vocabulary
// candidates. It is pure: no storage access, no side effects, and it never
// fails; lines it cannot interpret are skipped.
package extract

import (
	"regexp"
	"strings"
	"unicode"
)

// Candidate is an unvalidated, possibly-partial vocabulary record produced by
// parsing. Fallback candidates carry only English and the source line as
// Example; the rest is filled in later by hand.
type Candidate struct {
	English string
	Chinese string
	Pinyin  string
	Example string
}

var (
	// entryMarker locates numbered vocab-check entries such as "1)", "2）"
	// or "3.". The marker must follow start-of-line, whitespace or a colon
	// so digits inside pinyin or example sentences do not open an entry.
	entryMarker = regexp.MustCompile(`(?:^|[\s:：])\d{1,3}\s*[).．）]`)

	// entryBody matches one entry after its marker:
	// chinese (pinyin) — gloss [— example]. The separator may be a hyphen,
	// en dash or em dash with optional surrounding whitespace. Entries
	// without the pinyin parentheses do not match and are skipped.
	entryBody = regexp.MustCompile(`^\s*([^()（）—–-]+?)\s*[(（]\s*([^()（）]+?)\s*[)）]\s*[—–-]\s*([^—–-]+?)\s*(?:[—–-]\s*(.+?)\s*)?$`)

	// exampleLabel is the optional 例句 prefix in front of an example.
	exampleLabel = regexp.MustCompile(`^例句\s*[:：]?\s*`)

	// englishRun matches a maximal run of Latin-alphabet words. Its
	// precision is a heuristic, not a contract: it over-captures fillers
	// ("uh huh") and under-captures spans broken by punctuation.
	englishRun = regexp.MustCompile(`[A-Za-z][A-Za-z\s'-]+`)

	// speakerLabel is the transcript line prefix added by the conversation
	// client ("User: ..." / "Agent: ...").
	speakerLabel = regexp.MustCompile(`^\s*(?:User|Agent)\s*[:：]\s*`)
)

// fallbackStopwords are Latin runs too common to be worth banking.
var fallbackStopwords = map[string]bool{
	"i":   true,
	"the": true,
	"a":   true,
}

// Parse extracts vocabulary candidates from a transcript. Two passes run over
// the same text and their results are concatenated in priority order: first
// the structured numbered vocab-check entries, then best-effort English spans
// from Chinese-context lines that pass 1 did not consume. An empty transcript
// yields no candidates.
func Parse(transcript string) []Candidate {
	lines := strings.Split(transcript, "\n")
	for i, line := range lines {
		line = strings.TrimRight(line, "\r")
		lines[i] = speakerLabel.ReplaceAllString(line, "")
	}

	var out []Candidate
	consumed := make([]bool, len(lines))
	knownEnglish := make(map[string]bool)

	for i, line := range lines {
		entries := parseEntries(line)
		if len(entries) == 0 {
			continue
		}
		consumed[i] = true
		for _, c := range entries {
			knownEnglish[c.English] = true
			out = append(out, c)
		}
	}

	for i, line := range lines {
		if consumed[i] {
			continue
		}
		for _, phrase := range englishRuns(line) {
			if knownEnglish[phrase] {
				continue
			}
			out = append(out, Candidate{
				English: phrase,
				Example: strings.TrimSpace(line),
			})
		}
	}
	return out
}

// parseEntries matches every numbered vocab-check entry on one line. The line
// is split at entry markers first so a greedy example capture cannot swallow
// the entry that follows it on the same line.
func parseEntries(line string) []Candidate {
	markers := entryMarker.FindAllStringIndex(line, -1)
	if len(markers) == 0 {
		return nil
	}

	var out []Candidate
	for i, m := range markers {
		end := len(line)
		if i+1 < len(markers) {
			end = markers[i+1][0]
		}
		body := line[m[1]:end]

		g := entryBody.FindStringSubmatch(body)
		if g == nil {
			continue
		}
		c := Candidate{
			Chinese: strings.TrimSpace(g[1]),
			Pinyin:  strings.TrimSpace(g[2]),
			English: strings.TrimSpace(g[3]),
		}
		if g[4] != "" {
			c.Example = strings.TrimSpace(exampleLabel.ReplaceAllString(g[4], ""))
		}
		if c.Chinese == "" || c.English == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}

// englishRuns finds English phrases embedded in a Chinese-dominant line. Lines
// without any Han character are ignored: a fully English line is not "an
// unknown word inside Chinese speech".
func englishRuns(line string) []string {
	if !containsHan(line) {
		return nil
	}
	var phrases []string
	for _, m := range englishRun.FindAllString(line, -1) {
		phrase := strings.Join(strings.Fields(m), " ")
		phrase = strings.Trim(phrase, "'- ")
		if len(phrase) < 2 {
			continue
		}
		if fallbackStopwords[strings.ToLower(phrase)] {
			continue
		}
		phrases = append(phrases, phrase)
	}
	return phrases
}

func containsHan(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}
