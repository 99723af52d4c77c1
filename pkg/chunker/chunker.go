package chunker

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ErrEmptyDocument is returned when the input contains nothing to index.
// Callers skip such documents rather than aborting the whole pass.
var ErrEmptyDocument = errors.New("chunker: empty document")

type Options struct {
	MaxChunkSize   int  // maximum chunk length in runes
	MinChunkSize   int  // fragments below this merge into a neighbor
	SentenceSplit  bool // split on sentence boundaries instead of lines
	PreserveURLs   bool // keep URLs intact across chunk boundaries
	PreserveEmails bool // keep email addresses intact across chunk boundaries
}

func DefaultOptions() Options {
	return Options{
		MaxChunkSize:   200,
		MinChunkSize:   20,
		SentenceSplit:  true,
		PreserveURLs:   true,
		PreserveEmails: true,
	}
}

// Chunk is a contiguous fragment of a document's text. Index is the chunk's
// sequence number within the document; together with the document ID it
// determines the chunk's stable identity.
type Chunk struct {
	Index int
	Text  string
}

// ID derives the stable identifier for a chunk from the owning document's ID
// and the chunk sequence number. It is independent of chunk content, so
// re-chunking an unchanged document yields the same identifiers.
func ID(docID string, index int) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(docID+"#"+strconv.Itoa(index)))
}

var (
	urlPattern   = regexp.MustCompile(`(?i)\b(?:https?|ftp)://[^\s<>"']+|\bwww\.[^\s<>"']+`)
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
)

// Splitter turns raw document text into chunks bounded by the configured
// minimum and maximum sizes. Splitting is deterministic: the same text and
// options always produce the same chunks.
type Splitter struct {
	opts Options
}

func New(opts Options) *Splitter {
	if opts.MaxChunkSize <= 0 {
		opts.MaxChunkSize = DefaultOptions().MaxChunkSize
	}
	if opts.MinChunkSize < 0 {
		opts.MinChunkSize = 0
	}
	if opts.MinChunkSize > opts.MaxChunkSize {
		opts.MinChunkSize = opts.MaxChunkSize / 2
	}
	return &Splitter{opts: opts}
}

func (s *Splitter) Split(text string) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyDocument
	}

	runes := []rune(text)
	protected := s.protectedRunes(text, len(runes))

	var pieces []span
	for _, u := range s.units(runes, protected) {
		pieces = append(pieces, s.splitLarge(runes, protected, u)...)
	}

	merged := s.merge(runes, pieces)
	chunks := make([]Chunk, len(merged))
	for i, c := range merged {
		chunks[i] = Chunk{Index: i, Text: c}
	}
	return chunks, nil
}

// span is a half-open rune range [start, end).
type span struct {
	start, end int
}

// protectedRunes marks every rune belonging to a URL or email address.
// Protected runes are atomic: no split position may fall between two of them.
func (s *Splitter) protectedRunes(text string, n int) []bool {
	protected := make([]bool, n)
	if !s.opts.PreserveURLs && !s.opts.PreserveEmails {
		return protected
	}

	// byte offset -> rune index
	runeIdx := make([]int, len(text)+1)
	ri := 0
	for bi := 0; bi < len(text); {
		_, size := utf8.DecodeRuneInString(text[bi:])
		for k := 0; k < size; k++ {
			runeIdx[bi+k] = ri
		}
		bi += size
		ri++
	}
	runeIdx[len(text)] = ri

	mark := func(re *regexp.Regexp) {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			for r := runeIdx[loc[0]]; r < runeIdx[loc[1]]; r++ {
				protected[r] = true
			}
		}
	}
	if s.opts.PreserveURLs {
		mark(urlPattern)
	}
	if s.opts.PreserveEmails {
		mark(emailPattern)
	}
	return protected
}

// units splits the text into candidate units: sentences when sentence
// splitting is enabled, lines otherwise. Terminators inside protected spans
// are ignored, so a period in a URL never ends a sentence.
func (s *Splitter) units(runes []rune, protected []bool) []span {
	var out []span
	start := 0
	flush := func(end int) {
		st, en := trim(runes, start, end)
		if en > st {
			out = append(out, span{st, en})
		}
		start = end
	}

	for i, r := range runes {
		if protected[i] {
			continue
		}
		if r == '\n' {
			flush(i + 1)
			continue
		}
		if !s.opts.SentenceSplit {
			continue
		}
		switch r {
		case '。', '！', '？', '；':
			flush(i + 1)
		case '.', '!', '?', ';':
			if i+1 == len(runes) || unicode.IsSpace(runes[i+1]) {
				flush(i + 1)
			}
		}
	}
	flush(len(runes))
	return out
}

// splitLarge cuts a unit exceeding the maximum size into pieces at allowed
// boundaries. A piece may exceed the maximum only when a protected span
// covers the entire budget window.
func (s *Splitter) splitLarge(runes []rune, protected []bool, u span) []span {
	var out []span
	start := u.start
	for u.end-start > s.opts.MaxChunkSize {
		cut := s.findCut(runes, protected, start, u.end)
		if cut <= start || cut >= u.end {
			break
		}
		st, en := trim(runes, start, cut)
		if en > st {
			out = append(out, span{st, en})
		}
		start = cut
	}
	st, en := trim(runes, start, u.end)
	if en > st {
		out = append(out, span{st, en})
	}
	return out
}

// findCut picks a split position in (start, start+max], preferring a
// position after punctuation, then after whitespace, then any position not
// inside a protected span. When a protected span straddles the whole budget
// window the cut moves past the span's end instead.
func (s *Splitter) findCut(runes []rune, protected []bool, start, end int) int {
	limit := start + s.opts.MaxChunkSize
	if limit > end {
		limit = end
	}
	lo := start + s.opts.MinChunkSize
	if lo <= start {
		lo = start + 1
	}

	space, any := -1, -1
	for j := limit; j >= lo; j-- {
		if insideProtected(protected, j) {
			continue
		}
		if any < 0 {
			any = j
		}
		prev := runes[j-1]
		if isCutPunct(prev) {
			return j
		}
		if space < 0 && unicode.IsSpace(prev) {
			space = j
		}
	}
	if space >= 0 {
		return space
	}
	if any >= 0 {
		return any
	}
	for j := limit + 1; j < end; j++ {
		if !insideProtected(protected, j) {
			return j
		}
	}
	return end
}

// merge accumulates pieces into chunks up to the maximum size. A fragment
// below the minimum keeps merging into its neighbor even past the maximum,
// and a trailing fragment folds into its predecessor.
func (s *Splitter) merge(runes []rune, pieces []span) []string {
	var chunks []string
	var cur strings.Builder
	curLen := 0

	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, p := range pieces {
		n := p.end - p.start
		if curLen >= s.opts.MinChunkSize && curLen+1+n > s.opts.MaxChunkSize {
			flush()
		}
		if curLen > 0 {
			cur.WriteRune(' ')
			curLen++
		}
		cur.WriteString(string(runes[p.start:p.end]))
		curLen += n
	}
	flush()

	if len(chunks) >= 2 {
		last := chunks[len(chunks)-1]
		if utf8.RuneCountInString(last) < s.opts.MinChunkSize {
			chunks[len(chunks)-2] += " " + last
			chunks = chunks[:len(chunks)-1]
		}
	}
	return chunks
}

// insideProtected reports whether cutting before rune j would split a
// protected span.
func insideProtected(protected []bool, j int) bool {
	return j > 0 && j < len(protected) && protected[j-1] && protected[j]
}

func isCutPunct(r rune) bool {
	switch r {
	case '。', '！', '？', '；', '，', '、', '.', '!', '?', ';', ',':
		return true
	}
	return false
}

func trim(runes []rune, start, end int) (int, int) {
	for start < end && unicode.IsSpace(runes[start]) {
		start++
	}
	for end > start && unicode.IsSpace(runes[end-1]) {
		end--
	}
	return start, end
}
