package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_EmptyDocument(t *testing.T) {
	s := New(DefaultOptions())

	for _, input := range []string{"", "   ", "\n\t \n"} {
		_, err := s.Split(input)
		assert.ErrorIs(t, err, ErrEmptyDocument)
	}
}

func TestSplit_SingleSentence(t *testing.T) {
	s := New(DefaultOptions())

	chunks, err := s.Split("Zhang San, age 28, phone 13800138000.")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "Zhang San, age 28, phone 13800138000.", chunks[0].Text)
}

func TestSplit_Deterministic(t *testing.T) {
	s := New(Options{MaxChunkSize: 60, MinChunkSize: 10, SentenceSplit: true, PreserveURLs: true, PreserveEmails: true})
	text := "First sentence here. Second one follows. A third, slightly longer sentence to push past the budget. And a fourth."

	a, err := s.Split(text)
	require.NoError(t, err)
	b, err := s.Split(text)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSplit_MergesShortSentences(t *testing.T) {
	s := New(Options{MaxChunkSize: 200, MinChunkSize: 10, SentenceSplit: true})

	chunks, err := s.Split("One. Two. Three.")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "One. Two. Three.", chunks[0].Text)
}

func TestSplit_RespectsMaxSize(t *testing.T) {
	s := New(Options{MaxChunkSize: 50, MinChunkSize: 5, SentenceSplit: false})

	text := strings.TrimSpace(strings.Repeat("word ", 100))
	chunks, err := s.Split(text)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Text), 50)
	}
}

func TestSplit_OversizedURLStaysIntact(t *testing.T) {
	url := "https://example.com/" + strings.Repeat("segment/", 15)
	require.Greater(t, len(url), 50)

	s := New(Options{MaxChunkSize: 50, MinChunkSize: 5, SentenceSplit: true, PreserveURLs: true})
	text := "See the reference at " + url + " for details."

	chunks, err := s.Split(text)
	require.NoError(t, err)

	found := false
	for _, c := range chunks {
		if strings.Contains(c.Text, url) {
			found = true
		}
	}
	assert.True(t, found, "chunks must contain the URL unbroken: %v", chunks)
}

func TestSplit_EmailNotSplitAcrossChunks(t *testing.T) {
	s := New(Options{MaxChunkSize: 50, MinChunkSize: 5, SentenceSplit: false, PreserveEmails: true})
	text := strings.Repeat("x", 45) + " reach out to someone@example.com for access and onboarding"

	chunks, err := s.Split(text)
	require.NoError(t, err)

	found := false
	for _, c := range chunks {
		if strings.Contains(c.Text, "someone@example.com") {
			found = true
		}
	}
	assert.True(t, found, "email must survive splitting intact: %v", chunks)
}

func TestSplit_CJKSentenceBoundaries(t *testing.T) {
	s := New(Options{MaxChunkSize: 15, MinChunkSize: 2, SentenceSplit: true})

	chunks, err := s.Split("张三今年二十八岁。电话一三八零零一三八零零零。")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "张三今年二十八岁。", chunks[0].Text)
}

func TestID_StableAndContentIndependent(t *testing.T) {
	assert.Equal(t, ID("docs/a.txt", 0), ID("docs/a.txt", 0))
	assert.NotEqual(t, ID("docs/a.txt", 0), ID("docs/a.txt", 1))
	assert.NotEqual(t, ID("docs/a.txt", 0), ID("docs/b.txt", 0))
}
