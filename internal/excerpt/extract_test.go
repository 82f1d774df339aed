package excerpt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const articlePage = `<!doctype html>
<html><head><title>Post</title><script>var x = "<p>nope</p>";</script></head>
<body>
<header><p>Site header with a long enough line of navigation text to pass the minimum length check.</p></header>
<article>
  <p>By Jane Writer</p>
  <p>March 4, 2024 and some more words so that this would be long enough otherwise to qualify.</p>
  <p>Central banks spent most of the last two years raising rates, and the effects are now showing up in housing and credit markets across the country.</p>
  <p>Second paragraph that should never be chosen because the first one qualified already.</p>
</article>
<footer><p>All rights reserved. Copyright notice that is long enough to be considered by length alone.</p></footer>
</body></html>`

func TestParagraphExtractorSkipsChrome(t *testing.T) {
	t.Parallel()

	e := ParagraphExtractor{MinRunes: 80, MaxRunes: 280}
	got := e.Extract([]byte(articlePage))
	assert.True(t, strings.HasPrefix(got, "Central banks spent"), got)
}

func TestParagraphExtractorTruncates(t *testing.T) {
	t.Parallel()

	page := "<html><body><main><p>" + strings.Repeat("interest rates ", 40) + "</p></main></body></html>"
	e := ParagraphExtractor{MinRunes: 20, MaxRunes: 60}
	got := e.Extract([]byte(page))
	assert.LessOrEqual(t, len([]rune(got)), 60)
	assert.True(t, strings.HasSuffix(got, "…"))
}

func TestParagraphExtractorNoCandidate(t *testing.T) {
	t.Parallel()

	e := ParagraphExtractor{MinRunes: 80, MaxRunes: 280}
	assert.Equal(t, "", e.Extract([]byte("<html><body><p>short</p></body></html>")))
	assert.Equal(t, "", e.Extract(nil))
}

func TestIsBoilerplate(t *testing.T) {
	t.Parallel()

	for _, text := range []string{
		"By Jane Writer",
		"Posted on Tuesday",
		"2024-03-04 commentary",
		"Share on Twitter and more",
		"5 min read",
		"January 2, 2023 something",
	} {
		assert.True(t, IsBoilerplate(text), text)
	}
	assert.False(t, IsBoilerplate("Inflation cooled again in the latest print."))
}
