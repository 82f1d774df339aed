package textnorm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeEntities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "named", in: "Fish &amp; Chips", want: "Fish & Chips"},
		{name: "numeric", in: "it&#8217;s", want: "it’s"},
		{name: "double encoded", in: "a &amp;amp; b", want: "a & b"},
		{name: "plain", in: "nothing here", want: "nothing here"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DecodeEntities(tt.in))
		})
	}
}

func TestStripTags(t *testing.T) {
	t.Parallel()

	in := `<p>Hello <b>world</b></p><script>alert("x")</script><!-- c --><p>Second&nbsp;line</p>`
	assert.Equal(t, "Hello world Second line", StripTags(in))
	assert.Equal(t, "", StripTags(""))
	assert.Equal(t, "a b", StripTags("a<br/>b"))
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	short := "short text"
	assert.Equal(t, short, Truncate(short, 50))

	long := strings.Repeat("word ", 40)
	got := Truncate(long, 30)
	assert.True(t, strings.HasSuffix(got, Ellipsis))
	assert.LessOrEqual(t, RuneLen(got), 30)
	assert.False(t, strings.Contains(got, "  "))

	noSpaces := strings.Repeat("x", 100)
	got = Truncate(noSpaces, 10)
	assert.Equal(t, strings.Repeat("x", 9)+Ellipsis, got)

	assert.Equal(t, long, Truncate(long, 0), "non-positive limit disables truncation")
}

func TestExcerpt(t *testing.T) {
	t.Parallel()

	got := Excerpt("<div><p>Anchors &amp; ropes</p></div>", 100)
	assert.Equal(t, "Anchors & ropes", got)
}
