package urlcanon

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		base string
		want string
	}{
		{
			name: "tracking params fragment and trailing slash",
			raw:  "https://example.com/path/?utm_source=x&ref=foo&keep=1#section",
			want: "https://example.com/path?keep=1",
		},
		{
			name: "relative against base",
			raw:  "/posts/hello/",
			base: "https://blog.example.com/feed.xml",
			want: "https://blog.example.com/posts/hello",
		},
		{
			name: "host case and default port",
			raw:  "HTTPS://Example.COM:443/a",
			want: "https://example.com/a",
		},
		{
			name: "root keeps slash",
			raw:  "https://example.com",
			want: "https://example.com/",
		},
		{
			name: "only tracking params",
			raw:  "https://example.com/a?utm_medium=rss&fbclid=1",
			want: "https://example.com/a",
		},
		{
			name: "query order preserved",
			raw:  "https://example.com/a?b=2&a=1&utm_campaign=z",
			want: "https://example.com/a?b=2&a=1",
		},
		{
			name: "trailing slash trim keeps escapes",
			raw:  "https://example.com/a%2Fb/",
			want: "https://example.com/a%2Fb",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Canonicalize(tt.raw, tt.base)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanonicalizeRejectsNonHTTP(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "mailto:a@example.com", "tag:example.com,2024:1", "relative/only"} {
		_, err := Canonicalize(raw, "")
		require.Error(t, err, raw)
		if raw != "" && raw != "relative/only" {
			assert.True(t, errors.Is(err, ErrNotHTTP), raw)
		}
	}
}

func TestLooksLikeURL(t *testing.T) {
	t.Parallel()

	assert.True(t, LooksLikeURL("https://example.com/p/1"))
	assert.True(t, LooksLikeURL("  http://example.com  "))
	assert.False(t, LooksLikeURL("urn:uuid:1234"))
	assert.False(t, LooksLikeURL("1234"))
	assert.False(t, LooksLikeURL("https://"))
}

func TestHostname(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "example.com", Hostname("https://WWW.Example.com/x"))
	assert.Equal(t, "", Hostname("::bad"))
}
