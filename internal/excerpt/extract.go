package excerpt

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/realtime-feeds/internal/textnorm"
)

// Extractor pulls a plain-text excerpt out of an HTML page. Callers depend
// only on this interface so the extraction strategy can change freely.
type Extractor interface {
	Extract(body []byte) string
}

var boilerplate = regexp.MustCompile(`(?i)^(by\s+\S+|posted\s+(on|by)|published\s|updated\s|written\s+by|share\s|share this|subscribe|sign up|follow us|cookies?|we use cookies|advertisement|read more|related|filed under|tags?:|photo:|image:|\d+\s+min(ute)?s?\s+read)|` +
	`^(jan(uary)?|feb(ruary)?|mar(ch)?|apr(il)?|may|jun(e)?|jul(y)?|aug(ust)?|sep(tember)?|oct(ober)?|nov(ember)?|dec(ember)?)\s+\d{1,2},?\s+\d{4}|` +
	`^\d{4}-\d{2}-\d{2}|` +
	`(share on (twitter|facebook|linkedin)|all rights reserved|©)`)

// ParagraphExtractor returns the first paragraph whose stripped text is at
// least MinRunes long and does not look like a byline, date, or share prompt.
type ParagraphExtractor struct {
	MinRunes int
	MaxRunes int
}

var paragraphSelectors = []string{"article p", "main p", "[role=main] p", "p"}

// Extract implements Extractor.
func (e ParagraphExtractor) Extract(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript, nav, header, footer, aside, form, figure, figcaption").Remove()

	for _, sel := range paragraphSelectors {
		var found string
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := textnorm.CollapseSpace(s.Text())
			if !e.acceptable(text) {
				return true
			}
			found = text
			return false
		})
		if found != "" {
			return textnorm.Truncate(found, e.MaxRunes)
		}
	}
	return ""
}

func (e ParagraphExtractor) acceptable(text string) bool {
	if textnorm.RuneLen(text) < e.MinRunes {
		return false
	}
	return !IsBoilerplate(text)
}

// IsBoilerplate reports text that reads like page chrome rather than content.
func IsBoilerplate(text string) bool {
	return boilerplate.MatchString(strings.TrimSpace(text))
}
