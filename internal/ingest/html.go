// Package ingest fetches raw items from feeds and web pages.
package ingest

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	noiseSelector = "script, style, noscript, iframe, nav, footer, aside, form"
	blockSelector = "p, h1, h2, h3, h4, h5, h6, li, blockquote, pre"
)

// TextFromHTML converts an HTML fragment into plain text with one paragraph
// per block element.
func TextFromHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return collapse(html)
	}
	return selectionText(doc.Selection)
}

func selectionText(sel *goquery.Selection) string {
	sel.Find(noiseSelector).Remove()

	var paragraphs []string
	sel.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		// Nested blocks (li > p) are reported by the innermost element only.
		if s.Find(blockSelector).Length() > 0 {
			return
		}
		if text := collapse(s.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	if len(paragraphs) == 0 {
		return collapse(sel.Text())
	}
	return strings.Join(paragraphs, "\n\n")
}

// firstImage returns the src of the first img in an HTML fragment.
func firstImage(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	src, _ := doc.Find("img[src]").First().Attr("src")
	return strings.TrimSpace(src)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// resolve makes ref absolute against base; unusable references yield "".
func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(ref, "javascript:") || strings.HasPrefix(ref, "data:") {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(u)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	abs.Fragment = ""
	return abs.String()
}
