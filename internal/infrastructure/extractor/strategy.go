package extractor

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
)

// Strategy is one way of reading a field from a parsed page
type Strategy[T any] struct {
	Name string
	Find func(doc *goquery.Selection) (T, bool)
}

// FirstMatch tries strategies in order and returns the first hit.
// The winning strategy is logged because store markup drifts and this is where it shows.
func FirstMatch[T any](sel *goquery.Selection, field string, strategies []Strategy[T]) (T, bool) {
	for _, s := range strategies {
		if v, ok := s.Find(sel); ok {
			logrus.WithFields(logrus.Fields{"field": field, "strategy": s.Name}).Debug("[EXTRACT] field resolved")
			return v, true
		}
	}
	logrus.WithField("field", field).Debug("[EXTRACT] no strategy matched")
	var zero T
	return zero, false
}

var (
	priceRegex      = regexp.MustCompile(`\$?([\d,]+(?:\.\d+)?)`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// textOf returns the collapsed text of the first element matching selector
func textOf(sel *goquery.Selection, selector string) (string, bool) {
	text := cleanText(sel.Find(selector).First().Text())
	return text, text != ""
}

// attrOf returns an attribute of the first element matching selector
func attrOf(sel *goquery.Selection, selector, attr string) (string, bool) {
	v, ok := sel.Find(selector).First().Attr(attr)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func cleanText(s string) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))
}

// parsePrice reads the first dollar amount in text
func parsePrice(text string) (float64, bool) {
	m := priceRegex.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// firstFloat returns the first capture of the first pattern that matches text
func firstFloat(text string, patterns ...*regexp.Regexp) (float64, bool) {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				return v, true
			}
		}
	}
	return 0, false
}

// firstInt is firstFloat for integer captures that may carry thousands separators
func firstInt(text string, patterns ...*regexp.Regexp) (int, bool) {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); m != nil {
			if v, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", "")); err == nil {
				return v, true
			}
		}
	}
	return 0, false
}

// joinListItems joins the text of each li under sel with newlines
func joinListItems(sel *goquery.Selection) string {
	var lines []string
	sel.Find("li").Each(func(_ int, li *goquery.Selection) {
		if text := cleanText(li.Text()); text != "" {
			lines = append(lines, text)
		}
	})
	return strings.Join(lines, "\n")
}
