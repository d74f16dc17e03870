package fetch

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// BotWallError signals an anti-bot interstitial instead of the requested page.
type BotWallError struct {
	URL   string
	Title string
}

func (e *BotWallError) Error() string {
	return fmt.Sprintf("bot wall at %s (title %q)", e.URL, e.Title)
}

var botWallTitle = regexp.MustCompile(`(?i)just a moment|attention required|access denied|pardon our interruption|are you a (?:robot|human)|verify(?:ing)? you are (?:a )?human|captcha|security check|ddos-guard|one more step`)

var botWallPath = regexp.MustCompile(`(?i)/cdn-cgi/challenge|captcha|/challenge(?:[/?]|$)|/blocked(?:[/?]|$)|perimeterx|distil_r_`)

// DetectBotWall reports whether a page title or final URL looks like an anti-bot challenge.
func DetectBotWall(title, pageURL string) bool {
	if botWallTitle.MatchString(strings.TrimSpace(title)) {
		return true
	}
	if pageURL == "" {
		return false
	}
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return false
	}
	return botWallPath.MatchString(parsed.Path + "?" + parsed.RawQuery)
}

// botWallBody checks the <title> of an HTML response body.
func botWallBody(body []byte, pageURL string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", false
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	return title, DetectBotWall(title, pageURL)
}
