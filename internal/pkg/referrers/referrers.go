// Package referrers turns raw document.referrer strings into report buckets.
package referrers

import (
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Direct is the bucket for visits without a usable referrer.
const Direct = "Direct"

// maxRawSourceLength bounds the fallback label for referrers that are not URLs.
const maxRawSourceLength = 30

// Source returns the bucket a raw referrer is counted under: its hostname
// without a leading "www.", Direct when empty, or the first 30 characters of
// the raw value when it does not parse as an absolute URL.
func Source(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Direct
	}

	parsed, err := url.Parse(raw)
	if err != nil || parsed.Hostname() == "" {
		runes := []rune(raw)
		if len(runes) > maxRawSourceLength {
			runes = runes[:maxRawSourceLength]
		}
		return string(runes)
	}

	return strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
}

// knownSources groups the hostnames a portfolio is usually reached from.
var knownSources = []struct {
	name  string
	hosts []string
}{
	// Hiring and professional networks
	{"LinkedIn", []string{"linkedin.com", "lnkd.in"}},
	{"Indeed", []string{"indeed.com"}},
	{"Glassdoor", []string{"glassdoor.com"}},
	{"Wellfound", []string{"wellfound.com", "angel.co"}},
	{"Handshake", []string{"joinhandshake.com"}},

	// Code and research
	{"GitHub", []string{"github.com", "github.io"}},
	{"GitLab", []string{"gitlab.com"}},
	{"Stack Overflow", []string{"stackoverflow.com"}},
	{"Google Scholar", []string{"scholar.google.com"}},
	{"ResearchGate", []string{"researchgate.net"}},
	{"ORCID", []string{"orcid.org"}},
	{"arXiv", []string{"arxiv.org"}},
	{"ACM Digital Library", []string{"dl.acm.org"}},
	{"IEEE Xplore", []string{"ieeexplore.ieee.org"}},
	{"Hacker News", []string{"news.ycombinator.com", "hn.algolia.com"}},
	{"DEV Community", []string{"dev.to"}},
	{"Medium", []string{"medium.com"}},
	{"Substack", []string{"substack.com"}},

	// Search
	{"Gmail", []string{"mail.google.com"}},
	{"Google", []string{"google.com", "google.co.uk", "google.de", "google.fr", "google.es", "google.ca", "google.com.au", "google.co.jp", "google.com.br"}},
	{"Bing", []string{"bing.com"}},
	{"DuckDuckGo", []string{"duckduckgo.com"}},
	{"Yahoo", []string{"yahoo.com"}},
	{"Baidu", []string{"baidu.com"}},
	{"Yandex", []string{"yandex.ru"}},
	{"Ecosia", []string{"ecosia.org"}},
	{"Kagi", []string{"kagi.com"}},

	// Social
	{"X/Twitter", []string{"x.com", "twitter.com", "t.co"}},
	{"Facebook", []string{"facebook.com", "fb.com"}},
	{"Instagram", []string{"instagram.com"}},
	{"Reddit", []string{"reddit.com"}},
	{"Threads", []string{"threads.net"}},
	{"Bluesky", []string{"bsky.app"}},
	{"Mastodon", []string{"mastodon.social"}},
	{"YouTube", []string{"youtube.com", "youtu.be"}},
	{"Discord", []string{"discord.com", "discordapp.com"}},
	{"Slack", []string{"slack.com"}},
	{"Telegram", []string{"t.me", "telegram.org"}},
	{"WhatsApp", []string{"whatsapp.com"}},

	// Mail clients
	{"Outlook", []string{"outlook.live.com", "outlook.office.com"}},
	{"Proton Mail", []string{"mail.proton.me", "protonmail.com"}},
}

var friendlyNames = func() map[string]string {
	m := make(map[string]string)
	for _, s := range knownSources {
		for _, h := range s.hosts {
			m[h] = s.name
		}
	}
	return m
}()

// FriendlyName returns a display name for a referrer hostname. Known hosts
// and their subdomains map to the most specific entry; anything else is the
// hostname without "www." and with its first letter capitalized.
func FriendlyName(hostname string) string {
	hostname = strings.TrimPrefix(strings.ToLower(hostname), "www.")

	// Strip leading labels until a known host matches.
	for h := hostname; h != ""; {
		if name, ok := friendlyNames[h]; ok {
			return name
		}
		dot := strings.IndexByte(h, '.')
		if dot < 0 {
			break
		}
		h = h[dot+1:]
	}

	return capitalizeFirst(hostname)
}

func capitalizeFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
