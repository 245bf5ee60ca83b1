// Package extract implements deterministic contact-field extraction from
// arbitrary text. It is pure: no I/O, no mutation of input, and bounded
// execution via an input size cap.
package extract

import (
	"regexp"
	"strings"

	"github.com/starreach/starreach-cli/internal/model"
)

// maxScanBytes caps how much of an untrusted document is scanned. Rendered
// pages can be arbitrarily large; contact links live near the top in practice.
const maxScanBytes = 1 << 20

// Patterns are intentionally anchor-free and backtracking-safe: each is a
// single literal host followed by bounded character classes.
var (
	emailRe     = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	linkedinRe  = regexp.MustCompile(`linkedin\.com/in/[a-zA-Z0-9\-_%]+`)
	twitterRe   = regexp.MustCompile(`(?:twitter|x)\.com/([a-zA-Z0-9_]{1,15})`)
	instagramRe = regexp.MustCompile(`instagram\.com/([a-zA-Z0-9._]{1,30})`)
	youtubeRe   = regexp.MustCompile(`youtube\.com/(?:c/|channel/|user/)?(@?[a-zA-Z0-9_\-.]{1,60})`)
	facebookRe  = regexp.MustCompile(`facebook\.com/([a-zA-Z0-9.]{1,50})`)
	blueskyRe   = regexp.MustCompile(`bsky\.app/profile/([a-zA-Z0-9.\-]+)`)
)

// Extract scans text for contact fields. For each field the first match in
// document order wins. Unmatched fields are absent from the returned map.
func Extract(text string) model.Contact {
	if len(text) > maxScanBytes {
		text = text[:maxScanBytes]
	}

	found := make(model.Contact)

	if m := emailRe.FindString(text); m != "" {
		found[model.FieldEmail] = m
	}
	if m := linkedinRe.FindString(text); m != "" {
		found[model.FieldLinkedIn] = "https://www." + m
	}
	if m := twitterRe.FindStringSubmatch(text); m != nil {
		found[model.FieldTwitter] = "https://x.com/" + m[1]
	}
	if m := instagramRe.FindStringSubmatch(text); m != nil {
		found[model.FieldInstagram] = "https://instagram.com/" + m[1]
	}
	if m := youtubeRe.FindStringSubmatch(text); m != nil {
		found[model.FieldYouTube] = "https://youtube.com/" + m[1]
	}
	if m := facebookRe.FindStringSubmatch(text); m != nil {
		found[model.FieldFacebook] = "https://facebook.com/" + m[1]
	}
	if m := blueskyRe.FindStringSubmatch(text); m != nil {
		found[model.FieldBluesky] = "https://bsky.app/profile/" + strings.TrimSuffix(m[1], ".")
	}

	return found
}
