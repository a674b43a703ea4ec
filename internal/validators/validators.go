//
// validators.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
//

package validators

import (
	"net/url"
	"strings"
)

// ------------------------------------------------------

// SanitizeURL normalize given url.
// Do not normalize query & path; do not expand shortcuts, remove user/pass.
// Accept only http/s.
func SanitizeURL(u string) string {
	su := strings.TrimSpace(u)

	if len(su) < 8 { //nolint:mnd
		return ""
	}

	purl, err := url.Parse(su)
	if err != nil {
		return ""
	}

	// url without scheme are http; feed://, itpc:// and itms:// are really http://
	if purl.Scheme == "" || purl.Scheme == "feed" || purl.Scheme == "itpc" || purl.Scheme == "itms" {
		purl.Scheme = "http"
	}

	// scheme and host are case insensitive
	purl.Scheme = strings.ToLower(purl.Scheme)
	purl.Host = strings.ToLower(purl.Host)

	if purl.Path == "" {
		purl.Path = "/"
	}

	if purl.Scheme != "http" && purl.Scheme != "https" {
		return ""
	}

	return purl.String()
}

// ------------------------------------------------------

// SanitizeFilename map an episode guid to a filesystem-safe bare filename:
// every path-unsafe rune becomes '_'.
func SanitizeFilename(name string) string {
	var out strings.Builder

	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			out.WriteRune(r)
		default:
			out.WriteRune('_')
		}
	}

	return strings.Trim(out.String(), "_")
}
