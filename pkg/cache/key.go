// Package cache provides an optional redis-backed page cache for collected
// reference-data responses. The collector works identically with caching
// disabled; a hit merely short-circuits the HTTP call.
package cache

import (
	"net/url"
	"sort"
	"strings"
)

// Key identifies a cached page by its credential-stripped request URL.
type Key struct {
	normalized string
}

// NewKey builds a deterministic cache key from a request URL. The credential
// query parameter is stripped so the key never embeds a secret, and the
// remaining query parameters are sorted.
func NewKey(rawURL, credentialParam string) Key {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		// Unparseable URLs still get a stable key.
		return Key{normalized: rawURL}
	}

	query := parsed.Query()
	query.Del(credentialParam)

	names := make([]string, 0, len(query))
	for name := range query {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(parsed.Scheme)
	b.WriteString("://")
	b.WriteString(parsed.Host)
	b.WriteString(parsed.Path)
	for _, name := range names {
		b.WriteByte('&')
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(query.Get(name))
	}

	return Key{normalized: b.String()}
}

// String returns the redis key for this page.
func (k Key) String() string {
	return "refharvest:page:" + k.normalized
}
