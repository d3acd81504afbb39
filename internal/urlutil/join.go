// Package urlutil joins URL paths without the usual slash accidents.
package urlutil

import (
	"net/url"
	"path"
	"strings"
)

// JoinPath joins path segments onto a base URL, normalizing duplicate and
// missing slashes. A trailing slash on the final segment is kept.
func JoinPath(base string, segments ...string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}

	all := append([]string{u.Path}, segments...)
	u.Path = path.Join(all...)

	if len(segments) > 0 && strings.HasSuffix(segments[len(segments)-1], "/") {
		u.Path += "/"
	}

	return u.String(), nil
}
