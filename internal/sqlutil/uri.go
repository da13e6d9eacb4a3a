// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package sqlutil

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/hyperclast/pagesync/setup/config"
)

// ParseFileURI returns the filepath in the given file: URI. Specifically, this
// will handle both relative (file:foo.db) and absolute (file:///path/to/foo)
// paths.
func ParseFileURI(dataSourceName config.DataSource) (string, error) {
	if !dataSourceName.IsSQLite() {
		return "", fmt.Errorf("%q is not a file URI", dataSourceName)
	}
	uri, err := url.Parse(string(dataSourceName))
	if err != nil {
		return "", err
	}
	var cs string
	if uri.Opaque != "" { // file:filename.db
		cs = uri.Opaque
	} else if uri.Path != "" { // file:///path/to/filename.db
		cs = uri.Path
	} else {
		return "", fmt.Errorf("invalid file uri: %q", dataSourceName)
	}
	// Preserve the query string so SQLite options like _busy_timeout survive.
	if uri.RawQuery != "" {
		cs = strings.Join([]string{cs, uri.RawQuery}, "?")
	}
	return cs, nil
}
