// Package appfs embeds the static assets and SQL migrations shipped with the binaries.
package appfs

import "embed"

//go:embed all:assets migrations
var FS embed.FS
