// Package workflows embeds the built-in workflow definition files so they
// work regardless of working directory. Deployments can overlay additional
// definitions from a directory on disk.
package workflows

import "embed"

// FS is the embedded workflow definitions filesystem.
//
//go:embed *.yaml
var FS embed.FS
