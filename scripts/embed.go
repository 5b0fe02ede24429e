// Package scripts embeds the Risor catalog and extraction scripts so the CLI
// works without a scripts directory on disk.
package scripts

import "embed"

//go:embed catalog/*.risor extract/*.risor
var FS embed.FS
