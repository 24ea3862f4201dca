// Package schemas carries the per-action OCPP payload schema files. The
// bundle follows the upstream layout, one file per action and role:
// <version>/<action>Request.json and <version>/<action>Response.json.
package schemas

import "embed"

// Files holds the 1.6 and 2.0.1 schema bundles.
//
//go:embed ocpp1.6 ocpp2.0.1
var Files embed.FS
