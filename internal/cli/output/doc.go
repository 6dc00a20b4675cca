// Package output renders command results for the lockbox CLI.
//
// Three formats are supported: an aligned table for humans, and JSON or
// YAML for scripts. Struct fields are named after their json tags in every
// format. The table tag controls table rendering only:
//
//	Size int64 `json:"size" table:"bytes"` // 1.5 KB
//	Path string `json:"path" table:"wide"` // shown with --wide
//	Raw  []byte `json:"-" table:"-"`       // never shown
package output
