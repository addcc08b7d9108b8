// Package configs carries the bundled default policy.
package configs

import _ "embed"

// PolicyFile is the bundled policy's file name inside this directory.
const PolicyFile = "policy.yml"

// DefaultPolicy is policy.yml compiled into the binary, used when the file
// is not present on disk.
//
//go:embed policy.yml
var DefaultPolicy []byte
