//go:build tools

package docs

// Pins the swag CLI used by go:generate.
import _ "github.com/swaggo/swag/cmd/swag"
