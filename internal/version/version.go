// Package version exposes the software version reported in registrations.
package version

import "fmt"

const (
	Major = 0
	Minor = 3
	Patch = 1
)

// Short returns the dotted version string, e.g. "0.3.1".
func Short() string {
	return fmt.Sprintf("%d.%d.%d", Major, Minor, Patch)
}

// Full returns the version with the product name prefix.
func Full() string {
	return "stratadb " + Short()
}
