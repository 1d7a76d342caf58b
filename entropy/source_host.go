//go:build !tinygo && !baremetal

package entropy

import (
	crand "crypto/rand"
	"io"
)

// DefaultSource returns the operating system's CSPRNG.
func DefaultSource() io.Reader { return crand.Reader }
