package zipfs

import (
	"fmt"
	"strings"
)

// Policy is the caching policy for reading file contents. It is purely a
// performance choice, all policies return the very same bytes.
type Policy int

const (
	// PolicyNone opens a fresh stream for every read and closes it again.
	PolicyNone Policy = iota

	// PolicyContents decompresses the whole entry on the first read and
	// serves all following reads of the same path from memory.
	PolicyContents

	// PolicyStream keeps one stream open and reuses it for all following
	// reads of the same path, seeking as needed.
	PolicyStream
)

// ParsePolicy returns the [Policy] for its name (as of String()).
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "off":
		return PolicyNone, nil
	case "contents":
		return PolicyContents, nil
	case "stream":
		return PolicyStream, nil
	default:
		return PolicyNone, fmt.Errorf("%w: %q (want none, contents or stream)", errInvalidPolicy, s)
	}
}

func (p Policy) String() string {
	switch p {
	case PolicyNone:
		return "none"
	case PolicyContents:
		return "contents"
	case PolicyStream:
		return "stream"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

func (p Policy) valid() bool {
	return p >= PolicyNone && p <= PolicyStream
}
