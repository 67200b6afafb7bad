package contexts

import (
	"path"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrInvalidContext is returned for malformed context names
var ErrInvalidContext = errors.New("invalid context")

const (
	// RESERVED_MARKER starts the segments of system managed contexts
	RESERVED_MARKER = "#"
	// ANY_DESCENDANTS as the last segment of a pattern matches any number of segments
	ANY_DESCENDANTS = "**"
)

// Name is a hierarchical context name: protocol, host and path segments.
// It is printed as proto://host/seg/seg.
// Names are comparable values, they may be used as map keys
type Name struct {
	protocol string
	host     string
	// path is the segments joined with /, empty for a root context
	path string
}

// New returns a context name after validation of each part
func New(protocol, host string, segments ...string) (Name, error) {
	if !validProtocol(protocol) {
		return Name{}, errors.Wrapf(ErrInvalidContext, "invalid protocol %q", protocol)
	} else if host == "" || strings.ContainsAny(host, "/ \t\n") {
		return Name{}, errors.Wrapf(ErrInvalidContext, "invalid host %q", host)
	}

	for _, segment := range segments {
		if err := checkSegment(segment); err != nil {
			return Name{}, err
		}
	}

	return Name{protocol: strings.ToLower(protocol), host: strings.ToLower(host), path: strings.Join(segments, "/")}, nil
}

// Parse reads proto://host/seg/seg. A trailing slash is ignored
func Parse(value string) (Name, error) {
	protocol, rest, found := strings.Cut(strings.TrimSpace(value), "://")
	if !found {
		return Name{}, errors.Wrapf(ErrInvalidContext, "missing :// in %q", value)
	}

	rest = strings.TrimSuffix(rest, "/")
	parts := strings.Split(rest, "/")
	return New(protocol, parts[0], parts[1:]...)
}

// MustParse parses a name and panics on error
func MustParse(value string) Name {
	result, err := Parse(value)
	if err != nil {
		panic(err)
	}

	return result
}

func validProtocol(protocol string) bool {
	if protocol == "" {
		return false
	}

	for index, char := range protocol {
		switch {
		case char >= 'a' && char <= 'z', char >= 'A' && char <= 'Z':
		case index > 0 && (char >= '0' && char <= '9' || char == '+' || char == '-' || char == '.'):
		default:
			return false
		}
	}

	return true
}

func checkSegment(segment string) error {
	if segment == "" || segment == RESERVED_MARKER || strings.ContainsAny(segment, "/ \t\n") {
		return errors.Wrapf(ErrInvalidContext, "invalid segment %q", segment)
	}

	return nil
}

// IsZero returns true for the zero value, not a valid context
func (n Name) IsZero() bool {
	return n.protocol == ""
}

// Protocol returns the protocol of the name
func (n Name) Protocol() string {
	return n.protocol
}

// Host returns the host of the name
func (n Name) Host() string {
	return n.host
}

// Segments returns the path segments of the name
func (n Name) Segments() []string {
	if n.path == "" {
		return nil
	}

	return strings.Split(n.path, "/")
}

// String returns proto://host/seg/seg
func (n Name) String() string {
	if n.IsZero() {
		return ""
	} else if n.path == "" {
		return n.protocol + "://" + n.host
	}

	return n.protocol + "://" + n.host + "/" + n.path
}

// Child returns the sub context with one more segment
func (n Name) Child(segment string) (Name, error) {
	if n.IsZero() {
		return Name{}, errors.Wrap(ErrInvalidContext, "zero context has no child")
	} else if err := checkSegment(segment); err != nil {
		return Name{}, err
	}

	result := n
	if result.path == "" {
		result.path = segment
	} else {
		result.path = result.path + "/" + segment
	}

	return result, nil
}

// Parent returns the context with the last segment removed, false for a root context
func (n Name) Parent() (Name, bool) {
	if n.path == "" {
		return Name{}, false
	}

	result := n
	if index := strings.LastIndex(n.path, "/"); index < 0 {
		result.path = ""
	} else {
		result.path = n.path[:index]
	}

	return result, true
}

// IsDescendantOf returns true if other is a strict ancestor of the receiver
func (n Name) IsDescendantOf(other Name) bool {
	if n.protocol != other.protocol || n.host != other.host || len(n.path) <= len(other.path) {
		return false
	} else if other.path == "" {
		return true
	}

	return strings.HasPrefix(n.path, other.path+"/")
}

// IsAncestorOf returns true if the receiver is a strict ancestor of other
func (n Name) IsAncestorOf(other Name) bool {
	return other.IsDescendantOf(n)
}

// IsReserved returns true if a segment starts with the reserved marker.
// Such contexts are managed by the system, not by users
func (n Name) IsReserved() bool {
	for _, segment := range n.Segments() {
		if strings.HasPrefix(segment, RESERVED_MARKER) {
			return true
		}
	}

	return false
}

// Match returns true if the name matches a pattern with the same form.
// Each pattern segment is a glob (see path.Match), and a last ** segment matches any remaining segments.
// Protocol and host should be equal
func (n Name) Match(pattern string) (bool, error) {
	protocol, rest, found := strings.Cut(strings.TrimSpace(pattern), "://")
	if !found {
		return false, errors.Wrapf(ErrInvalidContext, "missing :// in pattern %q", pattern)
	}

	parts := strings.Split(strings.TrimSuffix(rest, "/"), "/")
	if !strings.EqualFold(protocol, n.protocol) || !strings.EqualFold(parts[0], n.host) {
		return false, nil
	}

	expected := parts[1:]
	segments := n.Segments()
	for index, glob := range expected {
		if glob == ANY_DESCENDANTS && index == len(expected)-1 {
			return len(segments) >= index, nil
		} else if index >= len(segments) {
			return false, nil
		}

		matches, err := path.Match(glob, segments[index])
		if err != nil {
			return false, errors.Wrapf(ErrInvalidContext, "invalid pattern %q", pattern)
		} else if !matches {
			return false, nil
		}
	}

	return len(segments) == len(expected), nil
}
