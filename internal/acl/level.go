package acl

import "github.com/rustic-rs/rustic-server/internal/errors"

// Level is a totally ordered access level: Read < Append < Modify.
type Level int

const (
	// None grants no access at all.
	None Level = iota
	// Read allows listing and fetching objects, and reading config.
	Read
	// Append allows Read plus creating new objects (and config, if absent).
	Append
	// Modify allows Append plus deleting objects, deleting a repository,
	// and overwriting where the storage engine permits it.
	Modify
)

func (l Level) String() string {
	switch l {
	case None:
		return "None"
	case Read:
		return "Read"
	case Append:
		return "Append"
	case Modify:
		return "Modify"
	default:
		return "Unknown"
	}
}

// ParseLevel parses the textual level names used in the ACL file.
// Comparison is case-sensitive, matching spec.md's
// literal `"Read"|"Append"|"Modify"` grammar.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "Read":
		return Read, nil
	case "Append":
		return Append, nil
	case "Modify":
		return Modify, nil
	default:
		return None, errors.Errorf("unknown access level %q", s)
	}
}
