package order

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid"
)

// LocalPrefix marks ids synthesized on this side when the remote service
// was not used. It is never valid UUID text.
const LocalPrefix = "local_"

type Origin uint8

const (
	OriginUnknown Origin = iota
	OriginRemote
	OriginLocal
)

func (o Origin) String() string {
	switch o {
	case OriginRemote:
		return "remote"
	case OriginLocal:
		return "local"
	default:
		return "unknown"
	}
}

var ErrInvalidID = errors.New("invalid order id")

// ID identifies an order together with where it came from. Only remote ids
// carry a row id the repository understands.
type ID struct {
	origin Origin
	remote uuid.UUID
	local  string
}

func RemoteID(id uuid.UUID) ID {
	return ID{origin: OriginRemote, remote: id}
}

func NewLocalID() (ID, error) {
	u, err := uuid.NewV4()
	if err != nil {
		return ID{}, fmt.Errorf("order: failed to generate local id: %w", err)
	}
	return ID{origin: OriginLocal, local: strings.ReplaceAll(u.String(), "-", "")}, nil
}

// ParseID accepts either a UUID or a local_-prefixed id.
func ParseID(s string) (ID, error) {
	s = strings.TrimSpace(s)

	if rest, ok := strings.CutPrefix(s, LocalPrefix); ok {
		if rest == "" {
			return ID{}, fmt.Errorf("%w: %q", ErrInvalidID, s)
		}
		return ID{origin: OriginLocal, local: rest}, nil
	}

	u, err := uuid.FromString(s)
	if err != nil || u == uuid.Nil {
		return ID{}, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return RemoteID(u), nil
}

func (id ID) Origin() Origin {
	return id.origin
}

func (id ID) IsLocal() bool {
	return id.origin == OriginLocal
}

func (id ID) IsZero() bool {
	return id.origin == OriginUnknown
}

// Remote returns the row id of a remote order.
func (id ID) Remote() (uuid.UUID, bool) {
	if id.origin != OriginRemote {
		return uuid.Nil, false
	}
	return id.remote, true
}

func (id ID) String() string {
	switch id.origin {
	case OriginRemote:
		return id.remote.String()
	case OriginLocal:
		return LocalPrefix + id.local
	default:
		return ""
	}
}

func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ID) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*id = ID{}
		return nil
	}
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
