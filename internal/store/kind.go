package store

import (
	"fmt"
	"strings"
)

// Kind is the level of a content node in the leaf → grouping → container hierarchy.
type Kind uint8

// Supported node kinds. The zero value is invalid.
const (
	KindLeaf Kind = iota + 1
	KindGrouping
	KindContainer
)

// ParseKind converts the persisted/wire form into a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "leaf":
		return KindLeaf, nil
	case "grouping":
		return KindGrouping, nil
	case "container":
		return KindContainer, nil
	default:
		return 0, fmt.Errorf("%w: unknown node kind %q", ErrInvalidInput, s)
	}
}

// String returns the persisted form of k.
func (k Kind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindGrouping:
		return "grouping"
	case KindContainer:
		return "container"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindLeaf, KindGrouping, KindContainer:
		return true
	default:
		return false
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: invalid node kind %d", ErrInvalidInput, uint8(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
