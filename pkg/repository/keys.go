package repository

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// Key is the set of identity types an entity may use.
type Key interface {
	int | int64 | string | uuid.UUID
}

// KeyKind classifies a key type for the dispatch tables below.
type KeyKind int

const (
	KeyInteger KeyKind = iota
	KeyLong
	KeyUUID
	KeyText
)

func (k KeyKind) String() string {
	switch k {
	case KeyInteger:
		return "integer"
	case KeyLong:
		return "long"
	case KeyUUID:
		return "uuid"
	case KeyText:
		return "text"
	default:
		return fmt.Sprintf("KeyKind(%d)", int(k))
	}
}

// Numeric reports whether keys of this kind must be supplied by the caller.
func (k KeyKind) Numeric() bool {
	return k == KeyInteger || k == KeyLong
}

// KindOf returns the kind of K.
func KindOf[K Key]() KeyKind {
	var zero K
	switch any(zero).(type) {
	case int:
		return KeyInteger
	case int64:
		return KeyLong
	case uuid.UUID:
		return KeyUUID
	default:
		return KeyText
	}
}

// keyGenerators produce a fresh identity per kind. Numeric kinds have no entry.
var keyGenerators = map[KeyKind]func() any{
	KeyUUID: func() any { return uuid.New() },
	KeyText: func() any { return uuid.NewString() },
}

var keyParsers = map[KeyKind]func(string) (any, error){
	KeyInteger: func(s string) (any, error) { return strconv.Atoi(s) },
	KeyLong:    func(s string) (any, error) { return strconv.ParseInt(s, 10, 64) },
	KeyUUID:    func(s string) (any, error) { return uuid.Parse(s) },
	KeyText:    func(s string) (any, error) { return s, nil },
}

// NewKey generates a random key. It fails with ErrMissingIdentity for numeric
// kinds.
func NewKey[K Key]() (K, error) {
	var zero K
	kind := KindOf[K]()
	gen, ok := keyGenerators[kind]
	if !ok {
		return zero, fmt.Errorf("%w: %s keys are not generated", ErrMissingIdentity, kind)
	}
	return gen().(K), nil
}

// ParseKey reads a key from its string form, as used in URLs.
func ParseKey[K Key](s string) (K, error) {
	var zero K
	v, err := keyParsers[KindOf[K]()](s)
	if err != nil {
		return zero, fmt.Errorf("parsing key %q: %w", s, err)
	}
	return v.(K), nil
}

// KeyString is the stringified key identity filters compare against.
func KeyString[K Key](k K) string {
	return fmt.Sprint(k)
}

// IsZeroKey reports whether k is its type's zero value.
func IsZeroKey[K Key](k K) bool {
	var zero K
	return k == zero
}
