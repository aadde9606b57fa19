package cache

import (
	"strings"
	"unicode"
)

// KeyPrefix namespaces every key written for upstream responses.
const KeyPrefix = "cache:external"

// Kind identifies which upstream resource a cache key refers to.
type Kind string

const (
	// KindRandomImage is a random image from any breed.
	KindRandomImage Kind = "dog_random"

	// KindImageByBreed is a random image for a single breed (or breed/sub-breed).
	KindImageByBreed Kind = "dog_breed"

	// KindBreedList is the full breed -> sub-breeds listing.
	KindBreedList Kind = "dog_breeds"
)

// Key represents a unique identifier for a cached upstream response.
type Key struct {
	// Kind is the upstream resource type.
	Kind Kind

	// Breed is only used by KindImageByBreed and is normalized by String.
	Breed string
}

// String generates a deterministic cache key string.
// Format: cache:external:kind[:breed]
//
// Example:
//
//	cache:external:dog_breed:golden/retriever
func (k Key) String() string {
	parts := []string{KeyPrefix, string(k.Kind)}

	if k.Kind == KindImageByBreed {
		parts = append(parts, NormalizeBreed(k.Breed))
	}

	return strings.Join(parts, ":")
}

// NormalizeBreed trims and lowercases a breed name and joins internal
// whitespace runs with "/", so "Golden  Retriever", "golden retriever" and
// "golden/retriever" share one key. The separator doubles as the upstream
// sub-breed separator.
func NormalizeBreed(breed string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(breed), isBreedSeparator), "/")
}

func isBreedSeparator(r rune) bool {
	return r == '/' || unicode.IsSpace(r)
}

// RandomImageKey is the fixed key for random images.
func RandomImageKey() Key {
	return Key{Kind: KindRandomImage}
}

// BreedImageKey returns the key for a random image of the given breed.
func BreedImageKey(breed string) Key {
	return Key{Kind: KindImageByBreed, Breed: breed}
}

// BreedListKey is the fixed key for the breed listing.
func BreedListKey() Key {
	return Key{Kind: KindBreedList}
}
