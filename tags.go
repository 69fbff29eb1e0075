package adsync

import "fmt"

// Tag names a class of server resource whose cached representations are
// invalidated together.
type Tag string

const (
	TagUser     Tag = "User"
	TagOrder    Tag = "Order"
	TagOrders   Tag = "Orders"
	TagProduct  Tag = "Product"
	TagProducts Tag = "Products"
	TagAvatar   Tag = "Avatar"
	TagVoice    Tag = "Voice"
)

var vocabulary = map[Tag]struct{}{
	TagUser:     {},
	TagOrder:    {},
	TagOrders:   {},
	TagProduct:  {},
	TagProducts: {},
	TagAvatar:   {},
	TagVoice:    {},
}

// Valid reports whether t belongs to the fixed tag vocabulary.
func (t Tag) Valid() bool {
	_, ok := vocabulary[t]
	return ok
}

func validateTags(tags []Tag) error {
	for _, t := range tags {
		if !t.Valid() {
			return &ValidationError{Field: "tags", Err: fmt.Errorf("%w: %q", ErrUnknownTag, t)}
		}
	}
	return nil
}

// tagIndex maps tags to the keys that provide them. Not safe for concurrent
// use; the client lock guards it.
type tagIndex struct {
	byTag map[Tag]map[CacheKey]struct{}
	byKey map[CacheKey][]Tag
}

func newTagIndex() *tagIndex {
	return &tagIndex{
		byTag: make(map[Tag]map[CacheKey]struct{}),
		byKey: make(map[CacheKey][]Tag),
	}
}

// index replaces key's associations wholesale.
func (ix *tagIndex) index(key CacheKey, tags []Tag) {
	ix.forget(key)
	if len(tags) == 0 {
		return
	}
	kept := make([]Tag, 0, len(tags))
	for _, t := range tags {
		keys, ok := ix.byTag[t]
		if !ok {
			keys = make(map[CacheKey]struct{})
			ix.byTag[t] = keys
		}
		if _, dup := keys[key]; dup {
			continue
		}
		keys[key] = struct{}{}
		kept = append(kept, t)
	}
	ix.byKey[key] = kept
}

func (ix *tagIndex) forget(key CacheKey) {
	for _, t := range ix.byKey[key] {
		keys := ix.byTag[t]
		delete(keys, key)
		if len(keys) == 0 {
			delete(ix.byTag, t)
		}
	}
	delete(ix.byKey, key)
}

// invalidate returns the union of keys registered under any of tags.
// Order is unspecified.
func (ix *tagIndex) invalidate(tags []Tag) []CacheKey {
	seen := make(map[CacheKey]struct{})
	var out []CacheKey
	for _, t := range tags {
		for k := range ix.byTag[t] {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}

func (ix *tagIndex) tagsOf(key CacheKey) []Tag {
	return append([]Tag(nil), ix.byKey[key]...)
}
