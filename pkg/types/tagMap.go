package types

import "sort"

// fromSlice sorts tags and keeps the empty map canonical (nil storage) so
// equal maps compare equal with reflect.DeepEqual too.
func fromSlice(tags []Tag) TagMap {
	if len(tags) == 0 {
		return TagMap{}
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Key < tags[j].Key })
	return TagMap{tags: tags}
}

type Tag struct {
	Key   string
	Value string
}

// TagMap is an ordered key/value list. It is a value type: every mutating
// method returns a new TagMap and never touches the receiver's storage.
type TagMap struct {
	tags []Tag
}

// NewTagMap builds a TagMap from m, dropping empty keys.
func NewTagMap(m map[string]string) TagMap {
	tags := make([]Tag, 0, len(m))
	for k, v := range m {
		if k == "" {
			continue
		}
		tags = append(tags, Tag{Key: k, Value: v})
	}
	return fromSlice(tags)
}

// TagMapOf builds a TagMap from alternating key, value arguments.
func TagMapOf(kv ...string) TagMap {
	m := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = kv[i+1]
	}
	return NewTagMap(m)
}

func (t TagMap) search(key string) (int, bool) {
	i := sort.Search(len(t.tags), func(i int) bool { return t.tags[i].Key >= key })
	return i, i < len(t.tags) && t.tags[i].Key == key
}

func (t TagMap) Len() int { return len(t.tags) }

func (t TagMap) Get(key string) (string, bool) {
	i, ok := t.search(key)
	if !ok {
		return "", false
	}
	return t.tags[i].Value, true
}

func (t TagMap) Contains(key string) bool {
	_, ok := t.search(key)
	return ok
}

// With returns a copy with key set to value.
func (t TagMap) With(key, value string) TagMap {
	if key == "" {
		return t
	}
	i, ok := t.search(key)
	out := make([]Tag, 0, len(t.tags)+1)
	out = append(out, t.tags[:i]...)
	out = append(out, Tag{Key: key, Value: value})
	if ok {
		i++
	}
	out = append(out, t.tags[i:]...)
	return TagMap{tags: out}
}

// Without returns a copy lacking key.
func (t TagMap) Without(key string) TagMap {
	i, ok := t.search(key)
	if !ok {
		return t
	}
	out := make([]Tag, 0, len(t.tags)-1)
	out = append(out, t.tags[:i]...)
	out = append(out, t.tags[i+1:]...)
	return fromSlice(out)
}

// Filter returns the tags for which keep returns true.
func (t TagMap) Filter(keep func(key, value string) bool) TagMap {
	out := make([]Tag, 0, len(t.tags))
	for _, tag := range t.tags {
		if keep(tag.Key, tag.Value) {
			out = append(out, tag)
		}
	}
	return fromSlice(out)
}

func (t TagMap) Keys() []string {
	keys := make([]string, len(t.tags))
	for i, tag := range t.tags {
		keys[i] = tag.Key
	}
	return keys
}

// All returns a copy of the tags in key order.
func (t TagMap) All() []Tag {
	out := make([]Tag, len(t.tags))
	copy(out, t.tags)
	return out
}

func (t TagMap) Range(fn func(key, value string) bool) {
	for _, tag := range t.tags {
		if !fn(tag.Key, tag.Value) {
			return
		}
	}
}

func (t TagMap) Map() map[string]string {
	m := make(map[string]string, len(t.tags))
	for _, tag := range t.tags {
		m[tag.Key] = tag.Value
	}
	return m
}

func (t TagMap) Equal(o TagMap) bool {
	if len(t.tags) != len(o.tags) {
		return false
	}
	for i := range t.tags {
		if t.tags[i] != o.tags[i] {
			return false
		}
	}
	return true
}

// SameKeys reports whether both maps carry the same key set.
func (t TagMap) SameKeys(o TagMap) bool {
	if len(t.tags) != len(o.tags) {
		return false
	}
	for i := range t.tags {
		if t.tags[i].Key != o.tags[i].Key {
			return false
		}
	}
	return true
}
