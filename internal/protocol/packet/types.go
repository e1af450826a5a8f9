package packet

import "fmt"

// Type is the header message kind.
type Type uint32

const (
	TypeUnknown      Type = 0
	TypeFileList     Type = 1
	TypeRetrieveFile Type = 2
	TypeFileChanged  Type = 3
)

func (t Type) String() string {
	switch t {
	case TypeFileList:
		return "FILE_LIST"
	case TypeRetrieveFile:
		return "RETRIEVE_FILE"
	case TypeFileChanged:
		return "FILE_CHANGED"
	default:
		return fmt.Sprintf("TYPE(%d)", uint32(t))
	}
}

// Header identifies one logical exchange.
type Header struct {
	ID       uint64
	Type     Type
	Username string
	Session  string
}

// ValueKind tags a metadata value on the wire.
type ValueKind uint32

const (
	KindInt    ValueKind = 1
	KindString ValueKind = 2
	KindBytes  ValueKind = 3
)

// Value is one scalar metadata value.
type Value struct {
	kind ValueKind
	i    int64
	s    string
	b    []byte
}

func Int(v int64) Value {
	return Value{kind: KindInt, i: v}
}

func String(v string) Value {
	return Value{kind: KindString, s: v}
}

func Bytes(v []byte) Value {
	return Value{kind: KindBytes, b: append([]byte(nil), v...)}
}

func (v Value) Kind() ValueKind {
	return v.kind
}

func (v Value) AsInt() (int64, bool) {
	return v.i, v.kind == KindInt
}

func (v Value) AsString() (string, bool) {
	return v.s, v.kind == KindString
}

func (v Value) AsBytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return append([]byte(nil), v.b...), true
}

func (v Value) GoString() string {
	switch v.kind {
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindString:
		return fmt.Sprintf("%q", v.s)
	case KindBytes:
		return fmt.Sprintf("bytes[%d]", len(v.b))
	default:
		return "invalid"
	}
}

type entry struct {
	key string
	val Value
}

// Metadata is an insertion-ordered string-keyed mapping. The zero value is
// empty and ready to use.
type Metadata struct {
	entries []entry
}

// Set stores v under key, replacing an existing value in place.
func (m *Metadata) Set(key string, v Value) *Metadata {
	for i := range m.entries {
		if m.entries[i].key == key {
			m.entries[i].val = v
			return m
		}
	}
	m.entries = append(m.entries, entry{key: key, val: v})
	return m
}

func (m *Metadata) SetInt(key string, v int64) *Metadata {
	return m.Set(key, Int(v))
}

func (m Metadata) Get(key string) (Value, bool) {
	for _, e := range m.entries {
		if e.key == key {
			return e.val, true
		}
	}
	return Value{}, false
}

// Int returns the int value under key. The second result is false when the
// key is absent or holds another kind.
func (m Metadata) Int(key string) (int64, bool) {
	v, ok := m.Get(key)
	if !ok {
		return 0, false
	}
	return v.AsInt()
}

func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		keys = append(keys, e.key)
	}
	return keys
}

func (m Metadata) Len() int {
	return len(m.entries)
}

func (m Metadata) clone() Metadata {
	if len(m.entries) == 0 {
		return Metadata{}
	}
	return Metadata{entries: append([]entry(nil), m.entries...)}
}

// ContentKind tags the content payload on the wire.
type ContentKind uint32

const (
	ContentNone     ContentKind = 0
	ContentString   ContentKind = 1
	ContentFileList ContentKind = 2
	ContentBytes    ContentKind = 3
)

// FileEntry is one listing row. Size -1 marks a directory.
type FileEntry struct {
	Path string
	Size int64
}

// DirSize is the size reported for directories in a listing.
const DirSize int64 = -1

// Content is the single payload slot of a packet.
type Content struct {
	kind ContentKind
	text string
	list []FileEntry
	data []byte
}

func TextContent(s string) Content {
	return Content{kind: ContentString, text: s}
}

func FileListContent(list []FileEntry) Content {
	return Content{kind: ContentFileList, list: append([]FileEntry{}, list...)}
}

func BytesContent(b []byte) Content {
	return Content{kind: ContentBytes, data: append([]byte{}, b...)}
}

func (c Content) Kind() ContentKind {
	return c.kind
}

func (c Content) Text() (string, bool) {
	return c.text, c.kind == ContentString
}

func (c Content) FileList() ([]FileEntry, bool) {
	if c.kind != ContentFileList {
		return nil, false
	}
	return append([]FileEntry{}, c.list...), true
}

func (c Content) Data() ([]byte, bool) {
	if c.kind != ContentBytes {
		return nil, false
	}
	return append([]byte{}, c.data...), true
}
