package protocol

import (
	"fmt"
	"io"
	"strings"
)

// Kind says what an Entry binds its key to.
type Kind uint8

const (
	KindValue Kind = iota + 1
	KindSection
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindSection:
		return "section"
	case KindList:
		return "list"
	default:
		return "none"
	}
}

// Entry is a single attribute of a Message. Exactly one of Value, Section or List is
// meaningful, as selected by Kind.
type Entry struct {
	Key     string
	Kind    Kind
	Value   []byte
	Section *Message
	List    [][]byte
}

// Message is an ordered collection of attributes. Keys may repeat, lookups return the
// first match. The zero value and the nil *Message are both valid empty messages.
type Message struct {
	entries []Entry
}

func NewMessage() *Message {
	return &Message{}
}

// Set adds a key/value attribute. It returns m so calls can be chained.
func (m *Message) Set(key, value string) *Message {
	return m.SetBytes(key, []byte(value))
}

func (m *Message) Setf(key, format string, args ...interface{}) *Message {
	return m.Set(key, fmt.Sprintf(format, args...))
}

func (m *Message) SetBytes(key string, value []byte) *Message {
	v := make([]byte, len(value))
	copy(v, value)

	m.entries = append(m.entries, Entry{Key: key, Kind: KindValue, Value: v})
	return m
}

// AddSection binds key to an existing message as a nested section.
func (m *Message) AddSection(key string, section *Message) *Message {
	m.entries = append(m.entries, Entry{Key: key, Kind: KindSection, Section: section})
	return m
}

// NewSection adds an empty nested section and returns it for filling in.
func (m *Message) NewSection(key string) *Message {
	section := NewMessage()
	m.AddSection(key, section)
	return section
}

func (m *Message) AddList(key string, values ...string) *Message {
	list := make([][]byte, 0, len(values))
	for _, v := range values {
		list = append(list, []byte(v))
	}

	m.entries = append(m.entries, Entry{Key: key, Kind: KindList, List: list})
	return m
}

// Add appends a raw entry. It is not checked until the message is encoded.
func (m *Message) Add(e Entry) *Message {
	m.entries = append(m.entries, e)
	return m
}

func (m *Message) Len() int {
	if m == nil {
		return 0
	}

	return len(m.entries)
}

// Entries returns a copy of the top level entries in order.
func (m *Message) Entries() []Entry {
	if m == nil {
		return nil
	}

	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

func (m *Message) find(key string, kind Kind) *Entry {
	if m == nil {
		return nil
	}

	for i := range m.entries {
		if m.entries[i].Key == key && m.entries[i].Kind == kind {
			return &m.entries[i]
		}
	}

	return nil
}

// Get returns the value bound to key.
func (m *Message) Get(key string) (string, bool) {
	e := m.find(key, KindValue)
	if e == nil {
		return "", false
	}

	return string(e.Value), true
}

// Section returns the nested section bound to key, or nil.
func (m *Message) Section(key string) *Message {
	e := m.find(key, KindSection)
	if e == nil {
		return nil
	}

	return e.Section
}

// List returns the list bound to key, or nil.
func (m *Message) List(key string) []string {
	e := m.find(key, KindList)
	if e == nil {
		return nil
	}

	out := make([]string, 0, len(e.List))
	for _, item := range e.List {
		out = append(out, string(item))
	}

	return out
}

// Validate checks that every attribute can be put on the wire.
func (m *Message) Validate() error {
	return m.validate("")
}

func (m *Message) validate(prefix string) error {
	if m == nil {
		return nil
	}

	for _, e := range m.entries {
		path := prefix + e.Key

		if err := checkName(e.Key); err != nil {
			return fmt.Errorf("%w: key %q %s", ErrInvalidAttribute, path, err)
		}

		switch e.Kind {
		case KindValue:
			if e.Value == nil {
				return fmt.Errorf("%w: key %q has no value", ErrInvalidAttribute, path)
			}
			if len(e.Value) > MaxValueLen {
				return fmt.Errorf("%w: value of %q is %d bytes, limit is %d",
					ErrInvalidAttribute, path, len(e.Value), MaxValueLen)
			}

		case KindSection:
			if e.Section == nil {
				return fmt.Errorf("%w: key %q has no section", ErrInvalidAttribute, path)
			}
			if err := e.Section.validate(path + "."); err != nil {
				return err
			}

		case KindList:
			for _, item := range e.List {
				if len(item) > MaxValueLen {
					return fmt.Errorf("%w: item of list %q is %d bytes, limit is %d",
						ErrInvalidAttribute, path, len(item), MaxValueLen)
				}
			}

		default:
			return fmt.Errorf("%w: key %q has no value, section or list", ErrInvalidAttribute, path)
		}
	}

	return nil
}

func checkName(name string) error {
	if name == "" {
		return fmt.Errorf("is empty")
	}
	if len(name) > MaxNameLen {
		return fmt.Errorf("is %d bytes, limit is %d", len(name), MaxNameLen)
	}

	return nil
}

// Dump writes m in the text layout used by the strongSwan tools, indenting each
// level by indent spaces:
//
//	name {
//	  key = value
//	  section {
//	  }
//	  list [
//	    item
//	  ]
//	}
func (m *Message) Dump(w io.Writer, name string, indent int) error {
	d := dumper{w: w, indent: indent}

	d.line(0, name+" {")
	m.dump(&d, 1)
	d.line(0, "}")

	return d.err
}

type dumper struct {
	w      io.Writer
	indent int
	err    error
}

func (d *dumper) line(level int, s string) {
	if d.err != nil {
		return
	}

	_, d.err = fmt.Fprintf(d.w, "%s%s\n", strings.Repeat(" ", level*d.indent), s)
}

func (m *Message) dump(d *dumper, level int) {
	if m == nil {
		return
	}

	for _, e := range m.entries {
		switch e.Kind {
		case KindValue:
			d.line(level, fmt.Sprintf("%s = %s", e.Key, e.Value))

		case KindSection:
			d.line(level, e.Key+" {")
			e.Section.dump(d, level+1)
			d.line(level, "}")

		case KindList:
			d.line(level, e.Key+" [")
			for _, item := range e.List {
				d.line(level+1, string(item))
			}
			d.line(level, "]")
		}
	}
}
