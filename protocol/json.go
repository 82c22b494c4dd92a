package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var ErrInvalidJSON = errors.New("invalid JSON message")

// MarshalJSON renders m as a JSON object. Values become strings, lists become
// arrays of strings and sections become nested objects. Repeated keys collapse
// onto the last occurrence.
func (m *Message) MarshalJSON() ([]byte, error) {
	doc := []byte(`{}`)

	if m == nil {
		return doc, nil
	}

	var err error
	for _, e := range m.entries {
		path := EscapePath(e.Key)

		switch e.Kind {
		case KindValue:
			doc, err = sjson.SetBytes(doc, path, string(e.Value))

		case KindSection:
			var raw []byte
			if raw, err = e.Section.MarshalJSON(); err == nil {
				doc, err = sjson.SetRawBytes(doc, path, raw)
			}

		case KindList:
			items := make([]string, 0, len(e.List))
			for _, item := range e.List {
				items = append(items, string(item))
			}
			doc, err = sjson.SetBytes(doc, path, items)

		default:
			err = fmt.Errorf("%w: key %q has no value, section or list", ErrInvalidAttribute, e.Key)
		}

		if err != nil {
			return nil, err
		}
	}

	return doc, nil
}

// UnmarshalJSON replaces the contents of m with the JSON object in data.
func (m *Message) UnmarshalJSON(data []byte) error {
	parsed, err := ParseJSON(data)
	if err != nil {
		return err
	}

	m.entries = parsed.entries
	return nil
}

// ParseJSON builds a message from a JSON object, keeping the key order of the
// document. Objects become sections, arrays become lists, booleans become
// "yes"/"no" and numbers keep their textual form. Nulls and arrays holding
// objects cannot be represented and are rejected with ErrInvalidAttribute.
func ParseJSON(data []byte) (*Message, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidJSON
	}

	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: top level must be an object", ErrInvalidJSON)
	}

	return messageFromJSON(root, "")
}

func messageFromJSON(obj gjson.Result, prefix string) (*Message, error) {
	msg := NewMessage()

	var err error
	obj.ForEach(func(key, value gjson.Result) bool {
		path := prefix + key.String()

		switch {
		case value.IsObject():
			var section *Message
			if section, err = messageFromJSON(value, path+"."); err != nil {
				return false
			}
			msg.AddSection(key.String(), section)

		case value.IsArray():
			items := []string{}
			for _, item := range value.Array() {
				if item.IsObject() || item.IsArray() || item.Type == gjson.Null {
					err = fmt.Errorf("%w: list %q may only hold scalar values", ErrInvalidAttribute, path)
					return false
				}
				items = append(items, scalarFromJSON(item))
			}
			msg.AddList(key.String(), items...)

		case value.Type == gjson.Null:
			err = fmt.Errorf("%w: key %q has no value", ErrInvalidAttribute, path)
			return false

		default:
			msg.Set(key.String(), scalarFromJSON(value))
		}

		return true
	})

	if err != nil {
		return nil, err
	}

	return msg, nil
}

func scalarFromJSON(r gjson.Result) string {
	switch r.Type {
	case gjson.True:
		return "yes"
	case gjson.False:
		return "no"
	case gjson.Number:
		return r.Raw
	default:
		return r.String()
	}
}

// gjson/sjson path syntax gives these characters a meaning, keys containing them
// must be escaped to be used literally.
const pathSpecialChars = `\.*?|#@!=<>%`

// EscapePath turns key into a gjson/sjson path component matching key literally.
func EscapePath(key string) string {
	if !strings.ContainsAny(key, pathSpecialChars) {
		return key
	}

	var b strings.Builder
	for _, r := range key {
		if strings.ContainsRune(pathSpecialChars, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}

	return b.String()
}
