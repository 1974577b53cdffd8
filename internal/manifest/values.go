package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// StringList is a manifest value written either as a single string or as a
// list of strings. The shape as written is remembered so that re-serializing
// a parsed manifest reproduces it.
type StringList struct {
	Values []string
	single bool
}

// NewString returns a StringList holding one value in scalar form.
func NewString(s string) *StringList {
	return &StringList{Values: []string{s}, single: true}
}

// NewList returns a StringList in list form.
func NewList(values ...string) *StringList {
	return &StringList{Values: append([]string{}, values...)}
}

// Len returns the number of values. A nil list has length zero.
func (l *StringList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Values)
}

// Strings returns a copy of the values, or nil for a nil list.
func (l *StringList) Strings() []string {
	if l == nil {
		return nil
	}
	return append([]string(nil), l.Values...)
}

func (l *StringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty value")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		l.Values = []string{s}
		l.single = true
		return nil
	case '[':
		var values []string
		if err := json.Unmarshal(data, &values); err != nil {
			return fmt.Errorf("expected a list of strings: %w", err)
		}
		l.Values = values
		l.single = false
		return nil
	default:
		return fmt.Errorf("expected a string or a list of strings")
	}
}

func (l StringList) MarshalJSON() ([]byte, error) {
	if l.single && len(l.Values) == 1 {
		return json.Marshal(l.Values[0])
	}
	if l.Values == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l.Values)
}

// License is either a short identifier ("MIT") or an object carrying an
// identifier and a URL.
type License struct {
	Identifier string
	URL        string
	object     bool
}

func (l *License) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty license")
	}
	switch data[0] {
	case '"':
		l.object = false
		return json.Unmarshal(data, &l.Identifier)
	case '{':
		var obj struct {
			Identifier string `json:"identifier"`
			URL        string `json:"url"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		if obj.Identifier == "" && obj.URL == "" {
			return fmt.Errorf("license object needs an identifier or a url")
		}
		l.Identifier = obj.Identifier
		l.URL = obj.URL
		l.object = true
		return nil
	default:
		return fmt.Errorf("license must be a string or an object")
	}
}

func (l License) MarshalJSON() ([]byte, error) {
	if !l.object {
		return json.Marshal(l.Identifier)
	}
	return json.Marshal(struct {
		Identifier string `json:"identifier,omitempty"`
		URL        string `json:"url,omitempty"`
	}{l.Identifier, l.URL})
}

// String returns the identifier, falling back to the URL.
func (l License) String() string {
	if l.Identifier != "" {
		return l.Identifier
	}
	return l.URL
}

// PathEntry is one element of a bin or persist declaration: a bare path, or
// a path followed by an alias and arguments.
type PathEntry struct {
	Fields []string
	list   bool
}

// Path returns the first field.
func (e PathEntry) Path() string {
	if len(e.Fields) == 0 {
		return ""
	}
	return e.Fields[0]
}

// PathList holds bin and persist values, which Scoop allows as a string, a
// list of strings, or a list mixing strings and string tuples.
type PathList struct {
	Entries []PathEntry
	single  bool
}

func (p *PathList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty value")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		p.Entries = []PathEntry{{Fields: []string{s}}}
		p.single = true
		return nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		entries := make([]PathEntry, 0, len(items))
		for i, item := range items {
			var entry PathEntry
			item = bytes.TrimSpace(item)
			if len(item) > 0 && item[0] == '[' {
				if err := json.Unmarshal(item, &entry.Fields); err != nil {
					return fmt.Errorf("entry %d: %w", i, err)
				}
				entry.list = true
			} else {
				var s string
				if err := json.Unmarshal(item, &s); err != nil {
					return fmt.Errorf("entry %d: expected a string or a list of strings", i)
				}
				entry.Fields = []string{s}
			}
			entries = append(entries, entry)
		}
		p.Entries = entries
		p.single = false
		return nil
	default:
		return fmt.Errorf("expected a string or a list")
	}
}

func (p PathList) MarshalJSON() ([]byte, error) {
	if p.single && len(p.Entries) == 1 && !p.Entries[0].list {
		return json.Marshal(p.Entries[0].Path())
	}
	items := make([]any, 0, len(p.Entries))
	for _, e := range p.Entries {
		if e.list {
			items = append(items, e.Fields)
		} else {
			items = append(items, e.Path())
		}
	}
	return json.Marshal(items)
}
