package core

import "time"

// Recognised metadata keys. Metadata is an open mapping; other keys are
// carried through untouched.
const (
	MetaUserID          = "user_id"
	MetaDate            = "date"
	MetaTitle           = "title"
	MetaKind            = "kind"
	MetaTheme           = "theme"
	MetaDailyDiary      = "daily_diary"
	MetaMatchCount      = "match_count"
	MetaMatchedKeywords = "matched_keywords"
)

// DateLayout is the on-disk format of the date metadata field.
const DateLayout = "2006-01-02"

// Kind distinguishes the conversation type a diary entry came from.
type Kind string

const (
	KindDaily Kind = "daily_diary"
	KindTheme Kind = "theme"
)

// Metadata is the open string mapping attached to every document.
type Metadata map[string]string

// Clone returns a shallow copy that can be modified independently.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m)+2)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// UserID returns the tenant key, or "" for legacy records.
func (m Metadata) UserID() string {
	return m[MetaUserID]
}

// Date parses the date field. ok is false when it is missing or malformed.
func (m Metadata) Date() (t time.Time, ok bool) {
	raw, present := m[MetaDate]
	if !present || raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Kind reports the diary subtype, falling back to the legacy marker keys.
func (m Metadata) Kind() Kind {
	if k := m[MetaKind]; k != "" {
		return Kind(k)
	}
	if _, ok := m[MetaTheme]; ok {
		return KindTheme
	}
	if _, ok := m[MetaDailyDiary]; ok {
		return KindDaily
	}
	return ""
}

// Document is one indexed diary unit. Documents are never mutated once indexed.
type Document struct {
	ID       string   `json:"id"`
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// Clone copies the document including its metadata.
func (d Document) Clone() Document {
	d.Metadata = d.Metadata.Clone()
	return d
}
