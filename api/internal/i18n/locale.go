package i18n

import "strings"

// Locale is the per-surface language context. It is built once at start-up
// and handed to the controller and the presentation layer.
type Locale struct {
	Tag     string
	catalog *Catalog
}

// NewLocale returns a Locale for tag, falling back to DefaultTag when the
// catalog has no translations for it.
func NewLocale(c *Catalog, tag string) Locale {
	tag = Normalize(tag)
	if c == nil || !c.Has(tag) {
		tag = DefaultTag
	}
	return Locale{Tag: tag, catalog: c}
}

// T translates key, falling back to English and then to the key itself.
func (l Locale) T(key string) string {
	if l.catalog == nil {
		return key
	}
	if s, ok := l.catalog.Lookup(l.Tag, key); ok {
		return s
	}
	if s, ok := l.catalog.Lookup(DefaultTag, key); ok {
		return s
	}
	return key
}

// With returns a copy of l switched to tag.
func (l Locale) With(tag string) Locale {
	return NewLocale(l.catalog, tag)
}

// IsSupported reports whether tag is one of Supported.
func IsSupported(tag string) bool {
	tag = Normalize(tag)
	for _, s := range Supported {
		if s == tag {
			return true
		}
	}
	return false
}

// Normalize reduces an IETF tag like "es-MX" or "pt_BR" to its lower-case
// primary subtag.
func Normalize(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		tag = tag[:i]
	}
	return tag
}

// FromLanguageCode maps a client-reported language code to a supported tag.
func FromLanguageCode(code string) string {
	if t := Normalize(code); IsSupported(t) {
		return t
	}
	return DefaultTag
}
