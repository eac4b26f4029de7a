package i18n

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const DefaultTag = "en"

// Supported language tags, in display order.
var Supported = []string{"en", "id", "es"}

// Message keys understood by the catalog.
const (
	KeyTitle           = "title"
	KeySubtitle        = "subtitle"
	KeySolution        = "solution"
	KeyDropzone        = "upload.dropzone"
	KeyOr              = "upload.or"
	KeyTextInput       = "upload.textInput"
	KeySubject         = "upload.subject"
	KeySubmit          = "upload.submit"
	KeyProcessing      = "upload.processing"
	KeyUploading       = "upload.uploading"
	KeyError           = "upload.error"
	KeyUnsupportedType = "upload.unsupportedType"
	KeyEmptySolution   = "upload.emptySolution"
	KeyEmptyInput      = "upload.empty"

	KeyBotHelp           = "bot.help"
	KeyBotReady          = "bot.ready"
	KeyBotCleared        = "bot.cleared"
	KeyBotBusy           = "bot.busy"
	KeyBotNothingToSolve = "bot.nothingToSolve"
	KeyBotLanguageSet    = "bot.languageSet"
	KeyBotLanguageUsage  = "bot.languageUsage"
)

// Subjects a question may be tagged with.
var Subjects = []string{"math", "physics", "chemistry", "literature", "history", "biology"}

// SubjectKey returns the message key naming subject.
func SubjectKey(subject string) string { return "subjects." + subject }

//go:embed locales/*.toml
var localesFS embed.FS

// Catalog maps language tag -> flattened message key -> text.
type Catalog struct {
	msgs map[string]map[string]string
}

// LoadCatalog decodes the embedded translation files.
func LoadCatalog() (*Catalog, error) {
	entries, err := localesFS.ReadDir("locales")
	if err != nil {
		return nil, err
	}
	c := &Catalog{msgs: make(map[string]map[string]string, len(entries))}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || path.Ext(name) != ".toml" {
			continue
		}
		b, err := localesFS.ReadFile(path.Join("locales", name))
		if err != nil {
			return nil, err
		}
		tag := strings.TrimSuffix(name, ".toml")
		if err := c.add(tag, b); err != nil {
			return nil, fmt.Errorf("locale %s: %w", tag, err)
		}
	}
	if _, ok := c.msgs[DefaultTag]; !ok {
		return nil, fmt.Errorf("locale %s missing", DefaultTag)
	}
	return c, nil
}

// MustLoadCatalog is LoadCatalog for program start-up.
func MustLoadCatalog() *Catalog {
	c, err := LoadCatalog()
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) add(tag string, raw []byte) error {
	var tree map[string]any
	if err := toml.Unmarshal(raw, &tree); err != nil {
		return err
	}
	flat := make(map[string]string)
	flatten("", tree, flat)
	c.msgs[tag] = flat
	return nil
}

func flatten(prefix string, node map[string]any, out map[string]string) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch t := v.(type) {
		case map[string]any:
			flatten(key, t, out)
		case string:
			out[key] = t
		default:
			out[key] = fmt.Sprint(t)
		}
	}
}

// Lookup returns the text for key in tag without fallback.
func (c *Catalog) Lookup(tag, key string) (string, bool) {
	m, ok := c.msgs[tag]
	if !ok {
		return "", false
	}
	s, ok := m[key]
	return s, ok
}

// Has reports whether the catalog carries translations for tag.
func (c *Catalog) Has(tag string) bool {
	_, ok := c.msgs[tag]
	return ok
}

// Keys returns the sorted keys of the default language.
func (c *Catalog) Keys() []string {
	keys := make([]string, 0, len(c.msgs[DefaultTag]))
	for k := range c.msgs[DefaultTag] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
