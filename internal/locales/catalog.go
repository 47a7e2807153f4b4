package locales

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/text/language"
)

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)

// Catalog is the closed set of messages for one language.
type Catalog struct {
	lang     string
	messages map[string]string
}

// NewCatalog creates a catalog over a copy of messages.
func NewCatalog(lang string, messages map[string]string) *Catalog {
	m := maps.Clone(messages)
	if m == nil {
		m = map[string]string{}
	}
	return &Catalog{lang: lang, messages: m}
}

// Language returns the catalog's language tag.
func (c *Catalog) Language() string { return c.lang }

// Lookup returns the message for key, or key itself when it has no
// non-empty message.
func (c *Catalog) Lookup(key string) string {
	if v := c.messages[key]; v != "" {
		return v
	}
	return key
}

// Format looks key up and substitutes {{name}} placeholders from vars.
// Placeholders without a value are left as written.
func (c *Catalog) Format(key string, vars map[string]string) string {
	msg := c.Lookup(key)
	if len(vars) == 0 {
		return msg
	}
	return placeholder.ReplaceAllStringFunc(msg, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		if v, ok := vars[name]; ok {
			return v
		}
		return m
	})
}

// Messages returns a copy of all messages.
func (c *Catalog) Messages() map[string]string {
	return maps.Clone(c.messages)
}

// Keys returns the sorted message keys.
func (c *Catalog) Keys() []string {
	return slices.Sorted(maps.Keys(c.messages))
}

// Bundle selects a catalog by language preference, falling back to the base
// language.
type Bundle struct {
	catalogs []*Catalog // base first
	matcher  language.Matcher
}

// NewBundle creates a bundle. The first catalog is the base language.
func NewBundle(base *Catalog, others ...*Catalog) *Bundle {
	catalogs := append([]*Catalog{base}, others...)
	tags := make([]language.Tag, len(catalogs))
	for i, c := range catalogs {
		tags[i] = language.Make(c.lang)
	}
	return &Bundle{catalogs: catalogs, matcher: language.NewMatcher(tags)}
}

// LoadBundle reads <dir>/<lang>.json for every language. base must be among
// languages and its file must exist.
func LoadBundle(dir, base string, languages []string) (*Bundle, error) {
	load := func(lang string) (*Catalog, error) {
		data, err := os.ReadFile(filepath.Join(dir, lang+".json"))
		if err != nil {
			return nil, err
		}
		var m map[string]string
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidLocale, lang, err)
		}
		return NewCatalog(lang, m), nil
	}

	baseCatalog, err := load(base)
	if err != nil {
		return nil, err
	}
	var others []*Catalog
	for _, lang := range languages {
		if lang == base {
			continue
		}
		c, err := load(lang)
		if err != nil {
			return nil, err
		}
		others = append(others, c)
	}
	return NewBundle(baseCatalog, others...), nil
}

// Catalog returns the best catalog for the given preferences. Each
// preference is a language tag or an Accept-Language header value.
func (b *Bundle) Catalog(prefs ...string) *Catalog {
	var desired []language.Tag
	for _, p := range prefs {
		if strings.ContainsAny(p, ",;") {
			tags, _, err := language.ParseAcceptLanguage(p)
			if err == nil {
				desired = append(desired, tags...)
			}
			continue
		}
		if tag, err := language.Parse(p); err == nil {
			desired = append(desired, tag)
		}
	}
	if len(desired) == 0 {
		return b.catalogs[0]
	}
	_, idx, conf := b.matcher.Match(desired...)
	if conf == language.No {
		return b.catalogs[0]
	}
	return b.catalogs[idx]
}

// Languages lists the bundle's languages, base first.
func (b *Bundle) Languages() []string {
	out := make([]string, len(b.catalogs))
	for i, c := range b.catalogs {
		out[i] = c.lang
	}
	return out
}
