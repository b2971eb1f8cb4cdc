package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"

	"gopkg.in/yaml.v3"
)

const DefaultLanguage = "pt-BR"

//go:embed locales
var LocalesFS embed.FS

// Translator resolves flat message keys ("validation.too_long") to
// localized format strings.
type Translator struct {
	lang         string
	translations map[string]string
}

// NewTranslator loads locales/<langCode>.yaml from fsys. Keys missing from
// the requested language fall back to the default language when available.
func NewTranslator(fsys fs.FS, langCode string) (*Translator, error) {
	if langCode == "" {
		langCode = DefaultLanguage
	}
	data, err := fs.ReadFile(fsys, localePath(langCode))
	if err != nil {
		return nil, fmt.Errorf("failed to read translation file %s: %w", localePath(langCode), err)
	}
	t, err := newTranslatorFromBytes(data)
	if err != nil {
		return nil, err
	}
	t.lang = langCode

	if langCode != DefaultLanguage {
		if base, err := fs.ReadFile(fsys, localePath(DefaultLanguage)); err == nil {
			var fallback map[string]string
			if yaml.Unmarshal(base, &fallback) == nil {
				for k, v := range fallback {
					if _, ok := t.translations[k]; !ok {
						t.translations[k] = v
					}
				}
			}
		}
	}
	return t, nil
}

// MustDefault returns the embedded pt-BR translator. It panics only if the
// embedded locale is broken, which is a build defect.
func MustDefault() *Translator {
	t, err := NewTranslator(LocalesFS, DefaultLanguage)
	if err != nil {
		panic(err)
	}
	return t
}

func newTranslatorFromBytes(data []byte) (*Translator, error) {
	var translations map[string]string
	if err := yaml.Unmarshal(data, &translations); err != nil {
		return nil, fmt.Errorf("failed to parse translation file: %w", err)
	}
	if translations == nil {
		translations = map[string]string{}
	}
	return &Translator{translations: translations}, nil
}

func localePath(lang string) string {
	return path.Join("locales", lang+".yaml")
}

// T formats the message for key. Unknown keys are returned verbatim.
func (t *Translator) T(key string, args ...interface{}) string {
	format, ok := t.translations[key]
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(format, args...)
	}
	return format
}

func (t *Translator) Language() string { return t.lang }
