// Package language lists the languages the translator offers and maps
// between their short codes and the names the backend expects.
package language

import "strings"

// Language is one selectable language
type Language struct {
	Code string
	Name string
	Flag string
}

// AutoDetect is the source code that lets the backend detect the language
const AutoDetect = "auto"

// Sources is the ordered list offered as source languages. The first entry
// is the fallback for unknown codes.
var Sources = []Language{
	{Code: AutoDetect, Name: "Auto Detect", Flag: "🌐"},
	{Code: "vi", Name: "Vietnamese", Flag: "🇻🇳"},
	{Code: "en", Name: "English", Flag: "🇬🇧"},
	{Code: "es", Name: "Spanish", Flag: "🇪🇸"},
	{Code: "fr", Name: "French", Flag: "🇫🇷"},
	{Code: "de", Name: "German", Flag: "🇩🇪"},
	{Code: "ja", Name: "Japanese", Flag: "🇯🇵"},
	{Code: "ko", Name: "Korean", Flag: "🇰🇷"},
	{Code: "zh", Name: "Chinese", Flag: "🇨🇳"},
	{Code: "th", Name: "Thai", Flag: "🇹🇭"},
	{Code: "id", Name: "Indonesian", Flag: "🇮🇩"},
}

// Targets is Sources without AutoDetect
var Targets = func() []Language {
	targets := make([]Language, 0, len(Sources)-1)
	for _, l := range Sources {
		if l.Code != AutoDetect {
			targets = append(targets, l)
		}
	}
	return targets
}()

var byCode = func() map[string]Language {
	m := make(map[string]Language, len(Sources))
	for _, l := range Sources {
		m[l.Code] = l
	}
	return m
}()

// Name returns the API name for code, or code itself when unknown
func Name(code string) string {
	if l, ok := byCode[code]; ok && l.Code != AutoDetect {
		return l.Name
	}
	return code
}

// ByCode returns the language for code, falling back to AutoDetect
func ByCode(code string) Language {
	if l, ok := byCode[code]; ok {
		return l
	}
	return Sources[0]
}

// Resolve accepts a code or a name in any case and returns the name the
// backend expects. Unknown input is returned trimmed and unchanged.
func Resolve(input string) string {
	input = strings.TrimSpace(input)
	if l, ok := byCode[strings.ToLower(input)]; ok {
		if l.Code == AutoDetect {
			return AutoDetect
		}
		return l.Name
	}
	for _, l := range Targets {
		if strings.EqualFold(l.Name, input) {
			return l.Name
		}
	}
	return input
}

// IsTarget reports whether name or code is a supported target language
func IsTarget(input string) bool {
	resolved := Resolve(input)
	for _, l := range Targets {
		if l.Name == resolved {
			return true
		}
	}
	return false
}
