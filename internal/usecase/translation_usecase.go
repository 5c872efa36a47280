package usecase

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"chatsync/pkg/errors"
)

const autoDetect = "auto"

type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type TranslationResult struct {
	TranslatedText string `json:"translatedText"`
	SourceLanguage string `json:"sourceLanguage"`
	TargetLanguage string `json:"targetLanguage"`
}

var supportedLanguageCodes = []string{
	"en", "es", "fr", "de", "it", "pt", "zh", "ja", "ko", "ru",
	"ar", "hi", "nl", "sv", "da", "no", "fi", "tr", "pl",
}

type phrase struct {
	pattern      *regexp.Regexp
	translations map[string]string
}

func newPhrase(text string, translations map[string]string) phrase {
	return phrase{
		pattern:      regexp.MustCompile("(?i)" + regexp.QuoteMeta(text)),
		translations: translations,
	}
}

var phrasebook = []phrase{
	newPhrase("hello", map[string]string{"es": "hola", "fr": "bonjour", "de": "hallo", "it": "ciao", "pt": "olá", "zh": "你好", "ja": "こんにちは", "ko": "안녕하세요", "ru": "привет", "ar": "مرحبا"}),
	newPhrase("how are you", map[string]string{"es": "cómo estás", "fr": "comment allez-vous", "de": "wie geht es dir", "it": "come stai", "pt": "como está", "zh": "你好吗", "ja": "お元気ですか", "ko": "어떻게 지내세요", "ru": "как дела", "ar": "كيف حالك"}),
	newPhrase("good morning", map[string]string{"es": "buenos días", "fr": "bonjour", "de": "guten morgen", "it": "buongiorno", "pt": "bom dia", "zh": "早上好", "ja": "おはようございます", "ko": "좋은 아침", "ru": "доброе утро", "ar": "صباح الخير"}),
	newPhrase("thank you", map[string]string{"es": "gracias", "fr": "merci", "de": "danke", "it": "grazie", "pt": "obrigado", "zh": "谢谢", "ja": "ありがとう", "ko": "고맙습니다", "ru": "спасибо", "ar": "شكرا"}),
	newPhrase("goodbye", map[string]string{"es": "adiós", "fr": "au revoir", "de": "auf wiedersehen", "it": "arrivederci", "pt": "tchau", "zh": "再见", "ja": "さようなら", "ko": "안녕", "ru": "до свидания", "ar": "وداعا"}),
}

var fallbackLabels = map[string]string{
	"zh": "中文",
	"ja": "日本語",
	"ko": "한국어",
}

var latinKeywords = []struct {
	lang  string
	words []string
}{
	{"es", []string{"hola", "gracias", "buenos"}},
	{"fr", []string{"bonjour", "merci", "comment"}},
	{"de", []string{"guten", "danke", "wie"}},
}

// TranslationUseCase is an offline translator backed by a small phrasebook.
// Unknown text comes back tagged with the target language.
type TranslationUseCase struct {
	languages []Language
	supported map[string]bool
}

func NewTranslationUseCase() *TranslationUseCase {
	namer := display.English.Tags()
	uc := &TranslationUseCase{
		languages: []Language{{Code: autoDetect, Name: "Auto-detect"}},
		supported: make(map[string]bool, len(supportedLanguageCodes)),
	}
	for _, code := range supportedLanguageCodes {
		uc.languages = append(uc.languages, Language{Code: code, Name: namer.Name(language.Make(code))})
		uc.supported[code] = true
	}
	return uc
}

func (uc *TranslationUseCase) SupportedLanguages() []Language {
	return append([]Language(nil), uc.languages...)
}

// DetectLanguage guesses the language of text from its script, and for
// Latin text from a few keywords. It defaults to English.
func (uc *TranslationUseCase) DetectLanguage(text string) string {
	var latin, han, kana, hangul, arabic, cyrillic bool
	for _, r := range text {
		switch {
		case unicode.In(r, unicode.Hiragana, unicode.Katakana):
			kana = true
		case unicode.Is(unicode.Han, r):
			han = true
		case unicode.Is(unicode.Hangul, r):
			hangul = true
		case unicode.Is(unicode.Arabic, r):
			arabic = true
		case unicode.Is(unicode.Cyrillic, r):
			cyrillic = true
		case unicode.Is(unicode.Latin, r):
			latin = true
		}
	}

	switch {
	case kana:
		return "ja"
	case han:
		return "zh"
	case hangul:
		return "ko"
	case arabic:
		return "ar"
	case cyrillic:
		return "ru"
	case latin:
		lower := strings.ToLower(text)
		for _, k := range latinKeywords {
			for _, w := range k.words {
				if strings.Contains(lower, w) {
					return k.lang
				}
			}
		}
	}
	return "en"
}

func (uc *TranslationUseCase) Translate(ctx context.Context, text, target, source string) (*TranslationResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.BadRequest("Text is required", nil)
	}

	target, err := uc.canonical(target)
	if err != nil || target == autoDetect {
		return nil, errors.BadRequest("Unsupported target language", err)
	}

	if source == "" || source == autoDetect {
		source = uc.DetectLanguage(text)
	} else if source, err = uc.canonical(source); err != nil {
		return nil, errors.BadRequest("Unsupported source language", err)
	}

	result := &TranslationResult{SourceLanguage: source, TargetLanguage: target}
	if source == target {
		result.TranslatedText = text
		return result, nil
	}

	result.TranslatedText = translatePhrase(text, target)
	return result, nil
}

// canonical reduces a BCP 47 tag to its base language code.
func (uc *TranslationUseCase) canonical(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == autoDetect {
		return code, nil
	}
	tag, err := language.Parse(code)
	if err != nil {
		return "", err
	}
	base, _ := tag.Base()
	if !uc.supported[base.String()] {
		return "", errors.BadRequest("Unsupported language: "+code, nil)
	}
	return base.String(), nil
}

func translatePhrase(text, target string) string {
	for _, p := range phrasebook {
		if !p.pattern.MatchString(text) {
			continue
		}
		if translated, ok := p.translations[target]; ok {
			return p.pattern.ReplaceAllLiteralString(text, translated)
		}
	}

	label, ok := fallbackLabels[target]
	if !ok {
		label = strings.ToUpper(target)
	}
	return "[" + label + "] " + text
}
