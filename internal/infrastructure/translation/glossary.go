package translation

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/mandi-exchange/negotiation-hub/internal/domain/collaborator"
)

const (
	termConfidence    = 0.95
	unknownConfidence = 0.3
	engineGlossary    = "glossary"
)

// marketTerms holds the mandi vocabulary per language. Index i means the same
// concept in every language: mandi, quintal, rate, bhav, arrival, quality, grade.
var marketTerms = map[string][]string{
	"en": {"market", "quintal", "rate", "price", "arrival", "quality", "grade"},
	"hi": {"मंडी", "क्विंटल", "दर", "भाव", "आवक", "गुणवत्ता", "ग्रेड"},
	"ta": {"சந்தை", "குவிண்டல்", "விலை", "விலைவாசி", "வரவு", "தரம்", "தரநிலை"},
	"te": {"మార్కెట్", "క్వింటాల్", "రేటు", "ధర", "రాక", "నాణ్యత", "గ్రేడ్"},
	"bn": {"বাজার", "কুইন্টাল", "দর", "দাম", "আমদানি", "গুণমান", "গ্রেড"},
	"mr": {"मंडई", "क्विंटल", "दर", "भाव", "आवक", "दर्जा", "श्रेणी"},
	"gu": {"મંડી", "ક્વિન્ટલ", "દર", "ભાવ", "આવક", "ગુણવત્તા", "ગ્રેડ"},
	"kn": {"ಮಾರುಕಟ್ಟೆ", "ಕ್ವಿಂಟಾಲ್", "ದರ", "ಬೆಲೆ", "ಆವಕ", "ಗುಣಮಟ್ಟ", "ಶ್ರೇಣಿ"},
	"ml": {"ചന്ത", "ക്വിന്റൽ", "നിരക്ക്", "വില", "വരവ്", "ഗുണമേന്മ", "ഗ്രേഡ്"},
	"pa": {"ਮੰਡੀ", "ਕੁਇੰਟਲ", "ਦਰ", "ਭਾਅ", "ਆਮਦ", "ਗੁਣਵੱਤਾ", "ਗ੍ਰੇਡ"},
}

// Glossary is an offline gateway that swaps known market terms between
// languages and passes every other token through. Its confidence reflects how
// much of the text it actually understood, so callers can flag weak results.
type Glossary struct {
	index map[string]map[string]int
}

var _ collaborator.TranslationGateway = (*Glossary)(nil)

func NewGlossary() *Glossary {
	index := make(map[string]map[string]int, len(marketTerms))
	for lang, terms := range marketTerms {
		m := make(map[string]int, len(terms))
		for i, term := range terms {
			m[strings.ToLower(term)] = i
		}
		index[lang] = m
	}
	return &Glossary{index: index}
}

func (g *Glossary) Translate(ctx context.Context, req collaborator.TranslationRequest) (*collaborator.Translation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, lang := range []string{req.SourceLang, req.TargetLang} {
		if !collaborator.IsSupportedLanguage(lang) {
			return nil, fmt.Errorf("%w: %q", collaborator.ErrUnsupportedLanguage, lang)
		}
	}
	if req.SourceLang == req.TargetLang {
		return &collaborator.Translation{Text: req.Text, Confidence: 1.0, Engine: engineGlossary}, nil
	}

	tokens := strings.Fields(req.Text)
	if len(tokens) == 0 {
		return &collaborator.Translation{Text: req.Text, Confidence: 1.0, Engine: engineGlossary}, nil
	}

	source := g.index[req.SourceLang]
	target := marketTerms[req.TargetLang]
	var score float64
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		lead, word, trail := splitPunct(tok)
		if idx, ok := source[strings.ToLower(word)]; ok {
			out[i] = lead + target[idx] + trail
			score += termConfidence
			continue
		}
		out[i] = tok
		score += unknownConfidence
	}
	return &collaborator.Translation{
		Text:       strings.Join(out, " "),
		Confidence: score / float64(len(tokens)),
		Engine:     engineGlossary,
	}, nil
}

// splitPunct peels leading and trailing punctuation off a token.
func splitPunct(tok string) (lead, word, trail string) {
	isPunct := func(r rune) bool { return unicode.IsPunct(r) }
	word = strings.TrimLeftFunc(tok, isPunct)
	lead = tok[:len(tok)-len(word)]
	trimmed := strings.TrimRightFunc(word, isPunct)
	trail = word[len(trimmed):]
	return lead, trimmed, trail
}
