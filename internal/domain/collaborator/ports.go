package collaborator

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_ports.go -package=mocks . TranslationGateway,PriceBandOracle,PhrasingAdvisor

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
)

var (
	ErrTranslationUnavailable = errors.New("translation unavailable")
	ErrNoDataAvailable        = errors.New("no price band data available")
	ErrPhrasingUnavailable    = errors.New("phrasing advisor unavailable")
	ErrUnsupportedLanguage    = errors.New("unsupported language")
)

// SupportedLanguages lists the language codes the marketplace serves.
var SupportedLanguages = []string{"hi", "en", "ta", "te", "bn", "mr", "gu", "kn", "ml", "pa"}

// IsSupportedLanguage reports whether code is one of SupportedLanguages.
func IsSupportedLanguage(code string) bool {
	return slices.Contains(SupportedLanguages, code)
}

// MarketContext travels with a translation so market terms survive.
type MarketContext struct {
	ProductID    string `json:"productId,omitempty"`
	Location     string `json:"location,omitempty"`
	QualityGrade string `json:"qualityGrade,omitempty"`
}

func (m MarketContext) String() string {
	return fmt.Sprintf("product=%s;location=%s;grade=%s", m.ProductID, m.Location, m.QualityGrade)
}

// TranslationRequest asks for text to be converted between two languages.
type TranslationRequest struct {
	Text       string        `json:"text"`
	SourceLang string        `json:"sourceLang"`
	TargetLang string        `json:"targetLang"`
	Market     MarketContext `json:"market"`
}

// Translation is the gateway result.
type Translation struct {
	Text       string  `json:"translatedText"`
	Confidence float64 `json:"confidence"`
	Engine     string  `json:"engine,omitempty"`
}

// TranslationGateway converts text between language codes.
type TranslationGateway interface {
	Translate(ctx context.Context, req TranslationRequest) (*Translation, error)
}

// BandQuery identifies the market a price band is requested for.
type BandQuery struct {
	ProductID    string `json:"productId"`
	Location     string `json:"location"`
	QualityGrade string `json:"qualityGrade"`
}

// Band is a fair-price range with the oracle's confidence in it.
type Band struct {
	Low        decimal.Decimal `json:"low"`
	High       decimal.Decimal `json:"high"`
	Confidence float64         `json:"confidence"`
}

// PriceBandOracle returns the current fair-price range, or ErrNoDataAvailable.
type PriceBandOracle interface {
	GetBand(ctx context.Context, q BandQuery) (*Band, error)
}

// RegionalProfile describes how a region negotiates.
type RegionalProfile struct {
	Region   string `json:"region"`
	Language string `json:"language"`
	Style    string `json:"style"`
	Greeting string `json:"greeting,omitempty"`
}

// AdaptRequest asks for phrasing that suits both parties at a given phase.
type AdaptRequest struct {
	Text         string          `json:"text"`
	Sender       RegionalProfile `json:"sender"`
	Receiver     RegionalProfile `json:"receiver"`
	Phase        string          `json:"phase"`
	Relationship string          `json:"relationship"`
}

// AdaptedMessage is the suggested phrasing plus a negotiation-style tag.
type AdaptedMessage struct {
	Text     string `json:"text"`
	StyleTag string `json:"styleTag"`
}

// PhrasingAdvisor resolves regional profiles and adapts outbound phrasing.
type PhrasingAdvisor interface {
	GetContext(ctx context.Context, location string) (*RegionalProfile, error)
	Adapt(ctx context.Context, req AdaptRequest) (*AdaptedMessage, error)
}
