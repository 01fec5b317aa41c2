package phrasing

import (
	"context"
	"fmt"
	"strings"

	"github.com/mandi-exchange/negotiation-hub/internal/domain/collaborator"
)

// Negotiation styles.
const (
	StyleWarm   = "warm"
	StyleFormal = "formal"
	StyleBrisk  = "brisk"
)

// Phases passed in AdaptRequest.Phase.
const (
	PhaseOpening    = "opening"
	PhaseBargaining = "bargaining"
	PhaseCompromise = "compromise"
	PhaseClosing    = "closing"
)

type region struct {
	profile  collaborator.RegionalProfile
	keywords []string
}

// regions is matched in order; the first keyword contained in the location wins.
var regions = []region{
	{collaborator.RegionalProfile{Region: "maharashtra", Language: "mr", Style: StyleWarm, Greeting: "नमस्कार"},
		[]string{"maharashtra", "nashik", "lasalgaon", "pune", "mumbai", "vashi", "nagpur", "kolhapur"}},
	{collaborator.RegionalProfile{Region: "gujarat", Language: "gu", Style: StyleBrisk, Greeting: "નમસ્તે"},
		[]string{"gujarat", "ahmedabad", "surat", "rajkot", "unjha", "gondal"}},
	{collaborator.RegionalProfile{Region: "punjab", Language: "pa", Style: StyleWarm, Greeting: "ਸਤ ਸ੍ਰੀ ਅਕਾਲ"},
		[]string{"punjab", "amritsar", "ludhiana", "khanna", "jalandhar"}},
	{collaborator.RegionalProfile{Region: "tamil_nadu", Language: "ta", Style: StyleFormal, Greeting: "வணக்கம்"},
		[]string{"tamil", "chennai", "koyambedu", "madurai", "coimbatore", "salem"}},
	{collaborator.RegionalProfile{Region: "telangana_andhra", Language: "te", Style: StyleFormal, Greeting: "నమస్కారం"},
		[]string{"telangana", "andhra", "hyderabad", "guntur", "vijayawada", "kurnool"}},
	{collaborator.RegionalProfile{Region: "karnataka", Language: "kn", Style: StyleFormal, Greeting: "ನಮಸ್ಕಾರ"},
		[]string{"karnataka", "bengaluru", "bangalore", "mysuru", "hubli", "belagavi"}},
	{collaborator.RegionalProfile{Region: "kerala", Language: "ml", Style: StyleWarm, Greeting: "നമസ്കാരം"},
		[]string{"kerala", "kochi", "ernakulam", "thrissur", "kozhikode"}},
	{collaborator.RegionalProfile{Region: "bengal", Language: "bn", Style: StyleWarm, Greeting: "নমস্কার"},
		[]string{"bengal", "kolkata", "siliguri", "howrah"}},
	{collaborator.RegionalProfile{Region: "north", Language: "hi", Style: StyleWarm, Greeting: "नमस्ते जी"},
		[]string{"delhi", "azadpur", "uttar pradesh", "lucknow", "kanpur", "agra", "jaipur", "rajasthan", "indore", "bhopal", "patna"}},
}

var national = collaborator.RegionalProfile{Region: "national", Language: "en", Style: StyleBrisk, Greeting: "Namaste"}

// Advisor is a rule-based PhrasingAdvisor backed by a regional table.
type Advisor struct{}

var _ collaborator.PhrasingAdvisor = (*Advisor)(nil)

func NewAdvisor() *Advisor {
	return &Advisor{}
}

// GetContext resolves the profile for a mandi location. Unknown locations get
// the national profile.
func (a *Advisor) GetContext(ctx context.Context, location string) (*collaborator.RegionalProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	loc := strings.ToLower(location)
	for _, r := range regions {
		for _, kw := range r.keywords {
			if strings.Contains(loc, kw) {
				p := r.profile
				return &p, nil
			}
		}
	}
	p := national
	return &p, nil
}

// Adapt suggests how the sender's text lands best with the receiver.
func (a *Advisor) Adapt(ctx context.Context, req collaborator.AdaptRequest) (*collaborator.AdaptedMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty text", collaborator.ErrPhrasingUnavailable)
	}
	style := req.Receiver.Style
	if style == "" {
		style = StyleBrisk
	}

	out := text
	if req.Phase == PhaseOpening && req.Receiver.Greeting != "" && req.Relationship != "repeat" {
		out = req.Receiver.Greeting + ", " + out
	}
	return &collaborator.AdaptedMessage{
		Text:     out,
		StyleTag: style + ":" + phaseOrDefault(req.Phase),
	}, nil
}

func phaseOrDefault(p string) string {
	if p == "" {
		return PhaseBargaining
	}
	return p
}
