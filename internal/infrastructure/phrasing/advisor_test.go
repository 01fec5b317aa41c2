package phrasing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mandi-exchange/negotiation-hub/internal/domain/collaborator"
)

func TestAdvisor_GetContext(t *testing.T) {
	a := NewAdvisor()
	tests := []struct {
		location   string
		wantRegion string
		wantLang   string
	}{
		{"Lasalgaon APMC, Nashik", "maharashtra", "mr"},
		{"Azadpur Mandi, Delhi", "north", "hi"},
		{"Koyambedu Market", "tamil_nadu", "ta"},
		{"Guntur", "telangana_andhra", "te"},
		{"Somewhere else", "national", "en"},
		{"", "national", "en"},
	}
	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			p, err := a.GetContext(context.Background(), tt.location)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRegion, p.Region)
			assert.Equal(t, tt.wantLang, p.Language)
			assert.True(t, collaborator.IsSupportedLanguage(p.Language))
		})
	}
}

func TestAdvisor_Adapt(t *testing.T) {
	a := NewAdvisor()
	ctx := context.Background()
	tamil, err := a.GetContext(ctx, "Chennai")
	require.NoError(t, err)
	marathi, err := a.GetContext(ctx, "Pune")
	require.NoError(t, err)

	out, err := a.Adapt(ctx, collaborator.AdaptRequest{
		Text: "Fresh stock today", Sender: *marathi, Receiver: *tamil,
		Phase: PhaseOpening, Relationship: "first_time",
	})
	require.NoError(t, err)
	assert.Equal(t, "வணக்கம், Fresh stock today", out.Text)
	assert.Equal(t, "formal:opening", out.StyleTag)

	out, err = a.Adapt(ctx, collaborator.AdaptRequest{
		Text: "Fresh stock today", Sender: *marathi, Receiver: *tamil,
		Phase: PhaseOpening, Relationship: "repeat",
	})
	require.NoError(t, err)
	assert.Equal(t, "Fresh stock today", out.Text)

	out, err = a.Adapt(ctx, collaborator.AdaptRequest{Text: "ok", Receiver: *marathi})
	require.NoError(t, err)
	assert.Equal(t, "warm:bargaining", out.StyleTag)

	_, err = a.Adapt(ctx, collaborator.AdaptRequest{Text: "  "})
	assert.ErrorIs(t, err, collaborator.ErrPhrasingUnavailable)
}
