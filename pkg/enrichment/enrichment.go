// Package enrichment defines optional, pluggable enrichment collaborators
// a composition root can wire alongside the Classification & Learning
// Core without the Core depending on their concrete implementations.
// These are scaffolds only: no-op implementations satisfy the
// interfaces so the CLI type-checks against a complete system, but none
// of them perform real network calls.
package enrichment

import "context"

// WebsiteInfo is whatever a WebsiteEnricher could discover about a
// company's web presence.
type WebsiteInfo struct {
	URL     string
	Found   bool
	Company string
}

// WebsiteEnricher looks up a company's website given passthrough lead
// fields (company name, registration number).
type WebsiteEnricher interface {
	Enrich(ctx context.Context, companyName string) (WebsiteInfo, error)
}

// LinkedInInfo is whatever a LinkedInEnricher could discover about an
// individual director's professional profile.
type LinkedInInfo struct {
	ProfileURL string
	Found      bool
}

// LinkedInEnricher looks up a director's LinkedIn profile.
type LinkedInEnricher interface {
	Enrich(ctx context.Context, directorName, companyName string) (LinkedInInfo, error)
}

// Score is a composite lead-quality signal distinct from ethnicity
// classification confidence.
type Score struct {
	Value float64
	Notes string
}

// ScoreHeuristic computes a lead-quality Score from passthrough fields
// and enrichment results already gathered for a lead.
type ScoreHeuristic interface {
	Score(ctx context.Context, fields map[string]string) (Score, error)
}

// NoOpWebsiteEnricher reports no website found for every lookup.
type NoOpWebsiteEnricher struct{}

func (NoOpWebsiteEnricher) Enrich(ctx context.Context, companyName string) (WebsiteInfo, error) {
	return WebsiteInfo{}, nil
}

// NoOpLinkedInEnricher reports no profile found for every lookup.
type NoOpLinkedInEnricher struct{}

func (NoOpLinkedInEnricher) Enrich(ctx context.Context, directorName, companyName string) (LinkedInInfo, error) {
	return LinkedInInfo{}, nil
}

// NoOpScoreHeuristic always scores zero.
type NoOpScoreHeuristic struct{}

func (NoOpScoreHeuristic) Score(ctx context.Context, fields map[string]string) (Score, error) {
	return Score{}, nil
}

var (
	_ WebsiteEnricher  = NoOpWebsiteEnricher{}
	_ LinkedInEnricher = NoOpLinkedInEnricher{}
	_ ScoreHeuristic   = NoOpScoreHeuristic{}
)
