// Package analysis classifies drink photos and writes party summaries with
// the inference client, falling back to deterministic results when the
// client fails.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"drinkwise/api/internal/apperr"
	"drinkwise/api/internal/inference"
)

const (
	Uncategorized = "uncategorized"
	unknownType   = "unknown"
)

// Party levels, from calmest to most intense.
const (
	LevelCalm     = "calm"
	LevelBalanced = "balanced"
	LevelFestive  = "festive"
	LevelIntense  = "intense"
)

const classifyPrompt = `Identify the drink visible in this image.
Answer with JSON using the keys "type" and "brand".
"type" must be one of: "Beer", "Wine", "Spirits", "Cocktail", "Other".
"brand" is the brand visible on the label or bottle, or null when none can be identified.
Examples:
{"type": "Beer", "brand": "Heineken"}
{"type": "Wine", "brand": null}
If no drink is visible answer {"type": "Other", "brand": null}`

type Service struct {
	client inference.Client
	log    *zap.Logger
}

func NewService(client inference.Client, log *zap.Logger) *Service {
	if client == nil {
		client = inference.Disabled{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{client: client, log: log}
}

type Classification struct {
	Type     string  `json:"type"`
	Brand    *string `json:"brand"`
	Fallback bool    `json:"fallback,omitempty"`
}

// ClassifyDrink labels a drink photo. It never fails because of the
// inference client: any failure yields the uncategorized classification.
func (s *Service) ClassifyDrink(ctx context.Context, image []byte, mimeType string) (Classification, error) {
	if len(image) == 0 {
		return Classification{}, apperr.New(apperr.InvalidArgument, "image is required")
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return Classification{}, apperr.WithDetails(apperr.InvalidArgument, "unsupported content type", map[string]string{"mimeType": mimeType})
	}

	text, err := s.client.GenerateImage(ctx, classifyPrompt, image, mimeType, inference.Options{Temperature: 0.1, MaxOutputTokens: 50})
	if err != nil {
		s.log.Warn("drink classification fell back", zap.Error(err))
		return Classification{Type: Uncategorized, Fallback: true}, nil
	}
	return parseClassification(text), nil
}

var fences = regexp.MustCompile("```(?:json)?")

// parseClassification reads the model answer. Text that is not the expected
// JSON is taken as the drink type itself.
func parseClassification(text string) Classification {
	cleaned := strings.TrimSpace(strings.ReplaceAll(fences.ReplaceAllString(text, ""), "\n", ""))
	var raw struct {
		Type  string  `json:"type"`
		Brand *string `json:"brand"`
	}
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		if cleaned == "" {
			return Classification{Type: Uncategorized, Fallback: true}
		}
		return Classification{Type: cleaned}
	}
	out := Classification{Type: strings.TrimSpace(raw.Type), Brand: raw.Brand}
	if out.Type == "" {
		out.Type = Uncategorized
	}
	if out.Brand != nil && strings.TrimSpace(*out.Brand) == "" {
		out.Brand = nil
	}
	return out
}

type Drink struct {
	Type  string `json:"type"`
	Brand string `json:"brand,omitempty"`
}

type Event struct {
	Type string `json:"type"`
	Note string `json:"note,omitempty"`
}

type PartyData struct {
	Drinks []Drink `json:"drinks"`
	Events []Event `json:"events"`
}

type Summary struct {
	Text      string `json:"summary"`
	Generated bool   `json:"generated"`
}

// Summarize writes a short recap of a party.
func (s *Service) Summarize(ctx context.Context, party PartyData, level string) Summary {
	prompt := summaryPrompt(party, level)
	text, err := s.client.Generate(ctx, prompt, inference.Options{Temperature: 0.7, MaxOutputTokens: 300})
	if err == nil && strings.TrimSpace(text) != "" {
		return Summary{Text: strings.TrimSpace(text), Generated: true}
	}
	if err != nil {
		s.log.Warn("party summary fell back to template", zap.Error(err))
	}
	return Summary{Text: TemplateSummary(party, level)}
}

type typeCount struct {
	Type  string
	Count int
}

// countTypes returns the drink counts per type, largest first and then by
// name.
func countTypes(drinks []Drink) []typeCount {
	counts := map[string]int{}
	for _, drink := range drinks {
		t := strings.TrimSpace(drink.Type)
		if t == "" {
			t = unknownType
		}
		counts[t]++
	}
	out := make([]typeCount, 0, len(counts))
	for t, n := range counts {
		out = append(out, typeCount{Type: t, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Type < out[j].Type
	})
	return out
}

func summaryPrompt(party PartyData, level string) string {
	var b strings.Builder
	b.WriteString("Write a short, friendly recap (at most five sentences) of this party for the person who logged it. ")
	b.WriteString("Do not encourage drinking more. End with one piece of advice suited to the party level.\n")
	fmt.Fprintf(&b, "Drinks: %d\n", len(party.Drinks))
	for _, tc := range countTypes(party.Drinks) {
		fmt.Fprintf(&b, "- %s: %d\n", tc.Type, tc.Count)
	}
	fmt.Fprintf(&b, "Events: %d\n", len(party.Events))
	fmt.Fprintf(&b, "Level: %s\n", level)
	return b.String()
}

// TemplateSummary is the deterministic summary used without inference.
func TemplateSummary(party PartyData, level string) string {
	var b strings.Builder
	b.WriteString("Your party recap\n\n")
	fmt.Fprintf(&b, "Drinks: %d %s\n", len(party.Drinks), plural(len(party.Drinks), "drink", "drinks"))
	if types := countTypes(party.Drinks); len(types) > 0 {
		b.WriteString("Breakdown:\n")
		for _, tc := range types {
			fmt.Fprintf(&b, "  - %s: %d\n", tc.Type, tc.Count)
		}
	}
	if n := len(party.Events); n > 0 {
		fmt.Fprintf(&b, "\nEvents: %d %s\n", n, plural(n, "highlight", "highlights"))
	}
	if level != "" {
		fmt.Fprintf(&b, "\nParty level: %s\n", level)
	}
	b.WriteString("\n")
	b.WriteString(advice(level))
	return b.String()
}

func advice(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case LevelCalm:
		return "Nicely controlled night. Keep it up!"
	case LevelBalanced:
		return "A balanced night: you know how to have fun and stay reasonable."
	case LevelFestive:
		return "Festive night! Drink some water and get some rest."
	case LevelIntense:
		return "Intense night. Take care of yourself and stay hydrated."
	default:
		return "Thanks for tracking your night with DrinkWise!"
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
