// Package planner turns a trip document into a validated itinerary using an
// llm.Client with structured output.
package planner

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"

	"github.com/bakkerme/wanderlust-ai/internal/config"
	"github.com/bakkerme/wanderlust-ai/internal/core"
	"github.com/bakkerme/wanderlust-ai/internal/llm"
	"github.com/bakkerme/wanderlust-ai/internal/llm/schema"
)

// Itinerary is the structured output requested from the model.
type Itinerary struct {
	Itinerary           string   `json:"itinerary" validate:"required" jsonschema:"description=Day by day plan in Markdown"`
	SuggestedTripLength int      `json:"suggestedTripLength" validate:"required,gt=0" jsonschema:"minimum=1,description=Recommended trip length in days"`
	Highlights          []string `json:"highlights" validate:"max=10" jsonschema:"maxItems=10"`
}

var itinerarySchema = schema.MustFor[Itinerary]("Trip itinerary")

// Plan is the result of planning one trip.
type Plan struct {
	Itinerary Itinerary
	HTML      string
	Model     string
	Usage     llm.Usage
	Attempts  int
}

type Planner struct {
	client    llm.Client
	templates Templates
	converter goldmark.Markdown
	logger    *slog.Logger
}

type Option func(*Planner)

func WithTemplates(t Templates) Option {
	return func(p *Planner) {
		if t.System != nil && t.Prompt != nil {
			p.templates = t
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Planner) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func New(client llm.Client, opts ...Option) (*Planner, error) {
	if client == nil {
		return nil, fmt.Errorf("planner requires an llm client")
	}
	templates, err := ParseTemplates("", "")
	if err != nil {
		return nil, err
	}
	p := &Planner{
		client:    client,
		templates: templates,
		converter: newMarkdownConverter(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

type promptData struct {
	Trip        config.Trip
	Preferences config.Preferences
	Nights      int
}

// Params builds the chat call for doc without sending it.
func (p *Planner) Params(doc *config.TripDocument) (llm.ChatParams, error) {
	if doc == nil {
		return llm.ChatParams{}, fmt.Errorf("trip document is required")
	}
	data := promptData{Trip: doc.Trip, Preferences: doc.Preferences, Nights: doc.Trip.Nights()}
	system, err := execute(p.templates.System, data)
	if err != nil {
		return llm.ChatParams{}, err
	}
	prompt, err := execute(p.templates.Prompt, data)
	if err != nil {
		return llm.ChatParams{}, err
	}
	return llm.ChatParams{
		System:         system,
		Messages:       []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Model:          doc.Model,
		Temperature:    doc.Temperature,
		ResponseSchema: itinerarySchema,
	}, nil
}

// Plan asks the model for an itinerary and renders it to HTML.
func (p *Planner) Plan(ctx context.Context, doc *config.TripDocument) (*Plan, error) {
	params, err := p.Params(doc)
	if err != nil {
		return nil, err
	}
	logger := core.LoggerFromContext(ctx, p.logger)
	logger.Info("planning trip", "destination", doc.Trip.Destination, "nights", doc.Trip.Nights())

	res, err := p.client.Chat(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("plan trip to %s: %w", doc.Trip.Destination, err)
	}
	itinerary, ok := schema.Result[Itinerary](res)
	if !ok {
		return nil, llm.JSONValidationError(res.Content, fmt.Errorf("no structured itinerary in response"), nil)
	}
	html, err := p.RenderHTML(itinerary.Itinerary)
	if err != nil {
		return nil, err
	}
	return &Plan{
		Itinerary: itinerary,
		HTML:      html,
		Model:     res.Model,
		Usage:     res.Usage,
		Attempts:  res.Attempts,
	}, nil
}

// RenderHTML converts the itinerary's Markdown to HTML.
func (p *Planner) RenderHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := p.converter.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("render itinerary: %w", err)
	}
	return buf.String(), nil
}

func newMarkdownConverter() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	)
}
