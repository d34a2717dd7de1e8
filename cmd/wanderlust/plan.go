package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bakkerme/wanderlust-ai/internal/config"
	"github.com/bakkerme/wanderlust-ai/internal/outputs/email"
	"github.com/bakkerme/wanderlust-ai/internal/outputs/email/smtp"
	"github.com/bakkerme/wanderlust-ai/internal/planner"
)

func newPlanCmd(a *app) *cobra.Command {
	var tripPath, systemTemplate, promptTemplate, emailTo string
	var html bool
	cmd := &cobra.Command{
		Use:   "plan --trip trip.yaml",
		Short: "Plan an itinerary for a trip document",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := config.LoadTripDocument(tripPath)
			if err != nil {
				return err
			}
			templates, err := loadTemplates(systemTemplate, promptTemplate)
			if err != nil {
				return err
			}
			p, err := planner.New(a.client, planner.WithTemplates(templates), planner.WithLogger(a.logger))
			if err != nil {
				return err
			}

			plan, err := p.Plan(cmd.Context(), doc)
			if err != nil {
				return fmt.Errorf("%s: %w", planner.UserMessage(err), a.fail("plan failed", err))
			}
			a.logger.Info("trip planned",
				"destination", doc.Trip.Destination,
				"suggested_days", plan.Itinerary.SuggestedTripLength,
				"attempts", plan.Attempts,
				"total_tokens", plan.Usage.TotalTokens,
			)

			if emailTo != "" {
				if err := sendItinerary(cmd.Context(), a, emailTo, doc, plan); err != nil {
					return a.fail("email delivery failed", err)
				}
				a.logger.Info("itinerary emailed", "to", emailTo)
			}

			out := cmd.OutOrStdout()
			if html {
				_, err = fmt.Fprint(out, plan.HTML)
				return err
			}
			_, err = fmt.Fprintf(out, "%s\n\nSuggested trip length: %d days\n", plan.Itinerary.Itinerary, plan.Itinerary.SuggestedTripLength)
			for _, h := range plan.Itinerary.Highlights {
				fmt.Fprintf(out, "- %s\n", h)
			}
			return err
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&tripPath, "trip", "trip.yaml", "path to the trip document")
	flags.StringVar(&systemTemplate, "system-template", "", "file with a custom system prompt template")
	flags.StringVar(&promptTemplate, "prompt-template", "", "file with a custom user prompt template")
	flags.BoolVar(&html, "html", false, "print the itinerary as HTML")
	flags.StringVar(&emailTo, "email-to", "", "also email the itinerary to this address (uses SMTP_*)")
	return cmd
}

func sendItinerary(ctx context.Context, a *app, to string, doc *config.TripDocument, plan *planner.Plan) error {
	sender, err := smtp.New(a.env.SMTP)
	if err != nil {
		return err
	}
	msg, err := email.ItineraryMessage(a.env.SMTP.From, to, doc, plan)
	if err != nil {
		return err
	}
	return sender.Send(ctx, msg)
}

func loadTemplates(systemPath, promptPath string) (planner.Templates, error) {
	read := func(path string) (string, error) {
		if path == "" {
			return "", nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read template: %w", err)
		}
		return string(data), nil
	}
	system, err := read(systemPath)
	if err != nil {
		return planner.Templates{}, err
	}
	prompt, err := read(promptPath)
	if err != nil {
		return planner.Templates{}, err
	}
	return planner.ParseTemplates(system, prompt)
}
