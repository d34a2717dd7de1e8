// Package email delivers planned itineraries by email.
package email

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/bakkerme/wanderlust-ai/internal/config"
	"github.com/bakkerme/wanderlust-ai/internal/planner"
)

type Message struct {
	From    string
	To      string
	Subject string
	// HTML is the message body.
	HTML string
}

type Sender interface {
	Send(ctx context.Context, message Message) error
}

// ItineraryMessage wraps a rendered plan in a minimal HTML document.
func ItineraryMessage(from, to string, doc *config.TripDocument, plan *planner.Plan) (Message, error) {
	if strings.TrimSpace(to) == "" {
		return Message{}, fmt.Errorf("recipient is required")
	}
	if doc == nil || plan == nil {
		return Message{}, fmt.Errorf("trip document and plan are required")
	}
	destination := html.EscapeString(doc.Trip.Destination)

	var b strings.Builder
	b.WriteString("<!doctype html>\n<html><body>\n")
	fmt.Fprintf(&b, "<h1>%s, %s to %s</h1>\n", destination, doc.Trip.StartDate, doc.Trip.EndDate)
	b.WriteString(plan.HTML)
	if len(plan.Itinerary.Highlights) > 0 {
		b.WriteString("<h2>Highlights</h2>\n<ul>\n")
		for _, h := range plan.Itinerary.Highlights {
			fmt.Fprintf(&b, "<li>%s</li>\n", html.EscapeString(h))
		}
		b.WriteString("</ul>\n")
	}
	fmt.Fprintf(&b, "<p>Suggested trip length: %d days.</p>\n", plan.Itinerary.SuggestedTripLength)
	b.WriteString("</body></html>\n")

	return Message{
		From:    from,
		To:      to,
		Subject: fmt.Sprintf("Your %s itinerary (%s to %s)", doc.Trip.Destination, doc.Trip.StartDate, doc.Trip.EndDate),
		HTML:    b.String(),
	}, nil
}
