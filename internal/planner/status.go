package planner

import (
	"net/http"

	"github.com/bakkerme/wanderlust-ai/internal/llm"
)

// HTTPStatus maps an llm error onto the status a web handler should answer with.
func HTTPStatus(err error) int {
	e, ok := llm.AsError(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case llm.KindRequestValidation, llm.KindConfiguration:
		return http.StatusBadRequest
	case llm.KindHTTP:
		if e.Status == http.StatusTooManyRequests {
			return http.StatusTooManyRequests
		}
		return http.StatusServiceUnavailable
	case llm.KindAPI, llm.KindNetwork, llm.KindStreaming:
		return http.StatusServiceUnavailable
	case llm.KindTimeout:
		return http.StatusGatewayTimeout
	case llm.KindJSONValidation:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage is the text shown to an end user for err. Provider details stay in
// the logs; validation and configuration failures name the offending field.
func UserMessage(err error) string {
	e, ok := llm.AsError(err)
	if !ok {
		return "Something went wrong while planning your trip."
	}
	switch e.Kind {
	case llm.KindRequestValidation, llm.KindConfiguration:
		return e.Field + ": " + e.Message
	case llm.KindTimeout:
		return "The planner took too long to respond. Please try again."
	case llm.KindJSONValidation:
		return "The planner returned an unexpected answer. Please try again."
	default:
		return "The planning service is unavailable right now. Please try again."
	}
}
