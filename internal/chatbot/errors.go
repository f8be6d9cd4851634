package chatbot

import (
	"errors"
	"net/http"

	"OfficeChat/internal/backend"
)

// ErrSendInProgress is returned when a send is attempted while a response is
// still streaming.
var ErrSendInProgress = errors.New("a response is still being generated")

// ErrNothingToInsert is returned by InsertLastResponse when the active
// conversation has no finished reply.
var ErrNothingToInsert = errors.New("no response to insert")

// CancelledMarker ends the content of a reply that was stopped early.
const CancelledMarker = "[Response cancelled]"

const (
	msgInvalidKey  = "Invalid API key, please check your settings"
	msgRateLimited = "Rate limited, please try again later"
	msgServerError = "Server error, please try again later"
	msgNetwork     = "Network error, please check your connection"
	msgDecode      = "Unexpected response from the API"
	msgUnknown     = "Something went wrong, please try again"
)

// Classify turns a send failure into the message shown to the user.
func Classify(err error) string {
	apiErr, ok := backend.AsAPIError(err)
	if !ok {
		return msgUnknown
	}
	switch apiErr.Kind {
	case backend.KindConfiguration:
		return "Configuration error: " + apiErr.Message
	case backend.KindTransport:
		switch {
		case apiErr.Status == http.StatusUnauthorized:
			return msgInvalidKey
		case apiErr.Status == http.StatusTooManyRequests:
			return msgRateLimited
		case apiErr.Status >= 500:
			return msgServerError
		default:
			return "Request failed: " + apiErr.Message
		}
	case backend.KindNetwork:
		return msgNetwork
	case backend.KindDecode:
		return msgDecode
	default:
		return msgUnknown
	}
}

func failureContent(err error) string {
	return "Sorry, something went wrong: " + Classify(err)
}

func cancelledContent(partial string) string {
	if partial == "" {
		return CancelledMarker
	}
	return partial + "\n\n" + CancelledMarker
}
