package chatbot

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"OfficeChat/internal/backend"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unauthorized", &backend.APIError{Kind: backend.KindTransport, Status: 401, Message: "bad key"}, msgInvalidKey},
		{"rate limited", &backend.APIError{Kind: backend.KindTransport, Status: 429}, msgRateLimited},
		{"unavailable", &backend.APIError{Kind: backend.KindTransport, Status: 503}, msgServerError},
		{"bad request", &backend.APIError{Kind: backend.KindTransport, Status: 400, Message: "bad model"}, "Request failed: bad model"},
		{"aborted", &backend.APIError{Kind: backend.KindNetwork, Message: "request aborted", Err: context.Canceled}, msgNetwork},
		{"decode", &backend.APIError{Kind: backend.KindDecode, Message: "no response from API"}, msgDecode},
		{"config", &backend.APIError{Kind: backend.KindConfiguration, Message: "API key is required"}, "Configuration error: API key is required"},
		{"foreign", errors.New("boom"), msgUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestCancelledContent(t *testing.T) {
	assert.Equal(t, CancelledMarker, cancelledContent(""))
	assert.Equal(t, "partial\n\n"+CancelledMarker, cancelledContent("partial"))
}
