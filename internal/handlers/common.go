package handlers

import (
	"context"

	"github.com/relaydesk/relaydesk/internal/channel"
)

// ErrorResponse is the error body echo renders for HTTP errors.
type ErrorResponse struct {
	Message string `json:"message"`
}

// ChannelSource lists active channels with decrypted credentials, filtered
// by type.
type ChannelSource interface {
	ListActiveWithCredentials(ctx context.Context, types ...channel.ChannelType) ([]channel.WithCredentials, error)
}
