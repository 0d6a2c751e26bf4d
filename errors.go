package wireclient

import (
	"github.com/nextlevelbuilder/wireclient/internal/command"
	"github.com/nextlevelbuilder/wireclient/internal/connection"
	"github.com/nextlevelbuilder/wireclient/internal/subscription"
)

// Error kinds a caller can match with errors.As/errors.Is. Each is a
// concrete type, not a sentinel value, so it can carry the context that
// produced it.
type (
	// EmptyToken is returned by Connect when the configured access token is
	// empty.
	EmptyToken = connection.EmptyTokenError
	// ConnectionFailed wraps the reason a handshake was interrupted or
	// refused.
	ConnectionFailed = connection.ConnectionFailedError
	// Disabled is returned by connect/reconnect attempts made after
	// Client.Disable.
	Disabled = connection.DisabledError
	// EmptyChannel is returned when a TokenProvider returns an empty
	// channel name.
	EmptyChannel = connection.EmptyChannelError
	// ChannelChanged is returned when a TokenProvider returns a different
	// channel name than it did on a previous call for the same
	// subscription.
	ChannelChanged = connection.ChannelChangedError
	// TokenRetrieverFailed wraps an error a TokenProvider returned.
	TokenRetrieverFailed = connection.TokenRetrieverFailedError
	// AlreadySubscribed is returned when creating a channel already
	// tracked.
	AlreadySubscribed = subscription.ErrAlreadySubscribed
	// AlreadyUnsubscribed is returned when unsubscribing from a channel no
	// longer tracked.
	AlreadyUnsubscribed = subscription.ErrAlreadyUnsubscribed
	// Disposed is returned when subscribing or unsubscribing on a
	// Subscription whose entity has already been disposed.
	Disposed = subscription.ErrAlreadyDisposed
	// CommandTimeout is returned when a command's reply doesn't arrive
	// within the configured command timeout.
	CommandTimeout = command.TimeoutError
	// CommandInterrupted is returned for every pending command when the
	// connection drops before its reply arrives.
	CommandInterrupted = command.InterruptedError
)
