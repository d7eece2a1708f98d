package activitymap

import (
	"strings"
	"time"

	credentials "github.com/goliatone/go-credentials"
)

const (
	// MetadataKeyOperation stores the secret kind of verification events.
	MetadataKeyOperation = "operation"
	// MetadataKeyClientID stores the relying party of authorization events.
	MetadataKeyClientID = "client_id"
)

const (
	defaultChannel = "credentials"
	oidcChannel    = "oidc"
	defaultActorID = "anonymous"
)

// Normalized is a transport-agnostic activity shape for downstream systems.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel       string
	actorFallback string
	now           func() time.Time
}

// Normalize converts a credentials.ActivityEvent into a generic normalized
// shape. Authorization code events go to the oidc channel and use the client
// as object.
func Normalize(event credentials.ActivityEvent, opts ...Option) Normalized {
	options := defaultNormalizeOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = options.now().UTC()
	}

	out := Normalized{
		ActorID:    firstNonEmpty(strings.TrimSpace(event.PrincipalID), options.actorFallback),
		Verb:       string(event.EventType),
		ObjectType: string(event.Kind),
		ObjectID:   strings.TrimSpace(event.PrincipalID),
		Channel:    options.channel,
		Metadata:   normalizeMetadata(event),
		OccurredAt: occurredAt,
	}

	if isAuthorizationEvent(event.EventType) {
		out.Channel = oidcChannel
		out.ObjectType = "client"
		out.ObjectID = strings.TrimSpace(event.ClientID)
	}

	return out
}

// WithDefaultChannel sets the channel for non authorization events.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		if channel = strings.TrimSpace(channel); channel != "" {
			opts.channel = channel
		}
	}
}

// WithActorFallback sets the actor id used when the event has no principal.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

// WithClock overrides the clock used for events without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(opts *normalizeOptions) {
		if now != nil {
			opts.now = now
		}
	}
}

func defaultNormalizeOptions() normalizeOptions {
	return normalizeOptions{
		channel:       defaultChannel,
		actorFallback: defaultActorID,
		now:           time.Now,
	}
}

func isAuthorizationEvent(t credentials.ActivityEventType) bool {
	switch t {
	case credentials.ActivityEventCodeIssued,
		credentials.ActivityEventCodeExchanged,
		credentials.ActivityEventCodeRejected:
		return true
	}
	return false
}

func normalizeMetadata(event credentials.ActivityEvent) map[string]any {
	metadata := cloneMap(event.Metadata)

	if event.Operation != "" {
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata[MetadataKeyOperation] = string(event.Operation)
	}

	if clientID := strings.TrimSpace(event.ClientID); clientID != "" {
		if metadata == nil {
			metadata = map[string]any{}
		}
		if _, exists := metadata[MetadataKeyClientID]; !exists {
			metadata[MetadataKeyClientID] = clientID
		}
	}

	return metadata
}

func cloneMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
