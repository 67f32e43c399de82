// Package channels implements the Channel Bus: normalization and pub/sub
// dispatch of InboundMessage/OutboundMessage between pluggable channel
// adapters and the rest of the gateway. Concrete adapters (Telegram,
// Discord, Slack, ...) are external to this module; only the Adapter
// contract and the bus itself are specified here.
package channels

import (
	"context"

	"github.com/DrayChou/personal-ai-assistant/pkg/models"
)

// Adapter is the minimal contract a channel connector implements. An
// adapter signals reception by publishing an InboundMessage on the Bus
// it was registered with, and is driven by the bus for outbound sends.
type Adapter interface {
	// Channel returns the channel type this adapter serves (telegram,
	// discord, slack, ...).
	Channel() string

	// Start begins accepting inbound traffic. It must return once the
	// adapter is ready to receive, and continue running in the
	// background until ctx is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop shuts the adapter down, releasing any held resources.
	Stop(ctx context.Context) error

	// Send delivers an OutboundMessage to the adapter's platform.
	Send(ctx context.Context, msg models.OutboundMessage) error
}

// Handler processes one InboundMessage delivered by the bus. Delivery to
// a Handler is at-most-once per subscriber per message within the
// process; durability across restarts is the Delivery Queue's job, not
// the bus's.
type Handler func(ctx context.Context, msg models.InboundMessage)
