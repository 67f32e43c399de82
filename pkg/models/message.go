// Package models defines the wire and storage types shared across the
// gateway, channel bus, session store, supervisor agent and memory system.
package models

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a message within a session transcript.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry in a session transcript.
type Message struct {
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ChannelType identifies an inbound/outbound channel adapter family.
// Concrete adapters (Telegram, Discord, Slack, ...) are external to this
// module; only the string identifier and the bus contract are specified.
type ChannelType string

// Session is a per-peer conversation, keyed by a canonical SessionKey of
// the form "agent:<agentId>:<channel>:<peerId>" (or "agent:<agentId>:main").
type Session struct {
	Key       string         `json:"sessionKey"`
	AgentID   string         `json:"agentId"`
	Channel   string         `json:"channel"`
	PeerID    string         `json:"peerId"`
	Title     string         `json:"title,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// ToolCall is an LLM's request to invoke a registered tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult is the outcome of executing a ToolCall.
type ToolResult struct {
	Success     bool           `json:"success"`
	Data        any            `json:"data,omitempty"`
	Observation string         `json:"observation"`
	Error       string         `json:"error,omitempty"`
	Metadata    ToolResultMeta `json:"metadata"`
}

// ToolResultMeta carries execution bookkeeping for a ToolResult.
type ToolResultMeta struct {
	DurationMS int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// InboundMessage is published onto the channel bus by an adapter when it
// receives a message from its platform.
type InboundMessage struct {
	Channel   string         `json:"channel"`
	SenderID  string         `json:"senderId"`
	ChatID    string         `json:"chatId"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Media     []MediaRef     `json:"media,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// OutboundMessage is handed to a channel adapter (directly, or via the
// Delivery Queue) to be sent back to a peer.
type OutboundMessage struct {
	Channel  string         `json:"channel"`
	ChatID   string         `json:"chatId"`
	Content  string         `json:"content"`
	ReplyTo  string         `json:"replyTo,omitempty"`
	Media    []MediaRef     `json:"media,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// MediaRef points at an attachment carried by an inbound or outbound message.
type MediaRef struct {
	URL      string `json:"url"`
	MimeType string `json:"mimeType,omitempty"`
	Filename string `json:"filename,omitempty"`
}
