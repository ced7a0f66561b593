// Package session arbitrates which submission flow each user is in.
//
// A user has at most one active flow. Starting a flow replaces whatever was
// active before; events from the user are routed to the active flow only.
package session

import "time"

type Kind string

const (
	KindGreeting Kind = "greeting"
	KindMedia    Kind = "media"
	KindSong     Kind = "song"
	KindWishlist Kind = "wishlist"
)

type EventKind int

const (
	EventOther EventKind = iota
	EventText
	EventImage
	EventVideo
	EventVoice
	EventSticker
)

func (k EventKind) String() string {
	switch k {
	case EventText:
		return "text"
	case EventImage:
		return "image"
	case EventVideo:
		return "video"
	case EventVoice:
		return "voice"
	case EventSticker:
		return "sticker"
	default:
		return "other"
	}
}

// Event is one inbound user message, already classified by the transport.
type Event struct {
	Kind    EventKind
	Text    string
	FileRef string
	Caption string
}

// Actor is the user behind an event.
type Actor struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

type Outcome int

const (
	// OutcomePrompt: the flow is (still) waiting for input. Returned by an
	// accepted Start and on re-prompts.
	OutcomePrompt Outcome = iota
	// OutcomeInvalid: input rejected by validation; the flow stays open.
	OutcomeInvalid
	// OutcomeSaved: input persisted; the flow is finished.
	OutcomeSaved
	// OutcomeCollected: input persisted; the flow stays open for more.
	OutcomeCollected
	OutcomeCancelled
	// OutcomeIgnored: the user has no active flow.
	OutcomeIgnored
	// OutcomeRefused: Start rejected because the window is closed.
	OutcomeRefused
	// OutcomeForbidden: the actor is not allowed; nothing changed.
	OutcomeForbidden
)

func (o Outcome) String() string {
	switch o {
	case OutcomePrompt:
		return "prompt"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeSaved:
		return "saved"
	case OutcomeCollected:
		return "collected"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeRefused:
		return "refused"
	case OutcomeForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// Terminal reports whether the outcome ends the flow.
func (o Outcome) Terminal() bool { return o == OutcomeSaved || o == OutcomeCancelled }

// Notice names the user-facing message for a result; the bot layer owns
// the wording.
type Notice string

const (
	NoticeNone            Notice = ""
	NoticeCancelled       Notice = "cancelled"
	NoticeNothingToCancel Notice = "nothing_to_cancel"
	NoticeForbidden       Notice = "forbidden"
	NoticeArchive         Notice = "archive"
)

type Result struct {
	Outcome Outcome
	Notice  Notice
	// Detail carries a value for the notice (an id, a count, a range).
	Detail string
	// Quiet asks the caller not to reply (throttled confirmations).
	Quiet bool
}

// State is the per-user flow state.
type State struct {
	Kind      Kind
	Step      string
	StartedAt time.Time
	// Count is the number of items saved in this flow instance.
	Count int
}
