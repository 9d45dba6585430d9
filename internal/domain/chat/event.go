package chat

// EventKind distinguishes stream events.
type EventKind int

const (
	// EventToken carries one text fragment in generation order.
	EventToken EventKind = iota
	// EventSources carries the deduplicated citations. Emitted exactly once, after the last token.
	EventSources
)

// Event is one element of an answer stream. The stream's end is signalled by the
// channel closing, which the transport renders as the [DONE] sentinel.
type Event struct {
	Kind    EventKind
	Token   string
	Sources []Citation
	// Err is set on the sources event when generation failed mid-stream.
	Err error
}

// TokenEvent builds a token event.
func TokenEvent(s string) Event { return Event{Kind: EventToken, Token: s} }

// SourcesEvent builds the terminal sources event.
func SourcesEvent(c []Citation, err error) Event {
	return Event{Kind: EventSources, Sources: c, Err: err}
}
