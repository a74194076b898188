package orchestrator

// ChatEntry mirrors a single turn of the client-visible conversation log
// that the gateway keeps per socket (not persisted — a live UI aid only).
type ChatEntry struct {
	Role        string
	Content     string
	Interrupted bool
}

// ChatMirror is the gateway's per-socket view of the conversation, kept in
// sync with the assistant's speech so a barge-in can be reflected in the
// client's transcript. Implemented by the gateway, not the orchestrator,
// since only the gateway owns the socket-facing relay.
type ChatMirror interface {
	MarkLastAssistantInterrupted()
}

// WireBargeIn registers a handler that marks the gateway's chat mirror on
// every EventBargeIn, without touching Session state — barge-in carries no
// state-machine transition of its own, only a downstream UI signal.
func WireBargeIn(handlers *HandlerTable, mirror ChatMirror) {
	existing := handlers.handlers[EventBargeIn]
	handlers.On(EventBargeIn, func(evt DownstreamEvent) {
		if existing != nil {
			existing(evt)
		}
		if mirror != nil {
			mirror.MarkLastAssistantInterrupted()
		}
	})
}
