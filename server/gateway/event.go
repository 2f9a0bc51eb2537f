package gateway

// eventPayload is the top-level webhook delivery body. Only the fields the
// pipeline consumes are declared; everything else the platform sends is
// ignored.
type eventPayload struct {
	Type      string        `json:"type"`
	Challenge string        `json:"challenge"`
	Event     *messageEvent `json:"event"`
}

// messageEvent is the inner event object of a message delivery.
type messageEvent struct {
	Type    string    `json:"type"`
	Subtype string    `json:"subtype"`
	Channel string    `json:"channel"`
	User    string    `json:"user"`
	BotID   string    `json:"bot_id"`
	Text    string    `json:"text"`
	Files   []fileRef `json:"files"`
}

// fileRef references an attachment. URLPrivate is an opaque locator the
// messaging collaborator can resolve to file bytes.
type fileRef struct {
	Filetype   string `json:"filetype"`
	URLPrivate string `json:"url_private"`
}

// isUserMessage reports whether the event is a plain message authored by a
// user. Bot-authored messages and message subtypes (edits, joins, ...) are
// not user messages; replying to our own postings would loop forever.
func (e *messageEvent) isUserMessage() bool {
	return e != nil &&
		e.Type == "message" &&
		e.Subtype == "" &&
		e.BotID == "" &&
		e.User != "" &&
		e.Channel != ""
}
