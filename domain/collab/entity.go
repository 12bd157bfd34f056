package collab

// Room represents a collaboration room and its current membership.
type Room struct {
	ID      string   `json:"id"`
	Members []string `json:"members"`
}

// Document is the shared buffer of a room as last seen by the server. The
// server is not the source of truth for content; this is the most recent
// value that passed through, retained so late joiners can be brought up to
// date.
type Document struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}
