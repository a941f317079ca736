package models

// SelectedScene is a visually-descriptive span of chapter text chosen as an
// illustration candidate. Snippet is always a verbatim substring of the
// chapter content; StartPosition/EndPosition are byte offsets into it.
type SelectedScene struct {
	Snippet             string `json:"snippet"`
	StartPosition       int    `json:"startPosition"`
	EndPosition         int    `json:"endPosition"`
	AfterParagraphIndex int    `json:"afterParagraphIndex"`
	Rationale           string `json:"rationale,omitempty"`
}
