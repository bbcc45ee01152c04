package domain

// Announcement is a platform-agnostic view of an upstream embed message.
// Fields arrive incrementally across edits, so any of them may be empty on a
// given observation.
type Announcement struct {
	// Title is the embed title.
	Title string

	// Description is the embed's free-text body.
	Description string

	// URL is the embed-level canonical URL, if the upstream bot set one.
	URL string

	// Thumbnail is the embed thumbnail URL.
	Thumbnail string

	// Fields are the embed's named field/value pairs, in display order.
	Fields []Field
}

// Field is a single named value on an announcement or an extraction.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Extraction is the result of running the offer extractor over an
// announcement: the private payout link and the sanitized fields that are
// safe to display publicly. PublicFields never contains PrivateLink.
type Extraction struct {
	Title        string
	Thumbnail    string
	PrivateLink  string
	PublicFields []Field
}
