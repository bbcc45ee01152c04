package domain

import (
	"regexp"
	"strings"
)

// DefaultPrivateMarker is the keyword identifying the field that carries the
// private payout link in upstream announcements.
const DefaultPrivateMarker = "cookies"

var (
	markdownURLPattern = regexp.MustCompile(`(?i)\((https?://[^)]+)\)`)
	angleURLPattern    = regexp.MustCompile(`(?i)<(https?://[^>]+)>`)
	bareURLPattern     = regexp.MustCompile(`(?i)https?://\S+`)
	trailingPunct      = regexp.MustCompile(`[)>.,!?]+$`)

	ticketSubLabels = regexp.MustCompile(`(?i)\s*\b((?:cat|zone|row|seats?|section):)`)
)

// publicFieldSpec maps one semantic output field to the keywords that locate
// it on an upstream announcement. Lookup is by case-insensitive substring
// against field names, falling back to field values.
type publicFieldSpec struct {
	label  string
	keys   []string
	inline bool
}

// Ordering here is the display order of the public announcement.
var publicFieldSpecs = []publicFieldSpec{
	{label: "Event", keys: []string{"event"}, inline: false},
	{label: "Price", keys: []string{"price"}, inline: true},
	{label: "Quantity", keys: []string{"quantity", "qty"}, inline: true},
	{label: "Ticket", keys: []string{"ticket"}, inline: false},
	{label: "Store", keys: []string{"store"}, inline: true},
	{label: "Method", keys: []string{"method"}, inline: true},
	{label: "Mode", keys: []string{"mode"}, inline: true},
	{label: "Expires", keys: []string{"reservation expiration", "reservation expiry", "reservation expires", "expires", "expiration"}, inline: true},
}

// Extract pulls the private payout link and the display-safe public fields
// out of an upstream announcement. It is a pure function: the same
// announcement always yields the same extraction.
//
// The private link is never placed in PublicFields. That separation is the
// privacy contract of the whole bot: payout links only ever appear inside
// the winner's ticket channel.
func Extract(ann *Announcement, marker string) Extraction {
	if marker == "" {
		marker = DefaultPrivateMarker
	}
	if ann == nil {
		return Extraction{}
	}

	ext := Extraction{
		Title:       ann.Title,
		Thumbnail:   ann.Thumbnail,
		PrivateLink: extractPrivateLink(ann, strings.ToLower(marker)),
	}
	ext.PublicFields = buildPublicFields(ann, ext.PrivateLink)
	return ext
}

// extractPrivateLink scans for the marker keyword in precedence order:
// field names, field values, the embed-level URL, then the description.
func extractPrivateLink(ann *Announcement, marker string) string {
	for _, f := range ann.Fields {
		name := strings.ToLower(f.Name)
		value := strings.ToLower(f.Value)
		if !strings.Contains(name, marker) && !strings.Contains(value, marker) {
			continue
		}
		if url := firstURL(f.Value); url != "" {
			return url
		}
	}

	if strings.Contains(strings.ToLower(ann.URL), marker) {
		if url := firstURL(ann.URL); url != "" {
			return url
		}
	}

	if strings.Contains(strings.ToLower(ann.Description), marker) {
		if url := firstURL(ann.Description); url != "" {
			return url
		}
	}

	return ""
}

// firstURL extracts one URL from text, preferring markdown (url) syntax,
// then <url> angle brackets, then a bare http(s) token with trailing
// punctuation stripped.
func firstURL(text string) string {
	if text == "" {
		return ""
	}
	if m := markdownURLPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := angleURLPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := bareURLPattern.FindString(text); m != "" {
		return trailingPunct.ReplaceAllString(m, "")
	}
	return ""
}

// buildPublicFields resolves each semantic field spec against the
// announcement and assembles the display-safe output in spec order.
func buildPublicFields(ann *Announcement, privateLink string) []Field {
	var fields []Field
	for _, spec := range publicFieldSpecs {
		value := lookupFieldValue(ann.Fields, spec.keys)
		if value == "" {
			continue
		}
		// Privacy guard: a value carrying the payout link is never shown.
		if privateLink != "" && strings.Contains(value, privateLink) {
			continue
		}
		if spec.label == "Ticket" {
			value = reformatTicket(value)
		}
		fields = append(fields, Field{Name: spec.label, Value: value, Inline: spec.inline})
	}
	return fields
}

// lookupFieldValue finds the first field whose name contains any key, then
// falls back to matching against field values.
func lookupFieldValue(fields []Field, keys []string) string {
	for _, key := range keys {
		for _, f := range fields {
			if strings.Contains(strings.ToLower(f.Name), key) && strings.TrimSpace(f.Value) != "" {
				return strings.TrimSpace(f.Value)
			}
		}
	}
	for _, key := range keys {
		for _, f := range fields {
			if strings.Contains(strings.ToLower(f.Value), key) && strings.TrimSpace(f.Value) != "" {
				return strings.TrimSpace(f.Value)
			}
		}
	}
	return ""
}

// reformatTicket turns a run-on seat descriptor into one sub-label per line.
// "Cat:1 Zone:A Row:5 Seat:12" becomes four lines in original order.
func reformatTicket(value string) string {
	broken := ticketSubLabels.ReplaceAllString(value, "\n$1")

	var lines []string
	for _, line := range strings.Split(broken, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
