package model

import "strings"

// EngagementType tags how a person engaged with a post. After merging it may
// be a composite such as "reaction+comment".
type EngagementType string

const (
	EngagementReaction EngagementType = "reaction"
	EngagementComment  EngagementType = "comment"
	EngagementRepost   EngagementType = "repost"
)

// compositeSep joins tags in a merged engagement label.
const compositeSep = "+"

// Has reports whether tag already appears in the (possibly composite) label.
// The check is a substring match, the same one used when merging.
func (t EngagementType) Has(tag EngagementType) bool {
	return strings.Contains(string(t), string(tag))
}

// With returns the label extended by tag unless tag is empty or already present.
func (t EngagementType) With(tag EngagementType) EngagementType {
	if tag == "" || t.Has(tag) {
		return t
	}
	if t == "" {
		return tag
	}
	return t + compositeSep + tag
}

// EngagementRecord is one raw engagement event, normalized across the
// reaction, comment and repost endpoints. JSON names match the Clay table.
type EngagementRecord struct {
	PersonID       string         `json:"authorId"`
	PersonName     string         `json:"authorName"`
	ProfileURL     string         `json:"authorUrl"`
	EngagementType EngagementType `json:"engagement_type"`
	ReactionKind   string         `json:"reaction_type"`
	CommentText    string         `json:"comment_text"`
	SourcePostID   string         `json:"source_activity_id"`
}

// MergedRecord is the single record kept per person after deduplication.
type MergedRecord struct {
	EngagementRecord
}

// Profile holds the fields attached by a successful profile lookup.
type Profile struct {
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	Headline       string `json:"headline"`
	Location       string `json:"location"`
	LinkedInURL    string `json:"linkedInUrl"`
	Summary        string `json:"summary"`
	FollowerCount  int    `json:"followerCount"`
	OpenToWork     bool   `json:"openToWork"`
	CurrentTitle   string `json:"currentTitle"`
	CurrentCompany string `json:"currentCompany"`
}

// EnrichedRecord is a merged record plus optional profile data. Profile is
// nil when the lookup was skipped or failed; its fields are then omitted
// from the JSON payload.
type EnrichedRecord struct {
	MergedRecord
	Enriched bool   `json:"enriched"`
	Note     string `json:"note,omitempty"`
	*Profile
}

