package domain

import "time"

// RawResult is one organic search hit as returned by the provider.
type RawResult struct {
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	Snippet     string   `json:"snippet"`
	Platform    Platform `json:"platform"`
	Domain      string   `json:"domain"`
	Position    int      `json:"position"`
	PublishedAt string   `json:"published_at,omitempty"`
	Query       string   `json:"query"`
}

// ProfileMetadata is what a platform resolver knows about a social URL.
type ProfileMetadata struct {
	DisplayName  string `json:"display_name,omitempty"`
	Handle       string `json:"handle,omitempty"`
	Followers    int64  `json:"followers,omitempty"`
	Verified     bool   `json:"verified,omitempty"`
	Views        int64  `json:"views,omitempty"`
	Likes        int64  `json:"likes,omitempty"`
	Comments     int64  `json:"comments,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	PublishedAt  string `json:"published_at,omitempty"`
	Bio          string `json:"bio,omitempty"`
}

// EnrichmentState distinguishes why a result does or does not carry metadata.
type EnrichmentState string

const (
	EnrichmentNotApplicable EnrichmentState = "not_applicable"
	EnrichmentResolved      EnrichmentState = "resolved"
	EnrichmentMissing       EnrichmentState = "missing"
	EnrichmentFailed        EnrichmentState = "failed"
)

// Enrichment holds the resolver outcome for a single result. Profile is only
// set when State is EnrichmentResolved.
type Enrichment struct {
	State   EnrichmentState  `json:"state"`
	Profile *ProfileMetadata `json:"profile,omitempty"`
}

func Resolved(p ProfileMetadata) Enrichment {
	return Enrichment{State: EnrichmentResolved, Profile: &p}
}

func (e Enrichment) IsResolved() bool {
	return e.State == EnrichmentResolved && e.Profile != nil
}

// EnrichedResult pairs a raw hit with its enrichment outcome.
type EnrichedResult struct {
	RawResult
	Enrichment Enrichment `json:"enrichment"`
}

// Affiliate is a persisted partner candidate. Link is unique per owner.
type Affiliate struct {
	ID             string           `json:"id,omitempty"`
	OwnerID        string           `json:"-"`
	JobID          string           `json:"-"`
	Link           string           `json:"link"`
	Domain         string           `json:"domain"`
	Platform       Platform         `json:"platform"`
	Title          string           `json:"title"`
	Snippet        string           `json:"snippet"`
	SourceType     SourceType       `json:"discovery_method"`
	SourceValue    string           `json:"discovery_value"`
	AffiliateScore int              `json:"affiliate_score"`
	HostCountry    string           `json:"host_country,omitempty"`
	Metadata       *ProfileMetadata `json:"metadata,omitempty"`
	CreatedAt      time.Time        `json:"-"`
}

// JobOutcome is the payload stored on a done job.
type JobOutcome struct {
	Fetched int            `json:"fetched"`
	Results []Affiliate    `json:"results"`
	Dropped map[string]int `json:"dropped,omitempty"`
}
