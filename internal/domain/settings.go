package domain

import "time"

// Settings are the owner level defaults applied to every new job.
type Settings struct {
	OwnerID        string
	TargetCountry  string
	TargetLanguage string
	OwnBrand       string
	Competitors    []string
	UpdatedAt      time.Time
}

// SettingsSnapshot is frozen on a job at creation so later edits to Settings
// do not change how an in-flight job is filtered.
type SettingsSnapshot struct {
	TargetCountry    string   `json:"target_country,omitempty"`
	TargetLanguage   string   `json:"target_language,omitempty"`
	OwnBrand         string   `json:"own_brand,omitempty"`
	Competitors      []string `json:"competitors,omitempty"`
	AffiliateSignals bool     `json:"affiliate_signals"`
}

// Schedule drives unattended discovery for one owner.
type Schedule struct {
	ID               string
	OwnerID          string
	Topics           []string
	Competitors      []string
	Platforms        []Platform
	AffiliateSignals bool
	IntervalHours    int
	NextRunAt        time.Time
	Enabled          bool
}
