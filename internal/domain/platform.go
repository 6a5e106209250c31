package domain

import (
	"fmt"
	"strings"
)

// Platform identifies the surface a search result was found on.
type Platform string

const (
	PlatformWeb       Platform = "web"
	PlatformYouTube   Platform = "youtube"
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
)

type platformInfo struct {
	site   string
	social bool
}

var platformTable = map[Platform]platformInfo{
	PlatformWeb:       {},
	PlatformYouTube:   {site: "youtube.com", social: true},
	PlatformInstagram: {site: "instagram.com", social: true},
	PlatformTikTok:    {site: "tiktok.com", social: true},
}

var platformOrder = []Platform{PlatformWeb, PlatformYouTube, PlatformInstagram, PlatformTikTok}

// ParsePlatform converts user input into a known Platform.
func ParsePlatform(raw string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := platformTable[p]; !ok {
		return "", fmt.Errorf("%w: unsupported platform %q", ErrValidation, raw)
	}
	return p, nil
}

// Valid reports whether p is one of the supported platforms.
func (p Platform) Valid() bool {
	_, ok := platformTable[p]
	return ok
}

// Social reports whether results on p are creator profiles or posts.
func (p Platform) Social() bool {
	return platformTable[p].social
}

// SiteDomain is the registrable domain used for site: restricted queries.
func (p Platform) SiteDomain() string {
	return platformTable[p].site
}

// AllPlatforms returns every supported platform in display order.
func AllPlatforms() []Platform {
	out := make([]Platform, len(platformOrder))
	copy(out, platformOrder)
	return out
}

// SocialPlatforms returns the platforms that need profile enrichment.
func SocialPlatforms() []Platform {
	out := make([]Platform, 0, len(platformOrder))
	for _, p := range platformOrder {
		if p.Social() {
			out = append(out, p)
		}
	}
	return out
}
