package apify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"affiliatescout/internal/domain"
)

// Default enrichment actors per platform.
const (
	DefaultYouTubeActor   = "streamers/youtube-scraper"
	DefaultInstagramActor = "apify/instagram-scraper"
	DefaultTikTokActor    = "clockworks/tiktok-scraper"
)

type profileSpec struct {
	actor  string
	input  func(urls []string) any
	decode func(raw json.RawMessage) (string, domain.ProfileMetadata, bool)
}

var profileSpecs = map[domain.Platform]profileSpec{
	domain.PlatformYouTube: {
		actor: DefaultYouTubeActor,
		input: func(urls []string) any {
			return map[string]any{"startUrls": startURLs(urls), "maxResults": 1, "maxResultsShorts": 0, "maxResultStreams": 0}
		},
		decode: decodeYouTube,
	},
	domain.PlatformInstagram: {
		actor: DefaultInstagramActor,
		input: func(urls []string) any {
			return map[string]any{"directUrls": urls, "resultsType": "details", "resultsLimit": 1}
		},
		decode: decodeInstagram,
	},
	domain.PlatformTikTok: {
		actor: DefaultTikTokActor,
		input: func(urls []string) any {
			return map[string]any{"postURLs": urls, "resultsPerPage": 1, "shouldDownloadVideos": false}
		},
		decode: decodeTikTok,
	},
}

// ProfileResolver resolves social URLs to profile metadata with one
// synchronous actor run per batch.
type ProfileResolver struct {
	client   *Client
	platform domain.Platform
	actorID  string
	spec     profileSpec
}

// NewProfileResolver returns a resolver for platform. An empty actorID uses
// the platform default.
func NewProfileResolver(client *Client, platform domain.Platform, actorID string) (*ProfileResolver, error) {
	spec, ok := profileSpecs[platform]
	if !ok {
		return nil, fmt.Errorf("apify: no profile resolver for platform %q", platform)
	}
	if strings.TrimSpace(actorID) == "" {
		actorID = spec.actor
	}
	return &ProfileResolver{client: client, platform: platform, actorID: actorID, spec: spec}, nil
}

// Platform returns the platform this resolver serves.
func (r *ProfileResolver) Platform() domain.Platform {
	return r.platform
}

// BatchResolve returns metadata keyed by the URL each item reports.
func (r *ProfileResolver) BatchResolve(ctx context.Context, urls []string) (map[string]domain.ProfileMetadata, error) {
	out := make(map[string]domain.ProfileMetadata, len(urls))
	if len(urls) == 0 {
		return out, nil
	}
	var items []json.RawMessage
	if err := r.client.RunSync(ctx, r.actorID, r.spec.input(urls), &items); err != nil {
		return nil, fmt.Errorf("apify: resolve %s profiles: %w", r.platform, err)
	}
	for _, item := range items {
		u, meta, ok := r.spec.decode(item)
		if !ok || u == "" {
			continue
		}
		out[u] = meta
	}
	r.client.logger.Debug().Str("platform", string(r.platform)).Int("requested", len(urls)).Int("resolved", len(out)).Msg("apify: profiles resolved")
	return out, nil
}

func startURLs(urls []string) []map[string]string {
	out := make([]map[string]string, 0, len(urls))
	for _, u := range urls {
		out = append(out, map[string]string{"url": u})
	}
	return out
}

type youtubeItem struct {
	URL             string `json:"url"`
	InputURL        string `json:"input"`
	Title           string `json:"title"`
	ChannelName     string `json:"channelName"`
	ChannelUsername string `json:"channelUsername"`
	Subscribers     int64  `json:"numberOfSubscribers"`
	Views           int64  `json:"viewCount"`
	Likes           int64  `json:"likes"`
	Comments        int64  `json:"commentsCount"`
	Thumbnail       string `json:"thumbnailUrl"`
	Date            string `json:"date"`
	Text            string `json:"text"`
	Verified        bool   `json:"isChannelVerified"`
}

func decodeYouTube(raw json.RawMessage) (string, domain.ProfileMetadata, bool) {
	var it youtubeItem
	if err := json.Unmarshal(raw, &it); err != nil {
		return "", domain.ProfileMetadata{}, false
	}
	return firstNonEmpty(it.InputURL, it.URL), domain.ProfileMetadata{
		DisplayName:  it.ChannelName,
		Handle:       strings.TrimPrefix(it.ChannelUsername, "@"),
		Followers:    it.Subscribers,
		Verified:     it.Verified,
		Views:        it.Views,
		Likes:        it.Likes,
		Comments:     it.Comments,
		ThumbnailURL: it.Thumbnail,
		PublishedAt:  it.Date,
		Bio:          firstNonEmpty(it.Text, it.Title),
	}, true
}

type instagramItem struct {
	InputURL      string `json:"inputUrl"`
	URL           string `json:"url"`
	Username      string `json:"username"`
	FullName      string `json:"fullName"`
	Followers     int64  `json:"followersCount"`
	Verified      bool   `json:"verified"`
	Biography     string `json:"biography"`
	ProfilePic    string `json:"profilePicUrl"`
	OwnerUsername string `json:"ownerUsername"`
	OwnerFullName string `json:"ownerFullName"`
	Caption       string `json:"caption"`
	Likes         int64  `json:"likesCount"`
	Comments      int64  `json:"commentsCount"`
	Views         int64  `json:"videoViewCount"`
	DisplayURL    string `json:"displayUrl"`
	Timestamp     string `json:"timestamp"`
}

func decodeInstagram(raw json.RawMessage) (string, domain.ProfileMetadata, bool) {
	var it instagramItem
	if err := json.Unmarshal(raw, &it); err != nil {
		return "", domain.ProfileMetadata{}, false
	}
	return firstNonEmpty(it.InputURL, it.URL), domain.ProfileMetadata{
		DisplayName:  firstNonEmpty(it.FullName, it.OwnerFullName),
		Handle:       firstNonEmpty(it.Username, it.OwnerUsername),
		Followers:    it.Followers,
		Verified:     it.Verified,
		Views:        it.Views,
		Likes:        it.Likes,
		Comments:     it.Comments,
		ThumbnailURL: firstNonEmpty(it.ProfilePic, it.DisplayURL),
		PublishedAt:  it.Timestamp,
		Bio:          firstNonEmpty(it.Biography, it.Caption),
	}, true
}

type tiktokItem struct {
	SubmittedURL string `json:"submittedVideoUrl"`
	WebVideoURL  string `json:"webVideoUrl"`
	Text         string `json:"text"`
	Plays        int64  `json:"playCount"`
	Diggs        int64  `json:"diggCount"`
	Comments     int64  `json:"commentCount"`
	Created      string `json:"createTimeISO"`
	Author       struct {
		Name      string `json:"name"`
		NickName  string `json:"nickName"`
		Fans      int64  `json:"fans"`
		Verified  bool   `json:"verified"`
		Signature string `json:"signature"`
		Avatar    string `json:"avatar"`
	} `json:"authorMeta"`
}

func decodeTikTok(raw json.RawMessage) (string, domain.ProfileMetadata, bool) {
	var it tiktokItem
	if err := json.Unmarshal(raw, &it); err != nil {
		return "", domain.ProfileMetadata{}, false
	}
	return firstNonEmpty(it.SubmittedURL, it.WebVideoURL), domain.ProfileMetadata{
		DisplayName:  it.Author.NickName,
		Handle:       it.Author.Name,
		Followers:    it.Author.Fans,
		Verified:     it.Author.Verified,
		Views:        it.Plays,
		Likes:        it.Diggs,
		Comments:     it.Comments,
		ThumbnailURL: it.Author.Avatar,
		PublishedAt:  it.Created,
		Bio:          firstNonEmpty(it.Text, it.Author.Signature),
	}, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
