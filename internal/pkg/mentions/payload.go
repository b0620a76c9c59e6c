package mentions

import (
	"errors"
	"strings"
	"time"
)

// Tweet accepts both layouts the mention source has served over time. Current
// field names are camelCase at the top level; the legacy layout nests counters
// under public_metrics and uses snake_case.
type Tweet struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	URL  string `json:"url,omitempty"`

	// current layout
	CreatedAt        string            `json:"createdAt,omitempty"`
	LikeCount        *int              `json:"likeCount,omitempty"`
	RetweetCount     *int              `json:"retweetCount,omitempty"`
	ReplyCount       *int              `json:"replyCount,omitempty"`
	QuoteCount       *int              `json:"quoteCount,omitempty"`
	ViewCount        *int              `json:"viewCount,omitempty"`
	Author           *Author           `json:"author,omitempty"`
	ExtendedEntities *ExtendedEntities `json:"extendedEntities,omitempty"`

	// legacy layout
	LegacyCreatedAt string         `json:"created_at,omitempty"`
	AuthorID        string         `json:"author_id,omitempty"`
	PublicMetrics   *PublicMetrics `json:"public_metrics,omitempty"`

	Entities *Entities `json:"entities,omitempty"`
}

type Author struct {
	ID       string `json:"id"`
	UserName string `json:"userName,omitempty"`
	Name     string `json:"name,omitempty"`
}

type PublicMetrics struct {
	RetweetCount    int `json:"retweet_count"`
	ReplyCount      int `json:"reply_count"`
	LikeCount       int `json:"like_count"`
	QuoteCount      int `json:"quote_count"`
	ImpressionCount int `json:"impression_count,omitempty"`
}

type Entities struct {
	URLs []struct {
		URL         string `json:"url"`
		ExpandedURL string `json:"expanded_url"`
	} `json:"urls,omitempty"`
	Hashtags []struct {
		Tag  string `json:"tag,omitempty"`
		Text string `json:"text,omitempty"`
	} `json:"hashtags,omitempty"`
}

type ExtendedEntities struct {
	Media []struct {
		Type string `json:"type"`
	} `json:"media,omitempty"`
}

// Mention is the canonical record every later pipeline stage works on.
type Mention struct {
	ID           string
	AuthorID     string
	AuthorHandle string
	Text         string
	URL          string
	CreatedAt    time.Time
	// TimestampMissing is set when CreatedAt fell back to the ingestion time.
	TimestampMissing bool
	Likes            int
	Retweets         int
	Replies          int
	Quotes           int
	Impressions      int
	HasImage         bool
	HasVideo         bool
	HasHashtags      bool
}

var (
	ErrMissingID     = errors.New("mention payload has no id")
	ErrMissingAuthor = errors.New("mention payload has no author id")
)

var timeLayouts = []string{
	time.RubyDate, // "Tue Dec 10 07:00:30 +0000 2024"
	time.RFC3339Nano,
	time.RFC3339,
}

func parseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func firstInt(current *int, legacy int) int {
	if current != nil {
		return *current
	}
	return legacy
}

// Normalize maps either payload layout to a Mention, preferring current field
// names. now is used when the payload carries no parseable timestamp.
func Normalize(t Tweet, now time.Time) (Mention, error) {
	id := strings.TrimSpace(t.ID)
	if id == "" {
		return Mention{}, ErrMissingID
	}

	m := Mention{ID: id, Text: t.Text}

	if t.Author != nil && t.Author.ID != "" {
		m.AuthorID = t.Author.ID
		m.AuthorHandle = t.Author.UserName
	} else {
		m.AuthorID = strings.TrimSpace(t.AuthorID)
	}
	if m.AuthorID == "" {
		return Mention{}, ErrMissingAuthor
	}

	raw := t.CreatedAt
	if raw == "" {
		raw = t.LegacyCreatedAt
	}
	if ts, ok := parseTimestamp(raw); ok {
		m.CreatedAt = ts
	} else {
		m.CreatedAt = now.UTC()
		m.TimestampMissing = true
	}

	var pm PublicMetrics
	if t.PublicMetrics != nil {
		pm = *t.PublicMetrics
	}
	m.Likes = firstInt(t.LikeCount, pm.LikeCount)
	m.Retweets = firstInt(t.RetweetCount, pm.RetweetCount)
	m.Replies = firstInt(t.ReplyCount, pm.ReplyCount)
	m.Quotes = firstInt(t.QuoteCount, pm.QuoteCount)
	m.Impressions = firstInt(t.ViewCount, pm.ImpressionCount)

	if t.ExtendedEntities != nil && len(t.ExtendedEntities.Media) > 0 {
		for _, media := range t.ExtendedEntities.Media {
			switch media.Type {
			case "photo":
				m.HasImage = true
			case "video", "animated_gif":
				m.HasVideo = true
			}
		}
	} else if t.Entities != nil && len(t.Entities.URLs) > 0 {
		// Legacy payloads carry no media objects; attached links stand in for an image.
		m.HasImage = true
	}

	m.HasHashtags = strings.Contains(t.Text, "#") || (t.Entities != nil && len(t.Entities.Hashtags) > 0)

	m.URL = strings.TrimSpace(t.URL)
	if m.URL == "" {
		m.URL = "https://twitter.com/i/web/status/" + id
	}
	return m, nil
}

// MentionsPage is one page of the mention search endpoint in either layout.
type MentionsPage struct {
	Tweets      []Tweet `json:"tweets,omitempty"`
	Data        []Tweet `json:"data,omitempty"`
	HasNextPage bool    `json:"has_next_page"`
	NextCursor  string  `json:"next_cursor,omitempty"`
	Meta        *struct {
		ResultCount int    `json:"result_count"`
		NextToken   string `json:"next_token,omitempty"`
	} `json:"meta,omitempty"`
	Status  string `json:"status,omitempty"`
	Message string `json:"msg,omitempty"`
}

func (p *MentionsPage) Items() []Tweet {
	if len(p.Tweets) > 0 {
		return p.Tweets
	}
	return p.Data
}

// Cursor returns the token for the following page, or "" when this is the last one.
func (p *MentionsPage) Cursor() string {
	if p.HasNextPage && p.NextCursor != "" {
		return p.NextCursor
	}
	if p.Meta != nil {
		return p.Meta.NextToken
	}
	return ""
}
