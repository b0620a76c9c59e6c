package mentions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/trogdorcult/burninator/internal/pkg/env"
)

const (
	defaultAPIBaseURL     = "https://api.twitterapi.io"
	defaultTrackedAccount = "trogdorcult"
	defaultTimeout        = 20 * time.Second
)

var (
	ErrNotConfigured = errors.New("TWITTER_API_KEY is not configured")
	ErrUserNotFound  = errors.New("twitter user not found")
)

// Client talks to the Twitter-compatible mention API.
type Client struct {
	APIKey         string
	APIBaseURL     string
	TrackedAccount string

	HTTPClient *http.Client
}

type User struct {
	ID           string `json:"id"`
	UserName     string `json:"userName,omitempty"`
	Username     string `json:"username,omitempty"`
	Name         string `json:"name"`
	ProfileImage string `json:"profilePicture,omitempty"`
	LegacyImage  string `json:"profile_image_url,omitempty"`
}

// Handle returns the screen name regardless of layout.
func (u *User) Handle() string {
	if u.UserName != "" {
		return u.UserName
	}
	return u.Username
}

func (u *User) Picture() string {
	if u.ProfileImage != "" {
		return u.ProfileImage
	}
	return u.LegacyImage
}

func NewClientFromEnv() *Client {
	return &Client{
		APIKey:         strings.TrimSpace(env.GetEnv("TWITTER_API_KEY", "")),
		APIBaseURL:     strings.TrimRight(strings.TrimSpace(env.GetEnv("TWITTER_API_BASE_URL", defaultAPIBaseURL)), "/"),
		TrackedAccount: strings.TrimPrefix(strings.TrimSpace(env.GetEnv("TWITTER_TRACKED_ACCOUNT", defaultTrackedAccount)), "@"),
		HTTPClient: &http.Client{
			Timeout: env.GetEnvDuration("TWITTER_API_TIMEOUT", defaultTimeout),
		},
	}
}

// SearchMentions fetches one page of posts mentioning handle, optionally
// bounded below by since.
func (c *Client) SearchMentions(ctx context.Context, handle string, since time.Time, cursor string) (*MentionsPage, error) {
	q := url.Values{}
	q.Set("userName", strings.TrimPrefix(handle, "@"))
	if !since.IsZero() {
		q.Set("sinceTime", strconv.FormatInt(since.Unix(), 10))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	var page MentionsPage
	if err := c.get(ctx, "/twitter/user/mentions", q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// UserByUsername resolves a handle to its numeric platform ID.
func (c *Client) UserByUsername(ctx context.Context, handle string) (*User, error) {
	q := url.Values{}
	q.Set("userName", strings.TrimPrefix(strings.TrimSpace(handle), "@"))

	var out struct {
		Data *User `json:"data"`
	}
	if err := c.get(ctx, "/twitter/user/info", q, &out); err != nil {
		return nil, err
	}
	if out.Data == nil || out.Data.ID == "" {
		return nil, ErrUserNotFound
	}
	return out.Data, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	if c.APIKey == "" {
		return ErrNotConfigured
	}
	endpoint := c.APIBaseURL + path + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("Accept", "application/json")

	log.Debugf("[Twitter] GET %s", path)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("twitter request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if resp.StatusCode == http.StatusNotFound {
		return ErrUserNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("twitter request %s failed: status=%d body=%s", path, resp.StatusCode, truncate(string(body), 300))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode twitter response %s: %w", path, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
