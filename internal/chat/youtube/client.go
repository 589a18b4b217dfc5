package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/fjlabs/fjchat-core/internal/chat"
)

// ErrQuotaExceeded marks the daily API quota as spent. It is terminal for
// the current source handle; quota resets on Google's daily boundary.
var ErrQuotaExceeded = errors.New("youtube: api quota exceeded")

// Page is one batch of live chat messages plus the continuation token and
// the minimum interval the API asks us to wait before the next poll.
type Page struct {
	Events    []chat.Event
	NextToken string
	Interval  time.Duration
}

// PageFetcher abstracts the YouTube live chat API so the poll loop can be
// exercised against a fake.
type PageFetcher interface {
	LiveChatID(ctx context.Context, videoID string) (string, error)
	FetchPage(ctx context.Context, chatID, pageToken string) (Page, error)
}

const defaultBaseURL = "https://www.googleapis.com/youtube/v3"

// Client talks to the YouTube Data API v3 with an API key.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type videoListResponse struct {
	Items []struct {
		LiveStreamingDetails struct {
			ActiveLiveChatID string `json:"activeLiveChatId"`
		} `json:"liveStreamingDetails"`
	} `json:"items"`
}

type liveChatResponse struct {
	NextPageToken         string `json:"nextPageToken"`
	PollingIntervalMillis int    `json:"pollingIntervalMillis"`
	Items                 []struct {
		ID      string `json:"id"`
		Snippet struct {
			DisplayMessage string `json:"displayMessage"`
		} `json:"snippet"`
		AuthorDetails struct {
			DisplayName     string `json:"displayName"`
			IsChatOwner     bool   `json:"isChatOwner"`
			IsChatSponsor   bool   `json:"isChatSponsor"`
			IsChatModerator bool   `json:"isChatModerator"`
		} `json:"authorDetails"`
	} `json:"items"`
}

type apiErrorResponse struct {
	Error struct {
		Code   int    `json:"code"`
		Status string `json:"status"`
		Errors []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

func (c *Client) LiveChatID(ctx context.Context, videoID string) (string, error) {
	query := url.Values{}
	query.Set("part", "liveStreamingDetails")
	query.Set("id", videoID)

	var resp videoListResponse
	if err := c.get(ctx, "/videos", query, &resp); err != nil {
		return "", err
	}
	if len(resp.Items) == 0 {
		return "", fmt.Errorf("youtube: video %s not found or not a live stream", videoID)
	}
	chatID := resp.Items[0].LiveStreamingDetails.ActiveLiveChatID
	if chatID == "" {
		return "", fmt.Errorf("youtube: video %s has no active live chat", videoID)
	}
	return chatID, nil
}

func (c *Client) FetchPage(ctx context.Context, chatID, pageToken string) (Page, error) {
	query := url.Values{}
	query.Set("liveChatId", chatID)
	query.Set("part", "snippet,authorDetails")
	query.Set("fields", "nextPageToken,pollingIntervalMillis,items(id,snippet(displayMessage),authorDetails(displayName,isChatOwner,isChatSponsor,isChatModerator))")
	if pageToken != "" {
		query.Set("pageToken", pageToken)
	}

	var resp liveChatResponse
	if err := c.get(ctx, "/liveChat/messages", query, &resp); err != nil {
		return Page{}, err
	}

	page := Page{
		NextToken: resp.NextPageToken,
		Interval:  time.Duration(resp.PollingIntervalMillis) * time.Millisecond,
	}
	now := time.Now().UTC()
	for _, item := range resp.Items {
		member := item.AuthorDetails.IsChatOwner ||
			item.AuthorDetails.IsChatSponsor ||
			item.AuthorDetails.IsChatModerator
		page.Events = append(page.Events, chat.Event{
			ID:         item.ID,
			Author:     item.AuthorDetails.DisplayName,
			Text:       item.Snippet.DisplayMessage,
			Member:     member,
			ReceivedAt: now,
		})
	}
	return page, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	query.Set("key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("youtube: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr apiErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil {
			for _, e := range apiErr.Error.Errors {
				switch e.Reason {
				case "quotaExceeded", "dailyLimitExceeded", "rateLimitExceeded":
					return ErrQuotaExceeded
				}
			}
		}
		if resp.StatusCode == http.StatusForbidden {
			return ErrQuotaExceeded
		}
		return fmt.Errorf("youtube: api returned status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
