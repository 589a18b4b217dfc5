package youtube

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient("test-key")
	c.baseURL = srv.URL
	return c
}

func TestClientLiveChatID(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/videos" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Error("api key missing")
		}
		w.Write([]byte(`{"items":[{"liveStreamingDetails":{"activeLiveChatId":"chat-42"}}]}`))
	})

	id, err := c.LiveChatID(context.Background(), "vid-1")
	if err != nil {
		t.Fatal(err)
	}
	if id != "chat-42" {
		t.Fatalf("chat id = %s", id)
	}
}

func TestClientLiveChatIDNotLive(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[{"liveStreamingDetails":{}}]}`))
	})
	if _, err := c.LiveChatID(context.Background(), "vid-1"); err == nil {
		t.Fatal("expected error for video without live chat")
	}
}

func TestClientFetchPage(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("pageToken"); got != "tok-1" {
			t.Errorf("pageToken = %q", got)
		}
		w.Write([]byte(`{
			"nextPageToken": "tok-2",
			"pollingIntervalMillis": 4000,
			"items": [
				{"id": "m1", "snippet": {"displayMessage": "hello"},
				 "authorDetails": {"displayName": "alice", "isChatSponsor": true}},
				{"id": "m2", "snippet": {"displayMessage": "hi"},
				 "authorDetails": {"displayName": "bob"}}
			]
		}`))
	})

	page, err := c.FetchPage(context.Background(), "chat-42", "tok-1")
	if err != nil {
		t.Fatal(err)
	}
	if page.NextToken != "tok-2" {
		t.Fatalf("next token = %s", page.NextToken)
	}
	if page.Interval != 4*time.Second {
		t.Fatalf("interval = %v", page.Interval)
	}
	if len(page.Events) != 2 {
		t.Fatalf("events = %d", len(page.Events))
	}
	if !page.Events[0].Member || page.Events[1].Member {
		t.Fatalf("member flags wrong: %+v", page.Events)
	}
}

func TestClientQuotaErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
		code int
	}{
		{"quotaExceeded reason", `{"error":{"code":403,"errors":[{"reason":"quotaExceeded"}]}}`, http.StatusForbidden},
		{"rateLimitExceeded reason", `{"error":{"code":403,"errors":[{"reason":"rateLimitExceeded"}]}}`, http.StatusForbidden},
		{"bare 403", `{}`, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.code)
				w.Write([]byte(tc.body))
			})
			_, err := c.FetchPage(context.Background(), "chat-42", "")
			if !errors.Is(err, ErrQuotaExceeded) {
				t.Fatalf("err = %v, want ErrQuotaExceeded", err)
			}
		})
	}
}

func TestClientServerErrorIsTransient(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err := c.FetchPage(context.Background(), "chat-42", "")
	if err == nil || errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("err = %v, want transient error", err)
	}
}
