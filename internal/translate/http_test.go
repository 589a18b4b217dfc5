package translate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPTranslator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req translateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Target != "en" {
			t.Errorf("target = %q", req.Target)
		}
		json.NewEncoder(w).Encode(translateResponse{Text: "hello"})
	}))
	defer srv.Close()

	tr := NewHTTPTranslator(srv.URL)
	got, err := tr.Translate(context.Background(), "привет", "en")
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello" {
		t.Fatalf("text = %q", got)
	}
}

func TestHTTPTranslatorServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPTranslator(srv.URL).Translate(context.Background(), "x", "en")
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("err = %v, want ErrServiceUnavailable", err)
	}
}

func TestHTTPTranslatorEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(translateResponse{})
	}))
	defer srv.Close()

	if _, err := NewHTTPTranslator(srv.URL).Translate(context.Background(), "x", "en"); err == nil {
		t.Fatal("expected error for empty translation")
	}
}
