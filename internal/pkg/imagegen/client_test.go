package imagegen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePollsUntilDone(t *testing.T) {
	var polls int32
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch r.Method {
		case http.MethodPost:
			assert.Equal(t, "/models/owner/model/predictions", r.URL.Path)
			var body map[string]map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "a dragon", body["input"]["prompt"])
			_, _ = w.Write([]byte(`{"id":"p1","status":"starting","urls":{"get":"` + srv.URL + `/predictions/p1"}}`))
		case http.MethodGet:
			if atomic.AddInt32(&polls, 1) < 2 {
				_, _ = w.Write([]byte(`{"id":"p1","status":"processing","urls":{"get":"` + srv.URL + `/predictions/p1"}}`))
				return
			}
			_, _ = w.Write([]byte(`{"id":"p1","status":"succeeded","output":["https://cdn/x.png"]}`))
		}
	}))
	defer srv.Close()

	c := &Client{Token: "tok", Model: "owner/model", BaseURL: srv.URL, PollInterval: time.Millisecond, HTTPClient: srv.Client()}
	pred, err := c.Generate(context.Background(), "a dragon")
	require.NoError(t, err)

	url, err := pred.ImageURL()
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/x.png", url)
	assert.Equal(t, int32(2), atomic.LoadInt32(&polls))
}

func TestGenerateFailedPrediction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"p2","status":"failed","error":"NSFW"}`))
	}))
	defer srv.Close()

	c := &Client{Token: "tok", Model: "m/m", BaseURL: srv.URL, HTTPClient: srv.Client()}
	_, err := c.Generate(context.Background(), "x")
	assert.ErrorContains(t, err, "NSFW")
}

func TestGenerateRequiresToken(t *testing.T) {
	_, err := (&Client{}).Generate(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestImageURLShapes(t *testing.T) {
	for raw, want := range map[string]string{
		`"https://a/1.png"`:   "https://a/1.png",
		`["https://a/2.png"]`: "https://a/2.png",
	} {
		p := Prediction{Output: json.RawMessage(raw)}
		got, err := p.ImageURL()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	for _, raw := range []string{``, `null`, `[]`, `{}`} {
		p := Prediction{Output: json.RawMessage(raw)}
		_, err := p.ImageURL()
		assert.ErrorIs(t, err, ErrNoOutput)
	}
}

func TestEnhancePrompt(t *testing.T) {
	got := EnhancePrompt("  burning the countryside ")
	assert.Contains(t, got, CharacterDescription+", burning the countryside. ")
	assert.Contains(t, got, StyleModifiers)
}
