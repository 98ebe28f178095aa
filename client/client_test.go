package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/petrelapp/petrel/core"
)

func testClient(baseURL string) Client {
	server := core.Server{BaseURL: baseURL, SNS: core.SNSMastodon}
	account := core.Account{AccessToken: "test-token"}
	return NewClient(server, account, core.Config{UserAgent: "petrel-test"})
}

func TestGetHomeTimeline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/timelines/home", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "petrel-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "40", r.URL.Query().Get("max_id"))
		assert.Equal(t, "20", r.URL.Query().Get("limit"))
		json.NewEncoder(w).Encode([]core.Status{{ID: "39"}, {ID: "38"}})
	}))
	defer server.Close()

	statuses, err := testClient(server.URL).GetHomeTimeline(context.Background(), Options{MaxID: "40", Limit: 20})
	assert.NoError(t, err)
	assert.Len(t, statuses, 2)
	assert.Equal(t, "39", statuses[0].ID)
}

func TestGetLocalTimelineSetsLocalFlag(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/timelines/public", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("local"))
		json.NewEncoder(w).Encode([]core.Status{})
	}))
	defer server.Close()

	_, err := testClient(server.URL).GetLocalTimeline(context.Background(), Options{})
	assert.NoError(t, err)
}

func TestGetTagTimelineEscapesTag(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/timelines/tag/go%2Flang", r.URL.EscapedPath())
		json.NewEncoder(w).Encode([]core.Status{})
	}))
	defer server.Close()

	_, err := testClient(server.URL).GetTagTimeline(context.Background(), "go/lang", Options{})
	assert.NoError(t, err)
}

func TestGetFavouritesReturnsLinkCursor(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/favourites", r.URL.Path)
		w.Header().Set("Link", `<https://`+r.Host+`/api/v1/favourites?max_id=123>; rel="next"`)
		json.NewEncoder(w).Encode([]core.Status{{ID: "200"}})
	}))
	defer server.Close()

	statuses, cursor, err := testClient(server.URL).GetFavourites(context.Background(), Options{})
	assert.NoError(t, err)
	assert.Len(t, statuses, 1)
	assert.Equal(t, "123", cursor)
}

func TestGetBookmarksWithoutNextLink(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]core.Status{})
	}))
	defer server.Close()

	_, cursor, err := testClient(server.URL).GetBookmarks(context.Background(), Options{})
	assert.NoError(t, err)
	assert.Empty(t, cursor, "missing Link header means the feed is exhausted")
}

func TestErrorStatusSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := testClient(server.URL).GetHomeTimeline(context.Background(), Options{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestGetNotifications(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/notifications", r.URL.Path)
		json.NewEncoder(w).Encode([]core.Notification{{ID: "n1", Type: "mention"}})
	}))
	defer server.Close()

	notifications, err := testClient(server.URL).GetNotifications(context.Background(), Options{})
	assert.NoError(t, err)
	assert.Len(t, notifications, 1)
	assert.Equal(t, "mention", notifications[0].Type)
}

func TestMarkersRoundTrip(t *testing.T) {
	var saved map[string]map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/markers", r.URL.Path)
		switch r.Method {
		case "GET":
			assert.ElementsMatch(t, []string{"home", "notifications"}, r.URL.Query()["timeline[]"])
			json.NewEncoder(w).Encode(core.Markers{
				Home: &core.Marker{LastReadID: "100"},
			})
		case "POST":
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&saved))
			w.Write([]byte("{}"))
		}
	}))
	defer server.Close()

	c := testClient(server.URL)
	markers, err := c.GetMarkers(context.Background(), []string{"home", "notifications"})
	assert.NoError(t, err)
	if assert.NotNil(t, markers.Home) {
		assert.Equal(t, "100", markers.Home.LastReadID)
	}

	err = c.SaveMarkers(context.Background(), core.Markers{
		Home: &core.Marker{LastReadID: "120"},
	})
	assert.NoError(t, err)
	assert.Equal(t, "120", saved["home"]["last_read_id"])
}
