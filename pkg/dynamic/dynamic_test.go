package dynamic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bilicrawl/pkg/bili"
	"bilicrawl/pkg/config"
	"bilicrawl/pkg/credential"
	"bilicrawl/pkg/retry"
	"bilicrawl/pkg/storage"
)

func writeEnvelope(w http.ResponseWriter, code int, message string, data interface{}) {
	payload, _ := json.Marshal(map[string]interface{}{
		"code": code, "message": message, "ttl": 1, "data": data,
	})
	w.Header().Set("Content-Type", "application/json")
	w.Write(payload)
}

func newTestFetcher(t *testing.T, handler http.Handler, opts Options) *Fetcher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := bili.NewClient(credential.NewManager(nil, nil), bili.Options{
		BaseURL: srv.URL,
		Retry:   retry.Config{MaxRetries: 1, InitialWait: time.Millisecond},
	})
	return NewFetcher(client, opts)
}

func testItem(id string, oid int64) bili.DynamicItem {
	var item bili.DynamicItem
	item.IDStr = id
	item.Type = "DYNAMIC_TYPE_WORD"
	item.Basic.CommentIDStr = strconv.FormatInt(oid, 10)
	item.Basic.CommentType = bili.CommentTypeDynamic
	return item
}

func rootComment(rpid int64, rcount int, inline ...bili.Comment) map[string]interface{} {
	c := map[string]interface{}{
		"rpid":    rpid,
		"rcount":  rcount,
		"content": map[string]interface{}{"message": "root"},
	}
	if len(inline) > 0 {
		c["replies"] = inline
	}
	return c
}

func TestFeed_WalksOffsets(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/x/polymer/web-dynamic/v1/feed/space", func(w http.ResponseWriter, r *http.Request) {
		offset := r.URL.Query().Get("offset")
		switch offset {
		case "":
			writeEnvelope(w, 0, "0", map[string]interface{}{
				"has_more": true,
				"offset":   "next1",
				"items":    []map[string]interface{}{{"id_str": "d1"}, {"id_str": "d2"}},
			})
		case "next1":
			writeEnvelope(w, 0, "0", map[string]interface{}{
				"has_more": false,
				"offset":   "stale",
				"items":    []map[string]interface{}{{"id_str": "d3"}},
			})
		default:
			t.Fatalf("unexpected offset %q", offset)
		}
	})

	f := newTestFetcher(t, mux, Options{})
	items, err := f.Feed(7, 0).All(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "d1", items[0].IDStr)
	assert.Equal(t, "d3", items[2].IDStr)
}

func TestFetchComments_CursorAndInlineSubs(t *testing.T) {
	inline := []bili.Comment{{Rpid: 900}}
	mux := http.NewServeMux()
	mux.HandleFunc("/x/v2/reply/main", func(w http.ResponseWriter, r *http.Request) {
		offset := r.URL.Query().Get("offset")
		assert.Equal(t, "17", r.URL.Query().Get("type"))
		switch offset {
		case "":
			writeEnvelope(w, 0, "0", map[string]interface{}{
				"replies": []map[string]interface{}{rootComment(1, 1, inline...), rootComment(2, 0)},
				"cursor":  map[string]interface{}{"next": 77, "is_end": false},
			})
		case "77":
			writeEnvelope(w, 0, "0", map[string]interface{}{
				"replies": []map[string]interface{}{rootComment(3, 0)},
				"cursor":  map[string]interface{}{"next": 0, "is_end": true},
			})
		default:
			t.Fatalf("unexpected offset %q", offset)
		}
	})

	f := newTestFetcher(t, mux, Options{SubCommentMode: config.SubCommentsInline})
	data, err := f.FetchComments(context.Background(), testItem("d1", 555))
	require.NoError(t, err)

	assert.Equal(t, 3, data.TotalCount)
	require.Len(t, data.RootComments, 3)
	require.Contains(t, data.SubComments, "1")
	assert.Equal(t, int64(900), data.SubComments["1"][0].Rpid)
}

func TestFetchComments_ExhaustiveSubPagination(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/x/v2/reply/main", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 0, "0", map[string]interface{}{
			"replies": []map[string]interface{}{rootComment(1, 25)},
			"cursor":  map[string]interface{}{"next": 0, "is_end": true},
		})
	})
	mux.HandleFunc("/x/v2/reply/reply", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("root"))
		pn := r.URL.Query().Get("pn")
		count := subCommentPageSize
		if pn == "2" {
			count = 5 // short page ends the walk
		}
		replies := make([]map[string]interface{}, count)
		for i := range replies {
			replies[i] = map[string]interface{}{"rpid": 1000 + i}
		}
		writeEnvelope(w, 0, "0", map[string]interface{}{"replies": replies})
	})

	f := newTestFetcher(t, mux, Options{SubCommentMode: config.SubCommentsExhaustive})
	data, err := f.FetchComments(context.Background(), testItem("d1", 555))
	require.NoError(t, err)

	require.Contains(t, data.SubComments, "1")
	assert.Len(t, data.SubComments["1"], subCommentPageSize+5)
}

func TestFetchComments_CeilingKeepsFetched(t *testing.T) {
	pagesServed := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/x/v2/reply/main", func(w http.ResponseWriter, r *http.Request) {
		pagesServed++
		writeEnvelope(w, 0, "0", map[string]interface{}{
			"replies": []map[string]interface{}{rootComment(int64(pagesServed*10), 0), rootComment(int64(pagesServed*10+1), 0)},
			"cursor":  map[string]interface{}{"next": pagesServed + 1, "is_end": false},
		})
	})

	f := newTestFetcher(t, mux, Options{MaxComments: 3})
	data, err := f.FetchComments(context.Background(), testItem("d1", 555))
	require.NoError(t, err)

	assert.Equal(t, 3, data.TotalCount)
	assert.Len(t, data.RootComments, 3)
	assert.Equal(t, 2, pagesServed)
}

func TestFetchComments_PageFailureKeepsPartial(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/x/v2/reply/main", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			writeEnvelope(w, 0, "0", map[string]interface{}{
				"replies": []map[string]interface{}{rootComment(1, 0)},
				"cursor":  map[string]interface{}{"next": 9, "is_end": false},
			})
			return
		}
		writeEnvelope(w, -500, "server exploded", nil)
	})

	f := newTestFetcher(t, mux, Options{})
	data, err := f.FetchComments(context.Background(), testItem("d1", 555))
	require.NoError(t, err)
	assert.Equal(t, 1, data.TotalCount)
}

func TestFetchComments_NoCommentSection(t *testing.T) {
	f := newTestFetcher(t, http.NewServeMux(), Options{})

	var item bili.DynamicItem
	item.IDStr = "d9"
	data, err := f.FetchComments(context.Background(), item)
	require.NoError(t, err)
	assert.Zero(t, data.TotalCount)
}

func TestProcess_WritesArtifactAndSkipsSecondRun(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/x/v2/reply/main", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 0, "0", map[string]interface{}{
			"replies": []map[string]interface{}{rootComment(1, 0)},
			"cursor":  map[string]interface{}{"next": 0, "is_end": true},
		})
	})

	f := newTestFetcher(t, mux, Options{})
	dir := t.TempDir()

	item := testItem("777", 555)
	result, err := f.Process(context.Background(), item, dir, true)
	require.NoError(t, err)
	assert.Equal(t, StatusSaved, result.Status)
	assert.Equal(t, 1, result.CommentCount)

	path := filepath.Join(dir, "dynamic_777.json")
	require.True(t, storage.Exists(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var artifact struct {
		DynamicInfo bili.DynamicItem `json:"dynamic_info"`
		Comments    CommentsData     `json:"comments"`
		Metadata    struct {
			DynamicID     string `json:"dynamic_id"`
			TotalComments int    `json:"total_comments"`
		} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(raw, &artifact))
	assert.Equal(t, "777", artifact.DynamicInfo.IDStr)
	assert.Equal(t, 1, artifact.Comments.TotalCount)
	assert.Equal(t, "777", artifact.Metadata.DynamicID)

	// second run skips without touching the network
	result, err = f.Process(context.Background(), item, dir, true)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, result.Status)
}
