package manager

import (
	"context"
	"encoding/json"
	"fmt"
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
	"bilicrawl/pkg/logger"
	"bilicrawl/pkg/retry"
	"bilicrawl/pkg/stats"
	"bilicrawl/pkg/storage"
)

func writeEnvelope(w http.ResponseWriter, code int, message string, data interface{}) {
	payload, _ := json.Marshal(map[string]interface{}{
		"code": code, "message": message, "ttl": 1, "data": data,
	})
	w.Header().Set("Content-Type", "application/json")
	w.Write(payload)
}

func newTestManager(t *testing.T, handler http.Handler) *Manager {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.DefaultConfig()
	cfg.Output.BaseDirectory = t.TempDir()
	cfg.Pager.PageDelay = 0
	cfg.Pager.CursorDelay = 0
	cfg.Dynamic.Concurrency = 2

	client := bili.NewClient(credential.NewManager(nil, nil), bili.Options{
		BaseURL: srv.URL,
		Retry:   retry.Config{MaxRetries: 1, InitialWait: time.Millisecond},
	})
	return FromClient(cfg, client)
}

func userInfoHandler(mux *http.ServeMux, name string, uid int64) {
	mux.HandleFunc("/x/space/wbi/acc/info", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 0, "0", map[string]interface{}{"mid": uid, "name": name})
	})
}

func TestStoredCredential_ReadsAuthLoginStore(t *testing.T) {
	t.Setenv("BILICRAWL_PASSPHRASE", "test-pass")
	store, err := credential.NewEncryptedFileStore(filepath.Join(t.TempDir(), "credential.enc"))
	require.NoError(t, err)

	// empty store means anonymous, not an error
	assert.Nil(t, storedCredential(store, logger.GetLogger()))

	require.NoError(t, store.Save(&credential.Credential{SESSDATA: "stored-sess", BiliJct: "csrf"}))

	cred := storedCredential(store, logger.GetLogger())
	require.NotNil(t, cred)
	assert.Equal(t, "stored-sess", cred.SESSDATA)
	assert.Equal(t, "csrf", cred.BiliJct)
}

func TestListVideos_CollectsPages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/x/space/wbi/arc/search", func(w http.ResponseWriter, r *http.Request) {
		pn, err := strconv.Atoi(r.URL.Query().Get("pn"))
		require.NoError(t, err)
		assert.Equal(t, "30", r.URL.Query().Get("ps"))

		count := videoPageSize
		if pn == 2 {
			count = 3 // short page ends the walk
		}
		vlist := make([]map[string]interface{}, count)
		for i := range vlist {
			vlist[i] = map[string]interface{}{"bvid": fmt.Sprintf("BV%d_%d", pn, i), "title": "t"}
		}
		writeEnvelope(w, 0, "0", map[string]interface{}{
			"list": map[string]interface{}{"vlist": vlist},
			"page": map[string]interface{}{"count": videoPageSize + 3, "pn": pn, "ps": 30},
		})
	})

	m := newTestManager(t, mux)
	videos, err := m.ListVideos(context.Background(), 42)
	require.NoError(t, err)
	assert.Len(t, videos, videoPageSize+3)
	assert.Equal(t, "BV1_0", videos[0].Bvid)
}

func TestListDynamics_LimitStopsEarly(t *testing.T) {
	pagesServed := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/x/polymer/web-dynamic/v1/feed/space", func(w http.ResponseWriter, r *http.Request) {
		pagesServed++
		writeEnvelope(w, 0, "0", map[string]interface{}{
			"has_more": true,
			"offset":   fmt.Sprintf("o%d", pagesServed),
			"items": []map[string]interface{}{
				{"id_str": fmt.Sprintf("d%d_1", pagesServed)},
				{"id_str": fmt.Sprintf("d%d_2", pagesServed)},
			},
		})
	})

	m := newTestManager(t, mux)
	items, err := m.ListDynamics(context.Background(), 42, 3)
	require.NoError(t, err)
	assert.Len(t, items, 3)
	assert.Equal(t, 2, pagesServed)
}

func TestListDynamics_NoLimitCapsPages(t *testing.T) {
	pagesServed := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/x/polymer/web-dynamic/v1/feed/space", func(w http.ResponseWriter, r *http.Request) {
		pagesServed++
		writeEnvelope(w, 0, "0", map[string]interface{}{
			"has_more": true,
			"offset":   fmt.Sprintf("o%d", pagesServed),
			"items":    []map[string]interface{}{{"id_str": fmt.Sprintf("d%d", pagesServed)}},
		})
	})

	m := newTestManager(t, mux)
	items, err := m.ListDynamics(context.Background(), 42, 0)
	require.NoError(t, err)
	assert.Len(t, items, defaultFeedPages)
	assert.Equal(t, defaultFeedPages, pagesServed)
}

func TestCrawlDynamics_SavesArtifactsAndMetadata(t *testing.T) {
	mux := http.NewServeMux()
	userInfoHandler(mux, "tester", 42)
	mux.HandleFunc("/x/polymer/web-dynamic/v1/feed/space", func(w http.ResponseWriter, r *http.Request) {
		offset := r.URL.Query().Get("offset")
		switch offset {
		case "":
			writeEnvelope(w, 0, "0", map[string]interface{}{
				"has_more": true,
				"offset":   "next",
				"items": []map[string]interface{}{
					{"id_str": "d1", "type": "DYNAMIC_TYPE_WORD", "basic": map[string]interface{}{"comment_id_str": "101", "comment_type": 17}},
					{"id_str": "d2", "type": "DYNAMIC_TYPE_WORD", "basic": map[string]interface{}{"comment_id_str": "102", "comment_type": 17}},
				},
			})
		default:
			writeEnvelope(w, 0, "0", map[string]interface{}{
				"has_more": false,
				"items": []map[string]interface{}{
					{"id_str": "d3", "type": "DYNAMIC_TYPE_WORD", "basic": map[string]interface{}{"comment_id_str": "103", "comment_type": 17}},
				},
			})
		}
	})
	mux.HandleFunc("/x/v2/reply/main", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 0, "0", map[string]interface{}{
			"replies": []map[string]interface{}{
				{"rpid": 1, "content": map[string]interface{}{"message": "hi"}},
			},
			"cursor": map[string]interface{}{"next": 0, "is_end": true},
		})
	})

	m := newTestManager(t, mux)
	snapshot, err := m.CrawlDynamics(context.Background(), 42, true)
	require.NoError(t, err)

	assert.Equal(t, int64(3), snapshot.Listed)
	assert.Equal(t, int64(3), snapshot.Processed)
	assert.Equal(t, int64(3), snapshot.Comments)
	assert.Zero(t, snapshot.Failed)

	dir := filepath.Join(m.store.BaseDir(), "tester_42", "dynamics")
	for _, id := range []string{"d1", "d2", "d3"} {
		assert.True(t, storage.Exists(filepath.Join(dir, "dynamic_"+id+".json")), id)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "metadata.json"))
	require.NoError(t, err)
	var meta struct {
		UserInfo        bili.UserInfo  `json:"user_info"`
		CrawlStats      stats.Snapshot `json:"crawl_stats"`
		IncludeComments bool           `json:"include_comments"`
	}
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, "tester", meta.UserInfo.Name)
	assert.Equal(t, int64(3), meta.CrawlStats.Processed)
	assert.True(t, meta.IncludeComments)

	// second run skips every artifact
	snapshot, err = m.CrawlDynamics(context.Background(), 42, true)
	require.NoError(t, err)
	assert.Equal(t, int64(3), snapshot.Skipped)
	assert.Zero(t, snapshot.Processed)
}

func TestDownloadDynamic_FetchesDetail(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/x/polymer/web-dynamic/v1/detail", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "d777", r.URL.Query().Get("id"))
		writeEnvelope(w, 0, "0", map[string]interface{}{
			"item": map[string]interface{}{"id_str": "d777", "type": "DYNAMIC_TYPE_WORD"},
		})
	})

	m := newTestManager(t, mux)
	result, err := m.DownloadDynamic(context.Background(), "d777", false)
	require.NoError(t, err)
	assert.Equal(t, "d777", result.ID)
	assert.True(t, storage.Exists(filepath.Join(m.store.BaseDir(), "dynamics", "dynamic_d777.json")))
}

func TestDownloadCollection_NamesFolderFromListing(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/x/polymer/web-space/seasons_series_list", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 0, "0", map[string]interface{}{
			"items_lists": map[string]interface{}{
				"seasons_list": []map[string]interface{}{
					{"meta": map[string]interface{}{"season_id": 9, "name": "My Season", "total": 1}},
				},
			},
		})
	})
	mux.HandleFunc("/x/polymer/web-space/seasons_archives_list", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 0, "0", map[string]interface{}{
			"episodes": []map[string]interface{}{},
			"page":     map[string]interface{}{"total": 0},
		})
	})

	m := newTestManager(t, mux)
	snapshot, err := m.DownloadCollection(context.Background(), 42, 9, "season")
	require.NoError(t, err)
	assert.Zero(t, snapshot.Listed)
	assert.True(t, storage.Exists(filepath.Join(m.store.BaseDir(), "My Season_9")))
}
