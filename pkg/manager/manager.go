package manager

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"bilicrawl/internal/dispatch"
	"bilicrawl/pkg/bili"
	"bilicrawl/pkg/collection"
	"bilicrawl/pkg/config"
	"bilicrawl/pkg/credential"
	"bilicrawl/pkg/dynamic"
	"bilicrawl/pkg/logger"
	"bilicrawl/pkg/mux"
	"bilicrawl/pkg/pager"
	"bilicrawl/pkg/retry"
	"bilicrawl/pkg/stats"
	"bilicrawl/pkg/storage"
	"bilicrawl/pkg/video"
)

const videoPageSize = 30

// defaultFeedPages caps an uncapped listing so a huge feed does not get
// walked to the bottom just to print a preview.
const defaultFeedPages = 10

// errListingDone stops a listing walk once the requested count is in.
var errListingDone = stderrors.New("listing limit reached")

// Manager wires the API client, download fetchers, and storage into the
// crawl flows the commands invoke.
type Manager struct {
	cfg     *config.Config
	client  *bili.Client
	store   *storage.Manager
	muxer   *mux.Muxer
	videos  *video.Fetcher
	moments *dynamic.Fetcher
	colls   *collection.Resolver
	log     logger.Logger
}

// New builds a manager from the configuration: credential from env/file,
// falling back to the store `auth login` writes to, client with the
// configured retry policy, fetchers on top.
func New(cfg *config.Config) (*Manager, error) {
	log := logger.GetLogger()

	cred, err := credential.Load(cfg.Credential.File)
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	if cred == nil {
		if store, serr := credential.NewDefaultStore(); serr == nil {
			cred = storedCredential(store, log)
		}
	}

	// The refresh func needs the client, the client needs the manager.
	// The closure breaks the cycle.
	var client *bili.Client
	creds := credential.NewManager(cred, func(ctx context.Context, current credential.Credential) (credential.Credential, error) {
		return client.RefreshCredential(ctx, current)
	})
	client = bili.NewClient(creds, bili.Options{
		HTTPClient: &http.Client{Timeout: cfg.Download.Timeout},
		Retry: retry.Config{
			MaxRetries:  cfg.Retry.MaxRetries,
			InitialWait: cfg.Retry.InitialWait,
		},
		Logger: log,
	})

	if cred == nil {
		log.Warn("no credential loaded, crawling anonymously")
	} else {
		log.WithField("sessdata", cred.Masked().SESSDATA).Info("credential loaded")
	}

	return FromClient(cfg, client), nil
}

// storedCredential reads the credential saved by `auth login`. Best
// effort: a missing or unreadable entry just means anonymous access.
func storedCredential(store credential.Store, log logger.Logger) *credential.Credential {
	if !store.Exists() {
		return nil
	}
	cred, err := store.Load()
	if err != nil {
		log.WithError(err).Warn("could not read stored credential")
		return nil
	}
	return cred
}

// FromClient builds a manager over an existing API client.
func FromClient(cfg *config.Config, client *bili.Client) *Manager {
	log := logger.GetLogger()
	muxer := mux.New(cfg.Download.FFmpegPath)

	return &Manager{
		cfg:    cfg,
		client: client,
		store:  storage.NewManager(cfg.Output.BaseDirectory),
		muxer:  muxer,
		videos: video.NewFetcher(client, muxer, video.Options{
			FetchDanmaku: cfg.Download.FetchDanmaku,
			Quality:      cfg.Download.Quality,
			SkipExisting: cfg.Download.SkipExisting,
		}),
		moments: dynamic.NewFetcher(client, dynamic.Options{
			MaxComments:    cfg.Dynamic.MaxComments,
			SubCommentMode: cfg.Dynamic.SubCommentMode,
			CursorDelay:    cfg.Pager.CursorDelay,
			SubPageDelay:   cfg.Pager.PageDelay,
		}),
		colls: collection.NewResolver(client, cfg.Collection.DetectPolicy, cfg.Pager.PageDelay),
		log:   log,
	}
}

// Client exposes the underlying API client.
func (m *Manager) Client() *bili.Client {
	return m.client
}

// UserInfo fetches a user's profile.
func (m *Manager) UserInfo(ctx context.Context, uid int64) (*bili.UserInfo, error) {
	return m.client.GetUserInfo(ctx, uid)
}

// ListVideos lists every upload in a user's space.
func (m *Manager) ListVideos(ctx context.Context, uid int64) ([]bili.UserVideo, error) {
	pages := &pager.Pages[bili.UserVideo]{
		PageSize: videoPageSize,
		Delay:    m.cfg.Pager.PageDelay,
		Logger:   m.log,
		Fetch: func(ctx context.Context, page int) ([]bili.UserVideo, error) {
			list, err := m.client.GetUserVideos(ctx, uid, page, videoPageSize)
			if err != nil {
				return nil, err
			}
			return list.List.Vlist, nil
		},
	}
	return pages.All(ctx)
}

// DownloadVideo downloads a single video into the base directory.
func (m *Manager) DownloadVideo(ctx context.Context, bvid string) (*video.Result, error) {
	m.warnIfMuxerMissing()
	dir, err := m.store.EnsureDir()
	if err != nil {
		return nil, err
	}
	return m.videos.Download(ctx, bvid, dir)
}

// DownloadUserVideos downloads every upload of a user into a per-user
// folder, bounded by the configured download concurrency. One video
// failing never stops the rest.
func (m *Manager) DownloadUserVideos(ctx context.Context, uid int64) (stats.Snapshot, error) {
	st := stats.New()

	user, err := m.client.GetUserInfo(ctx, uid)
	if err != nil {
		return st.Snapshot(), fmt.Errorf("fetch user info: %w", err)
	}

	dir, err := m.store.EnsureDir(storage.UserFolderName(user.Name, uid))
	if err != nil {
		return st.Snapshot(), err
	}

	videos, err := m.ListVideos(ctx, uid)
	if err != nil {
		return st.Snapshot(), err
	}
	st.AddListed(len(videos))
	m.log.WithFields(map[string]interface{}{
		"user":   user.Name,
		"videos": len(videos),
	}).Info("starting user video download")

	bvids := make([]string, 0, len(videos))
	for _, v := range videos {
		bvids = append(bvids, v.Bvid)
	}
	m.downloadBatch(ctx, bvids, dir, st)

	m.logSummary("user video download finished", st)
	return st.Snapshot(), nil
}

// ListCollections lists the seasons and series in a user's space.
func (m *Manager) ListCollections(ctx context.Context, uid int64) ([]collection.Info, error) {
	return m.colls.ListUserCollections(ctx, uid)
}

// ListCollectionVideos lists a collection's members, detecting the
// scheme when typ is auto.
func (m *Manager) ListCollectionVideos(ctx context.Context, uid, id int64, typ collection.Type) ([]collection.Item, collection.Type, error) {
	return m.colls.Videos(ctx, uid, id, typ)
}

// DownloadCollection downloads every member of a collection into its own
// folder, named after the collection when its metadata is on record.
func (m *Manager) DownloadCollection(ctx context.Context, uid, id int64, typ collection.Type) (stats.Snapshot, error) {
	st := stats.New()

	items, resolved, err := m.colls.Videos(ctx, uid, id, typ)
	if err != nil {
		return st.Snapshot(), err
	}
	st.AddListed(len(items))

	dir, err := m.store.EnsureDir(storage.CollectionFolderName(m.collectionName(ctx, uid, id), id))
	if err != nil {
		return st.Snapshot(), err
	}

	m.log.WithFields(map[string]interface{}{
		"collection_id": id,
		"type":          string(resolved),
		"videos":        len(items),
	}).Info("starting collection download")

	bvids := make([]string, 0, len(items))
	for _, item := range items {
		bvids = append(bvids, item.Bvid)
	}
	m.downloadBatch(ctx, bvids, dir, st)

	m.logSummary("collection download finished", st)
	return st.Snapshot(), nil
}

// collectionName looks the collection up in the owner's space listing.
// Best effort: an unknown ID just falls back to a generic folder name.
func (m *Manager) collectionName(ctx context.Context, uid, id int64) string {
	infos, err := m.colls.ListUserCollections(ctx, uid)
	if err != nil {
		m.log.WithError(err).Debug("could not list collections for naming")
		return ""
	}
	for _, info := range infos {
		if info.ID == id {
			return info.Name
		}
	}
	return ""
}

// downloadBatch dispatches the downloads through the concurrency gate and
// folds the outcomes into st.
func (m *Manager) downloadBatch(ctx context.Context, bvids []string, dir string, st *stats.CrawlStats) {
	m.warnIfMuxerMissing()

	gate := dispatch.NewGate(m.cfg.Download.Concurrency)
	group := dispatch.NewGroup(gate)

	for _, bvid := range bvids {
		bvid := bvid
		group.Go(ctx, func(ctx context.Context) error {
			result, err := m.videos.Download(ctx, bvid, dir)
			if err != nil {
				return fmt.Errorf("%s: %w", bvid, err)
			}
			switch result.Status {
			case video.StatusSkipped:
				st.AddSkipped(1)
			case video.StatusPartialFailure:
				st.AddProcessed(1)
				st.AddFailed(1)
			default:
				st.AddProcessed(1)
			}
			return nil
		})
	}

	for _, r := range group.Wait() {
		if r.Err != nil {
			st.AddFailed(1)
			m.log.WithError(r.Err).Error("video download failed")
		}
	}
}

// ListDynamics lists a user's moments, newest first. limit caps the
// count; zero or negative walks up to defaultFeedPages pages.
func (m *Manager) ListDynamics(ctx context.Context, uid int64, limit int) ([]bili.DynamicItem, error) {
	feed := m.moments.Feed(uid, m.cfg.Pager.CursorDelay)
	if limit <= 0 {
		feed.MaxPages = defaultFeedPages
	}

	var items []bili.DynamicItem
	err := feed.Each(ctx, func(ctx context.Context, page []bili.DynamicItem) error {
		for _, item := range page {
			items = append(items, item)
			if limit > 0 && len(items) >= limit {
				return errListingDone
			}
		}
		return nil
	})
	if err != nil && !stderrors.Is(err, errListingDone) {
		return nil, err
	}
	return items, nil
}

// CrawlDynamics crawls a user's whole moment feed into
// <name>_<uid>/dynamics/. Each page's moments are dispatched through the
// gate and awaited before the next page loads, so a deep feed never
// piles up unbounded work. A run metadata file is written at the end.
func (m *Manager) CrawlDynamics(ctx context.Context, uid int64, includeComments bool) (stats.Snapshot, error) {
	st := stats.New()

	user, err := m.client.GetUserInfo(ctx, uid)
	if err != nil {
		return st.Snapshot(), fmt.Errorf("fetch user info: %w", err)
	}

	dir, err := m.store.EnsureDir(storage.UserFolderName(user.Name, uid), "dynamics")
	if err != nil {
		return st.Snapshot(), err
	}

	m.log.WithFields(map[string]interface{}{
		"user":             user.Name,
		"uid":              uid,
		"include_comments": includeComments,
	}).Info("starting dynamics crawl")

	gate := dispatch.NewGate(m.cfg.Dynamic.Concurrency)
	feed := m.moments.Feed(uid, m.cfg.Pager.CursorDelay)

	err = feed.Each(ctx, func(ctx context.Context, page []bili.DynamicItem) error {
		st.AddListed(len(page))

		group := dispatch.NewGroup(gate)
		for _, item := range page {
			item := item
			group.Go(ctx, func(ctx context.Context) error {
				result, err := m.moments.Process(ctx, item, dir, includeComments)
				if err != nil {
					return fmt.Errorf("%s: %w", item.IDStr, err)
				}
				if result.Status == dynamic.StatusSkipped {
					st.AddSkipped(1)
					return nil
				}
				st.AddProcessed(1)
				st.AddComments(result.CommentCount)
				return nil
			})
		}

		for _, r := range group.Wait() {
			if r.Err != nil {
				st.AddFailed(1)
				m.log.WithError(r.Err).Error("moment processing failed")
			}
		}
		return nil
	})
	if err != nil {
		return st.Snapshot(), err
	}

	snapshot := st.Snapshot()
	meta := map[string]interface{}{
		"user_info":        user,
		"crawl_stats":      snapshot,
		"crawl_time":       time.Now().Format(time.RFC3339),
		"include_comments": includeComments,
	}
	if err := storage.WriteJSON(filepath.Join(dir, "metadata.json"), meta); err != nil {
		m.log.WithError(err).Warn("failed to write run metadata")
	}

	m.logSummary("dynamics crawl finished", st)
	return snapshot, nil
}

// DownloadDynamic fetches a single moment by ID and saves its artifact
// under the base directory.
func (m *Manager) DownloadDynamic(ctx context.Context, id string, includeComments bool) (*dynamic.Result, error) {
	detail, err := m.client.GetDynamicDetail(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch dynamic %s: %w", id, err)
	}

	dir, err := m.store.EnsureDir("dynamics")
	if err != nil {
		return nil, err
	}
	return m.moments.Process(ctx, detail.Item, dir, includeComments)
}

func (m *Manager) warnIfMuxerMissing() {
	if !m.muxer.Available() {
		m.log.WithField("path", m.muxer.Path).Warn("ffmpeg not found, stream muxing will fail")
	}
}

func (m *Manager) logSummary(msg string, st *stats.CrawlStats) {
	s := st.Snapshot()
	m.log.WithFields(map[string]interface{}{
		"listed":    s.Listed,
		"processed": s.Processed,
		"skipped":   s.Skipped,
		"failed":    s.Failed,
		"comments":  s.Comments,
		"elapsed":   s.Elapsed.Round(time.Millisecond).String(),
	}).Info(msg)
}
