package video

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"bilicrawl/pkg/bili"
	"bilicrawl/pkg/errors"
	"bilicrawl/pkg/logger"
	"bilicrawl/pkg/storage"
)

// Danmaku sections can be disabled per video; the API answers with this
// envelope code.
const codeDanmakuClosed = 12002

var (
	ErrMetadataUnavailable = stderrors.New("video metadata unavailable")
	ErrNoStream            = stderrors.New("no playable stream")
	ErrMuxFailed           = stderrors.New("stream mux failed")
)

// Muxer combines downloaded streams into a playable file.
type Muxer interface {
	Available() bool
	Mux(ctx context.Context, output string, inputs ...string) error
}

// Status is the terminal state of one video download.
type Status int

const (
	StatusDone Status = iota
	StatusSkipped
	StatusPartialFailure
)

// Result summarizes one video download.
type Result struct {
	Bvid        string
	Title       string
	Status      Status
	PagesDone   int
	PagesFailed int
}

// Options tunes the fetcher.
type Options struct {
	// FetchDanmaku also saves each sub-part's danmaku as JSONL.
	FetchDanmaku bool
	// Quality is the preferred quality label. Informational: the API
	// already serves the best quality the credential allows.
	Quality string
	// SkipExisting skips a video whose folder already exists instead of
	// re-entering it to fill in missing sub-parts.
	SkipExisting bool
}

// Fetcher downloads videos: metadata, every sub-part's media, and
// optionally danmaku.
type Fetcher struct {
	client *bili.Client
	muxer  Muxer
	opts   Options
	log    logger.Logger
}

// NewFetcher builds a fetcher over the API client and muxer.
func NewFetcher(client *bili.Client, muxer Muxer, opts Options) *Fetcher {
	return &Fetcher{
		client: client,
		muxer:  muxer,
		opts:   opts,
		log:    logger.GetLogger(),
	}
}

// FetchInfo fetches a video's metadata.
func (f *Fetcher) FetchInfo(ctx context.Context, bvid string) (*bili.VideoInfo, error) {
	info, err := f.client.GetVideoInfo(ctx, bvid)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMetadataUnavailable, bvid, err)
	}
	return info, nil
}

// Download fetches one video into its own folder under dir. With
// SkipExisting set, an existing folder means a previous run already
// handled it and the whole video is skipped; otherwise the folder is
// re-entered and only sub-parts already on disk are skipped. Sub-part
// failures are isolated: remaining sub-parts are still attempted and
// the result reports a partial failure.
func (f *Fetcher) Download(ctx context.Context, bvid, dir string) (*Result, error) {
	info, err := f.FetchInfo(ctx, bvid)
	if err != nil {
		return nil, err
	}

	log := f.log.WithFields(map[string]interface{}{
		"bvid":  bvid,
		"title": info.Title,
	})

	folder := filepath.Join(dir, storage.VideoFolderName(info.Title, bvid))
	if f.opts.SkipExisting && storage.Exists(folder) {
		log.Info("video folder already exists, skipping")
		return &Result{Bvid: bvid, Title: info.Title, Status: StatusSkipped}, nil
	}

	if err := os.MkdirAll(folder, 0755); err != nil {
		return nil, fmt.Errorf("create video folder: %w", err)
	}

	if err := f.saveMetadata(info, folder); err != nil {
		log.WithError(err).Warn("failed to save metadata")
	}

	if f.opts.Quality != "" {
		log.WithField("quality", f.opts.Quality).Debug("quality preference noted")
	}

	result := &Result{Bvid: bvid, Title: info.Title, Status: StatusDone}
	for i, page := range info.Pages {
		index := i + 1
		if err := f.downloadPage(ctx, info, page, index, folder); err != nil {
			log.WithError(err).WithField("page", index).Error("sub-part download failed")
			result.PagesFailed++
			result.Status = StatusPartialFailure
			continue
		}
		result.PagesDone++
	}

	if result.Status == StatusDone {
		log.WithField("pages", result.PagesDone).Info("video download complete")
	} else {
		log.WithFields(map[string]interface{}{
			"done":   result.PagesDone,
			"failed": result.PagesFailed,
		}).Warn("video download partially failed")
	}
	return result, nil
}

func (f *Fetcher) saveMetadata(info *bili.VideoInfo, folder string) error {
	return storage.WriteJSON(filepath.Join(folder, "metadata.json"), map[string]interface{}{
		"video_info": info,
		"pages_info": info.Pages,
		"crawl_time": time.Now().Format(time.RFC3339),
	})
}

func (f *Fetcher) downloadPage(ctx context.Context, info *bili.VideoInfo, page bili.VideoPage, index int, folder string) error {
	target := filepath.Join(folder, storage.PageFileName(index, page.Part))
	if storage.Exists(target) {
		f.log.WithField("file", filepath.Base(target)).Info("sub-part already downloaded")
		// The media is done; the danmaku may still be missing.
		if f.opts.FetchDanmaku {
			danmakuPath := filepath.Join(folder, storage.DanmakuFileName(index, page.Part))
			if !storage.Exists(danmakuPath) {
				f.fetchDanmaku(ctx, page.Cid, danmakuPath)
			}
		}
		return nil
	}

	play, err := f.client.GetPlayInfo(ctx, info.Bvid, page.Cid)
	if err != nil {
		return fmt.Errorf("%w: P%02d: %v", ErrNoStream, index, err)
	}
	f.log.WithFields(map[string]interface{}{
		"page":    index,
		"quality": QualityName(play.Quality),
	}).Debug("stream selected")

	switch {
	case play.Dash != nil && len(play.Dash.Video) > 0:
		err = f.downloadDash(ctx, play, index, folder, target)
	case len(play.Durl) > 0:
		err = f.downloadDurl(ctx, play, index, folder, target)
	default:
		return fmt.Errorf("%w: P%02d", ErrNoStream, index)
	}
	if err != nil {
		return err
	}

	if f.opts.FetchDanmaku {
		f.fetchDanmaku(ctx, page.Cid, filepath.Join(folder, storage.DanmakuFileName(index, page.Part)))
	}
	return nil
}

// downloadDash fetches the separate video and audio streams, then muxes
// them. Temp files are removed on every path.
func (f *Fetcher) downloadDash(ctx context.Context, play *bili.PlayInfo, index int, folder, target string) error {
	videoStream := bestStream(play.Dash.Video)
	videoTemp := filepath.Join(folder, fmt.Sprintf("temp_video_P%02d.m4s", index))
	defer os.Remove(videoTemp)

	if err := f.client.DownloadTo(ctx, videoStream.BaseURL, videoTemp); err != nil {
		return fmt.Errorf("download video stream P%02d: %w", index, err)
	}

	inputs := []string{videoTemp}
	if len(play.Dash.Audio) > 0 {
		audioStream := bestStream(play.Dash.Audio)
		audioTemp := filepath.Join(folder, fmt.Sprintf("temp_audio_P%02d.m4s", index))
		defer os.Remove(audioTemp)

		if err := f.client.DownloadTo(ctx, audioStream.BaseURL, audioTemp); err != nil {
			return fmt.Errorf("download audio stream P%02d: %w", index, err)
		}
		inputs = append(inputs, audioTemp)
	}

	if err := f.muxer.Mux(ctx, target, inputs...); err != nil {
		os.Remove(target)
		return fmt.Errorf("%w: P%02d: %v", ErrMuxFailed, index, err)
	}
	return nil
}

// downloadDurl fetches a single FLV/MP4 stream and remuxes it.
func (f *Fetcher) downloadDurl(ctx context.Context, play *bili.PlayInfo, index int, folder, target string) error {
	temp := filepath.Join(folder, fmt.Sprintf("temp_P%02d.flv", index))
	defer os.Remove(temp)

	if err := f.client.DownloadTo(ctx, play.Durl[0].URL, temp); err != nil {
		return fmt.Errorf("download stream P%02d: %w", index, err)
	}

	if err := f.muxer.Mux(ctx, target, temp); err != nil {
		os.Remove(target)
		return fmt.Errorf("%w: P%02d: %v", ErrMuxFailed, index, err)
	}
	return nil
}

// fetchDanmaku saves the sub-part's danmaku as JSONL. Best effort: a
// failure is logged and never fails the download. No events, no file.
func (f *Fetcher) fetchDanmaku(ctx context.Context, cid int64, path string) {
	list, err := f.client.GetDanmaku(ctx, cid)
	if err != nil {
		var apiErr *errors.Error
		if stderrors.As(err, &apiErr) && apiErr.Code == codeDanmakuClosed {
			f.log.WithField("cid", cid).Warn("danmaku closed for this video")
			return
		}
		f.log.WithError(err).WithField("cid", cid).Warn("danmaku fetch failed")
		return
	}

	total := len(list.Regular) + len(list.Special)
	if total == 0 {
		return
	}

	lines := make([]interface{}, 0, total)
	for _, dm := range list.Regular {
		lines = append(lines, taggedDanmaku{Danmaku: dm, Type: "regular"})
	}
	for _, dm := range list.Special {
		lines = append(lines, taggedDanmaku{Danmaku: dm, Type: "special"})
	}

	if err := storage.WriteJSONLines(path, lines); err != nil {
		f.log.WithError(err).Warn("danmaku save failed")
		return
	}
	f.log.WithFields(map[string]interface{}{
		"file":  filepath.Base(path),
		"count": total,
	}).Info("danmaku saved")
}

type taggedDanmaku struct {
	bili.Danmaku
	Type string `json:"type"`
}

// bestStream picks the highest-quality representation.
func bestStream(streams []bili.DashStream) bili.DashStream {
	best := streams[0]
	for _, s := range streams[1:] {
		if s.ID > best.ID || (s.ID == best.ID && s.Bandwidth > best.Bandwidth) {
			best = s
		}
	}
	return best
}

// QualityName renders a quality code as its familiar label.
func QualityName(code int) string {
	names := map[int]string{
		16:  "360P",
		32:  "480P",
		64:  "720P",
		80:  "1080P",
		112: "1080P+",
		116: "1080P60",
		120: "4K",
		125: "HDR",
		126: "Dolby Vision",
		127: "8K",
	}
	if name, ok := names[code]; ok {
		return name
	}
	return fmt.Sprintf("quality %d", code)
}
