package dynamic

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"bilicrawl/pkg/bili"
	"bilicrawl/pkg/config"
	"bilicrawl/pkg/logger"
	"bilicrawl/pkg/pager"
	"bilicrawl/pkg/storage"
)

const subCommentPageSize = 20

// CommentsData is the comment tree of one moment, shaped for the
// artifact file.
type CommentsData struct {
	RootComments []bili.Comment            `json:"root_comments"`
	SubComments  map[string][]bili.Comment `json:"sub_comments"`
	TotalCount   int                       `json:"total_count"`
}

func emptyComments() *CommentsData {
	return &CommentsData{
		RootComments: []bili.Comment{},
		SubComments:  map[string][]bili.Comment{},
	}
}

// Options tunes the fetcher.
type Options struct {
	// MaxComments caps the root comments fetched per moment. -1 means
	// unlimited. Comments already fetched when the cap trips are kept.
	MaxComments int
	// SubCommentMode picks between the inline replies the root listing
	// carries (fast) and exhaustive per-root pagination.
	SubCommentMode string
	// CursorDelay paces the root comment pages.
	CursorDelay time.Duration
	// SubPageDelay paces the per-root reply pages.
	SubPageDelay time.Duration
}

// Status is the terminal state of one processed moment.
type Status int

const (
	StatusSaved Status = iota
	StatusSkipped
)

// Result summarizes one processed moment.
type Result struct {
	ID           string
	Status       Status
	CommentCount int
}

// Fetcher crawls moments and their comment sections.
type Fetcher struct {
	client *bili.Client
	opts   Options
	log    logger.Logger
}

// NewFetcher builds a fetcher over the API client.
func NewFetcher(client *bili.Client, opts Options) *Fetcher {
	if opts.MaxComments == 0 {
		opts.MaxComments = -1
	}
	if opts.SubCommentMode == "" {
		opts.SubCommentMode = config.SubCommentsInline
	}
	return &Fetcher{client: client, opts: opts, log: logger.GetLogger()}
}

// Feed returns a cursor over a user's moments, page by page, so the
// caller can dispatch each page's moments before the next page loads.
func (f *Fetcher) Feed(uid int64, delay time.Duration) *pager.Cursor[bili.DynamicItem] {
	return &pager.Cursor[bili.DynamicItem]{
		Delay:  delay,
		Logger: f.log,
		Fetch: func(ctx context.Context, offset string) ([]bili.DynamicItem, string, error) {
			feed, err := f.client.GetDynamics(ctx, uid, offset)
			if err != nil {
				return nil, "", err
			}
			next := feed.Offset
			if !feed.HasMore {
				next = ""
			}
			return feed.Items, next, nil
		},
	}
}

// Process handles one moment: skip when its artifact already exists,
// otherwise fetch the comment tree (when asked) and write the artifact
// in one atomic shot.
func (f *Fetcher) Process(ctx context.Context, item bili.DynamicItem, saveDir string, includeComments bool) (*Result, error) {
	path := filepath.Join(saveDir, storage.DynamicFileName(item.IDStr))
	if storage.Exists(path) {
		f.log.WithField("dynamic_id", item.IDStr).Info("moment artifact exists, skipping")
		return &Result{ID: item.IDStr, Status: StatusSkipped}, nil
	}

	comments := emptyComments()
	if includeComments {
		fetched, err := f.FetchComments(ctx, item)
		if err != nil {
			return nil, fmt.Errorf("fetch comments for %s: %w", item.IDStr, err)
		}
		comments = fetched
	}

	artifact := map[string]interface{}{
		"dynamic_info": item,
		"comments":     comments,
		"metadata": map[string]interface{}{
			"crawl_time":     time.Now().Format(time.RFC3339),
			"total_comments": comments.TotalCount,
			"dynamic_type":   item.Type,
			"dynamic_id":     item.IDStr,
		},
	}
	if err := storage.WriteJSON(path, artifact); err != nil {
		return nil, err
	}

	f.log.WithFields(map[string]interface{}{
		"dynamic_id": item.IDStr,
		"comments":   comments.TotalCount,
	}).Info("moment saved")
	return &Result{ID: item.IDStr, Status: StatusSaved, CommentCount: comments.TotalCount}, nil
}

// FetchComments walks the moment's comment section: root comments by
// opaque cursor, nested replies per configured mode. A failed page ends
// the walk with what was collected so far.
func (f *Fetcher) FetchComments(ctx context.Context, item bili.DynamicItem) (*CommentsData, error) {
	oid, err := strconv.ParseInt(item.Basic.CommentIDStr, 10, 64)
	if err != nil || oid == 0 {
		f.log.WithField("dynamic_id", item.IDStr).Debug("moment has no comment section")
		return emptyComments(), nil
	}

	commentType := item.Basic.CommentType
	if commentType == 0 {
		commentType = bili.CommentTypeForDynamic(item.Type)
	}

	data := emptyComments()
	log := f.log.WithField("dynamic_id", item.IDStr)

	offset := ""
	for {
		if err := ctx.Err(); err != nil {
			return data, err
		}

		page, err := f.client.GetRootComments(ctx, oid, commentType, offset)
		if err != nil {
			log.WithError(err).Warn("comment page fetch failed, keeping partial results")
			return data, nil
		}
		if len(page.Replies) == 0 {
			break
		}

		capped := false
		for _, root := range page.Replies {
			if f.opts.MaxComments != -1 && data.TotalCount >= f.opts.MaxComments {
				log.WithField("limit", f.opts.MaxComments).Warn("comment ceiling reached")
				capped = true
				break
			}
			data.TotalCount++
			data.RootComments = append(data.RootComments, root)

			if root.Rcount > 0 {
				subs := f.subComments(ctx, oid, commentType, root)
				if len(subs) > 0 {
					data.SubComments[strconv.FormatInt(root.Rpid, 10)] = subs
				}
			}
		}
		if capped {
			break
		}

		if page.Cursor.IsEnd || page.Cursor.Next == 0 {
			break
		}
		offset = strconv.FormatInt(page.Cursor.Next, 10)

		if err := sleep(ctx, f.opts.CursorDelay); err != nil {
			return data, err
		}
	}

	return data, nil
}

// subComments returns the nested replies of one root comment, via the
// configured mode. Best effort: failures fall back to whatever the root
// listing already carried.
func (f *Fetcher) subComments(ctx context.Context, oid int64, commentType int, root bili.Comment) []bili.Comment {
	if f.opts.SubCommentMode == config.SubCommentsInline {
		return root.Replies
	}

	pages := &pager.Pages[bili.Comment]{
		PageSize: subCommentPageSize,
		Delay:    f.opts.SubPageDelay,
		Logger:   f.log,
		Fetch: func(ctx context.Context, page int) ([]bili.Comment, error) {
			resp, err := f.client.GetSubComments(ctx, oid, commentType, root.Rpid, page, subCommentPageSize)
			if err != nil {
				return nil, err
			}
			return resp.Replies, nil
		},
	}

	subs, err := pages.All(ctx)
	if err != nil {
		f.log.WithError(err).WithField("root", root.Rpid).Warn("sub-comment walk aborted")
		return root.Replies
	}
	return subs
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
