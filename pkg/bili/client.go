package bili

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"bilicrawl/pkg/credential"
	"bilicrawl/pkg/errors"
	"bilicrawl/pkg/logger"
	"bilicrawl/pkg/retry"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Client talks to the Bilibili REST API. Every call is retry-wrapped:
// rate limits back off with exact doubling and an expired credential is
// refreshed once per call through the credential manager.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	passportURL string
	userAgent   string
	creds       *credential.Manager
	retryCfg    retry.Config
	log         logger.Logger
}

// Options tunes a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL     string
	PassportURL string
	UserAgent   string
	HTTPClient  *http.Client
	Retry       retry.Config
	Logger      logger.Logger
}

// NewClient builds a client over the given credential manager. A manager
// holding no credential makes all calls anonymous.
func NewClient(creds *credential.Manager, opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.PassportURL == "" {
		opts.PassportURL = DefaultPassportURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}
	if creds == nil {
		creds = credential.NewManager(nil, nil)
	}

	return &Client{
		httpClient:  opts.HTTPClient,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		passportURL: strings.TrimRight(opts.PassportURL, "/"),
		userAgent:   opts.UserAgent,
		creds:       creds,
		retryCfg:    opts.Retry,
		log:         opts.Logger,
	}
}

// Credentials exposes the credential manager backing this client.
func (c *Client) Credentials() *credential.Manager {
	return c.creds
}

func (c *Client) retryConfig() retry.Config {
	cfg := c.retryCfg
	cfg.Logger = c.log
	cfg.Refresh = func(ctx context.Context) error {
		return c.creds.Refresh(ctx)
	}
	return cfg
}

// getJSON performs one GET and unwraps the response envelope. A non-zero
// envelope code comes back as a typed error.
func (c *Client) getJSON(ctx context.Context, rawurl string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return nil, errors.New(errors.ErrorTypeNetwork, 0, err.Error())
	}
	c.decorate(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.New(errors.ErrorTypeNetwork, 0, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.FromStatusCode(resp.StatusCode, resp.Status)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, errors.New(errors.ErrorTypeParsing, 0, fmt.Sprintf("decode response: %v", err))
	}
	if env.Code != 0 {
		return nil, errors.FromCode(env.Code, env.Message)
	}

	return env.Data, nil
}

func (c *Client) decorate(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Referer", "https://www.bilibili.com/")
	if cookie := c.creds.CookieHeader(); cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
}

// call fetches rawurl under the retry policy and decodes the envelope
// data into T.
func call[T any](ctx context.Context, c *Client, rawurl string) (*T, error) {
	return retry.DoWithResult(ctx, c.retryConfig(), func(ctx context.Context) (*T, error) {
		data, err := c.getJSON(ctx, rawurl)
		if err != nil {
			return nil, err
		}
		out := new(T)
		if err := json.Unmarshal(data, out); err != nil {
			return nil, errors.New(errors.ErrorTypeParsing, 0, fmt.Sprintf("decode data: %v", err))
		}
		return out, nil
	})
}

// GetUserInfo fetches a user's profile.
func (c *Client) GetUserInfo(ctx context.Context, uid int64) (*UserInfo, error) {
	return call[UserInfo](ctx, c, c.userInfoURL(uid))
}

// GetUserVideos fetches one page of a user's uploads.
func (c *Client) GetUserVideos(ctx context.Context, uid int64, page, pageSize int) (*VideoList, error) {
	return call[VideoList](ctx, c, c.userVideosURL(uid, page, pageSize))
}

// GetUserCollections fetches one page of a user's seasons and series.
func (c *Client) GetUserCollections(ctx context.Context, uid int64, page, pageSize int) (*CollectionList, error) {
	return call[CollectionList](ctx, c, c.collectionsURL(uid, page, pageSize))
}

// GetSeasonArchives fetches one page of a season's members.
func (c *Client) GetSeasonArchives(ctx context.Context, uid, seasonID int64, page, pageSize int) (*SeasonPage, error) {
	return call[SeasonPage](ctx, c, c.seasonArchivesURL(uid, seasonID, page, pageSize))
}

// GetSeriesArchives fetches one page of a series' members.
func (c *Client) GetSeriesArchives(ctx context.Context, uid, seriesID int64, page, pageSize int) (*SeriesPage, error) {
	return call[SeriesPage](ctx, c, c.seriesArchivesURL(uid, seriesID, page, pageSize))
}

// GetVideoInfo fetches a video's detail view, sub-parts included.
func (c *Client) GetVideoInfo(ctx context.Context, bvid string) (*VideoInfo, error) {
	return call[VideoInfo](ctx, c, c.videoInfoURL(bvid))
}

// GetPlayInfo fetches the stream descriptor for one sub-part.
func (c *Client) GetPlayInfo(ctx context.Context, bvid string, cid int64) (*PlayInfo, error) {
	return call[PlayInfo](ctx, c, c.playURL(bvid, cid))
}

// GetDanmaku fetches the danmaku of one sub-part.
func (c *Client) GetDanmaku(ctx context.Context, cid int64) (*DanmakuList, error) {
	return call[DanmakuList](ctx, c, c.danmakuURL(cid))
}

// GetDynamics fetches one page of a user's moment feed. An empty offset
// requests the first page.
func (c *Client) GetDynamics(ctx context.Context, uid int64, offset string) (*DynamicFeed, error) {
	return call[DynamicFeed](ctx, c, c.dynamicsURL(uid, offset))
}

// GetDynamicDetail fetches a single moment by ID.
func (c *Client) GetDynamicDetail(ctx context.Context, id string) (*DynamicDetail, error) {
	return call[DynamicDetail](ctx, c, c.dynamicDetailURL(id))
}

// GetRootComments fetches one page of a comment section's root replies.
func (c *Client) GetRootComments(ctx context.Context, oid int64, commentType int, offset string) (*CommentPage, error) {
	return call[CommentPage](ctx, c, c.rootCommentsURL(oid, commentType, offset))
}

// GetSubComments fetches one page of replies under a root comment.
func (c *Client) GetSubComments(ctx context.Context, oid int64, commentType int, root int64, page, pageSize int) (*CommentPage, error) {
	return call[CommentPage](ctx, c, c.subCommentsURL(oid, commentType, root, page, pageSize))
}

// DownloadTo streams rawurl into the file at dest. Media CDN hosts
// require the same Referer as the API.
func (c *Client) DownloadTo(ctx context.Context, rawurl, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return errors.New(errors.ErrorTypeNetwork, 0, err.Error())
	}
	c.decorate(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.New(errors.ErrorTypeNetwork, 0, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.FromStatusCode(resp.StatusCode, resp.Status)
	}

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		os.Remove(dest)
		return errors.New(errors.ErrorTypeNetwork, 0, fmt.Sprintf("download %s: %v", rawurl, err))
	}
	return nil
}

// RefreshCredential exchanges the current cookie bundle for a fresh one
// via the passport refresh endpoint. Plugged into the credential manager
// as its RefreshFunc.
func (c *Client) RefreshCredential(ctx context.Context, current credential.Credential) (credential.Credential, error) {
	form := c.cookieRefreshForm(current.BiliJct, current.AcTimeValue)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cookieRefreshURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return credential.Credential{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Referer", "https://www.bilibili.com/")
	req.Header.Set("Cookie", current.CookieHeader())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return credential.Credential{}, errors.New(errors.ErrorTypeNetwork, 0, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return credential.Credential{}, errors.FromStatusCode(resp.StatusCode, resp.Status)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return credential.Credential{}, errors.New(errors.ErrorTypeParsing, 0, fmt.Sprintf("decode refresh response: %v", err))
	}
	if env.Code != 0 {
		return credential.Credential{}, errors.FromCode(env.Code, env.Message)
	}

	var data refreshData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return credential.Credential{}, errors.New(errors.ErrorTypeParsing, 0, fmt.Sprintf("decode refresh data: %v", err))
	}

	fresh := current
	fresh.AcTimeValue = data.RefreshToken
	for _, ck := range resp.Cookies() {
		switch ck.Name {
		case "SESSDATA":
			fresh.SESSDATA = ck.Value
		case "bili_jct":
			fresh.BiliJct = ck.Value
		case "DedeUserID":
			fresh.DedeUserID = ck.Value
		case "buvid3":
			fresh.Buvid3 = ck.Value
		}
	}

	c.log.Info("credential refreshed")
	return fresh, nil
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
