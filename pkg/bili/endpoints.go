package bili

import (
	"fmt"
	"net/url"
	"strconv"
)

// Default API hosts. Overridable on the client for testing.
const (
	DefaultBaseURL     = "https://api.bilibili.com"
	DefaultPassportURL = "https://passport.bilibili.com"
)

func (c *Client) userInfoURL(uid int64) string {
	return fmt.Sprintf("%s/x/space/wbi/acc/info?mid=%d", c.baseURL, uid)
}

func (c *Client) userVideosURL(uid int64, page, pageSize int) string {
	return fmt.Sprintf("%s/x/space/wbi/arc/search?mid=%d&pn=%d&ps=%d", c.baseURL, uid, page, pageSize)
}

func (c *Client) collectionsURL(uid int64, page, pageSize int) string {
	return fmt.Sprintf("%s/x/polymer/web-space/seasons_series_list?mid=%d&page_num=%d&page_size=%d",
		c.baseURL, uid, page, pageSize)
}

func (c *Client) seasonArchivesURL(uid, seasonID int64, page, pageSize int) string {
	return fmt.Sprintf("%s/x/polymer/web-space/seasons_archives_list?mid=%d&season_id=%d&page_num=%d&page_size=%d",
		c.baseURL, uid, seasonID, page, pageSize)
}

func (c *Client) seriesArchivesURL(uid, seriesID int64, page, pageSize int) string {
	return fmt.Sprintf("%s/x/series/archives?mid=%d&series_id=%d&pn=%d&ps=%d",
		c.baseURL, uid, seriesID, page, pageSize)
}

func (c *Client) videoInfoURL(bvid string) string {
	return fmt.Sprintf("%s/x/web-interface/view?bvid=%s", c.baseURL, url.QueryEscape(bvid))
}

func (c *Client) playURL(bvid string, cid int64) string {
	return fmt.Sprintf("%s/x/player/playurl?bvid=%s&cid=%d&fnval=16", c.baseURL, url.QueryEscape(bvid), cid)
}

func (c *Client) danmakuURL(cid int64) string {
	return fmt.Sprintf("%s/x/v2/dm/list?oid=%d", c.baseURL, cid)
}

func (c *Client) dynamicsURL(uid int64, offset string) string {
	u := fmt.Sprintf("%s/x/polymer/web-dynamic/v1/feed/space?host_mid=%d", c.baseURL, uid)
	if offset != "" {
		u += "&offset=" + url.QueryEscape(offset)
	}
	return u
}

func (c *Client) dynamicDetailURL(id string) string {
	return fmt.Sprintf("%s/x/polymer/web-dynamic/v1/detail?id=%s", c.baseURL, url.QueryEscape(id))
}

func (c *Client) rootCommentsURL(oid int64, commentType int, offset string) string {
	u := fmt.Sprintf("%s/x/v2/reply/main?oid=%d&type=%d", c.baseURL, oid, commentType)
	if offset != "" {
		u += "&offset=" + url.QueryEscape(offset)
	}
	return u
}

func (c *Client) subCommentsURL(oid int64, commentType int, root int64, page, pageSize int) string {
	return fmt.Sprintf("%s/x/v2/reply/reply?oid=%d&type=%d&root=%d&pn=%d&ps=%d",
		c.baseURL, oid, commentType, root, page, pageSize)
}

func (c *Client) cookieRefreshURL() string {
	return c.passportURL + "/x/passport-login/web/cookie/refresh"
}

func (c *Client) cookieRefreshForm(csrf, refreshToken string) url.Values {
	return url.Values{
		"csrf":          {csrf},
		"refresh_token": {refreshToken},
		"source":        {"main_web"},
		"timestamp":     {strconv.FormatInt(nowMillis(), 10)},
	}
}
