package bili

import "encoding/json"

// envelope is the standard Bilibili API response wrapper.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	TTL     int             `json:"ttl"`
	Data    json.RawMessage `json:"data"`
}

// UserInfo is the profile behind /x/space/wbi/acc/info.
type UserInfo struct {
	Mid  int64  `json:"mid"`
	Name string `json:"name"`
	Sign string `json:"sign"`
	Face string `json:"face"`
}

// UserVideo is one upload in a user's video listing.
type UserVideo struct {
	Bvid        string `json:"bvid"`
	Aid         int64  `json:"aid"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Created     int64  `json:"created"`
	Length      string `json:"length"`
	Play        int64  `json:"play"`
}

// VideoList is one page of /x/space/wbi/arc/search.
type VideoList struct {
	List struct {
		Vlist []UserVideo `json:"vlist"`
	} `json:"list"`
	Page struct {
		Count int `json:"count"`
		Pn    int `json:"pn"`
		Ps    int `json:"ps"`
	} `json:"page"`
}

// CollectionMeta describes one season or series in a user's space.
type CollectionMeta struct {
	SeasonID    int64  `json:"season_id,omitempty"`
	SeriesID    int64  `json:"series_id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Cover       string `json:"cover"`
	Total       int    `json:"total"`
	Ctime       int64  `json:"ctime"`
	Mid         int64  `json:"mid"`
}

// CollectionList is one page of /x/polymer/web-space/seasons_series_list.
type CollectionList struct {
	ItemsLists struct {
		SeasonsList []struct {
			Meta CollectionMeta `json:"meta"`
		} `json:"seasons_list"`
		SeriesList []struct {
			Meta CollectionMeta `json:"meta"`
		} `json:"series_list"`
		Page struct {
			Total int `json:"total"`
		} `json:"page"`
	} `json:"items_lists"`
}

// CollectionVideo is one member of a season or series.
type CollectionVideo struct {
	Title    string `json:"title"`
	Bvid     string `json:"bvid"`
	Aid      int64  `json:"aid"`
	Duration int    `json:"duration"`
	Pubdate  int64  `json:"pubdate"`
	Stat     struct {
		View int64 `json:"view"`
	} `json:"stat"`
}

// SeasonPage is one page of /x/polymer/web-space/seasons_archives_list.
// Episodes stays nil when the response carries no such key, which is how
// the season scheme is told apart from the series one.
type SeasonPage struct {
	Episodes *[]CollectionVideo `json:"episodes"`
	Meta     *CollectionMeta    `json:"meta"`
	Page     struct {
		Total int `json:"total"`
	} `json:"page"`
}

// SeriesPage is one page of /x/series/archives. Archives nil means the
// response did not speak the series scheme.
type SeriesPage struct {
	Archives *[]CollectionVideo `json:"archives"`
	Page     struct {
		Total int `json:"total"`
	} `json:"page"`
}

// VideoPage is one sub-part (P) of a video.
type VideoPage struct {
	Cid      int64  `json:"cid"`
	Page     int    `json:"page"`
	Part     string `json:"part"`
	Duration int    `json:"duration"`
}

// VideoInfo is the detail view behind /x/web-interface/view.
type VideoInfo struct {
	Bvid     string `json:"bvid"`
	Aid      int64  `json:"aid"`
	Title    string `json:"title"`
	Desc     string `json:"desc"`
	Duration int    `json:"duration"`
	Pubdate  int64  `json:"pubdate"`
	Owner    struct {
		Mid  int64  `json:"mid"`
		Name string `json:"name"`
	} `json:"owner"`
	Stat struct {
		View    int64 `json:"view"`
		Danmaku int64 `json:"danmaku"`
		Like    int64 `json:"like"`
	} `json:"stat"`
	Pages []VideoPage `json:"pages"`
}

// DashStream is one DASH representation in a playurl response.
type DashStream struct {
	ID        int    `json:"id"`
	BaseURL   string `json:"base_url"`
	Codecs    string `json:"codecs"`
	Bandwidth int64  `json:"bandwidth"`
}

// Durl is one segment of a legacy FLV/MP4 stream.
type Durl struct {
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

// PlayInfo is the stream descriptor behind /x/player/playurl. Either Dash
// or Durl is populated, never both.
type PlayInfo struct {
	Quality           int      `json:"quality"`
	AcceptDescription []string `json:"accept_description"`
	AcceptQuality     []int    `json:"accept_quality"`
	Durl              []Durl   `json:"durl"`
	Dash              *struct {
		Video []DashStream `json:"video"`
		Audio []DashStream `json:"audio"`
	} `json:"dash"`
}

// Danmaku is a single danmaku event.
type Danmaku struct {
	Content  string  `json:"content"`
	Progress float64 `json:"progress"`
	Mode     int     `json:"mode"`
	Color    int     `json:"color"`
	Ctime    int64   `json:"ctime"`
}

// DanmakuList carries the regular and special danmaku of one sub-part.
type DanmakuList struct {
	Regular []Danmaku `json:"regular"`
	Special []Danmaku `json:"special"`
}

// DynamicItem is one moment in a user's feed.
type DynamicItem struct {
	IDStr string `json:"id_str"`
	Type  string `json:"type"`
	Basic struct {
		CommentIDStr string `json:"comment_id_str"`
		CommentType  int    `json:"comment_type"`
	} `json:"basic"`
	Modules json.RawMessage `json:"modules"`
}

// DynamicDetail wraps a single moment fetched by ID.
type DynamicDetail struct {
	Item DynamicItem `json:"item"`
}

// DynamicFeed is one page of /x/polymer/web-dynamic/v1/feed/space.
type DynamicFeed struct {
	HasMore bool          `json:"has_more"`
	Items   []DynamicItem `json:"items"`
	Offset  string        `json:"offset"`
}

// Comment is one reply in a comment section.
type Comment struct {
	Rpid   int64 `json:"rpid"`
	Oid    int64 `json:"oid"`
	Mid    int64 `json:"mid"`
	Root   int64 `json:"root"`
	Rcount int   `json:"rcount"`
	Ctime  int64 `json:"ctime"`
	Like   int64 `json:"like"`
	Member struct {
		Uname string `json:"uname"`
	} `json:"member"`
	Content struct {
		Message string `json:"message"`
	} `json:"content"`
	// Replies carries the handful of nested replies the root listing
	// inlines. The full set needs the reply endpoint.
	Replies []Comment `json:"replies,omitempty"`
}

// CommentPage is one page of replies, root or nested.
type CommentPage struct {
	Replies []Comment `json:"replies"`
	Cursor  struct {
		Next  int64 `json:"next"`
		IsEnd bool  `json:"is_end"`
	} `json:"cursor"`
}

// Comment resource types, keyed off the dynamic type tag.
const (
	CommentTypeVideo   = 1
	CommentTypeDraw    = 11
	CommentTypeArticle = 12
	CommentTypeDynamic = 17
)

// CommentTypeForDynamic maps a dynamic type tag to its comment resource
// type. Unknown tags fall back to the plain dynamic section.
func CommentTypeForDynamic(dynamicType string) int {
	switch dynamicType {
	case "DYNAMIC_TYPE_AV":
		return CommentTypeVideo
	case "DYNAMIC_TYPE_DRAW":
		return CommentTypeDraw
	case "DYNAMIC_TYPE_ARTICLE":
		return CommentTypeArticle
	case "DYNAMIC_TYPE_WORD":
		return CommentTypeDynamic
	default:
		return CommentTypeDynamic
	}
}

// refreshData is the payload of /x/passport-login/web/cookie/refresh.
type refreshData struct {
	RefreshToken string `json:"refresh_token"`
}
