package collection

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"bilicrawl/pkg/bili"
	"bilicrawl/pkg/config"
	"bilicrawl/pkg/logger"
	"bilicrawl/pkg/pager"
)

// Type is the collection scheme a given ID speaks.
type Type string

const (
	TypeSeason Type = "season"
	TypeSeries Type = "series"
	// TypeAuto asks the resolver to probe for the scheme.
	TypeAuto Type = "auto"
)

// ErrDetectFailed is returned when neither scheme answers and the
// detect policy is set to fail.
var ErrDetectFailed = stderrors.New("could not detect collection type")

const memberPageSize = 100

// Info describes one collection owned by a user.
type Info struct {
	ID          int64  `json:"id"`
	Type        Type   `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Total       int    `json:"total"`
	Ctime       int64  `json:"ctime"`
}

// Item is a collection member, normalized across both schemes.
type Item struct {
	Title    string `json:"title"`
	Bvid     string `json:"bvid"`
	Aid      int64  `json:"aid"`
	Duration int    `json:"duration"`
	View     int64  `json:"view"`
	Pubdate  int64  `json:"pubdate"`
}

// Resolver figures out what scheme a collection ID speaks and lists its
// members through one normalized shape.
type Resolver struct {
	client    *bili.Client
	policy    string
	pageDelay time.Duration
	log       logger.Logger
}

// NewResolver builds a resolver. policy is one of config.DetectFail or
// config.DetectAssumeSeries.
func NewResolver(client *bili.Client, policy string, pageDelay time.Duration) *Resolver {
	if policy == "" {
		policy = config.DetectFail
	}
	return &Resolver{
		client:    client,
		policy:    policy,
		pageDelay: pageDelay,
		log:       logger.GetLogger(),
	}
}

// Detect probes the collection's scheme: season first, then series. Each
// probe requests a single member and checks for the scheme's marker
// field. When both probes fail, the configured policy decides between an
// explicit error and assuming series.
func (r *Resolver) Detect(ctx context.Context, uid, id int64) (Type, error) {
	log := r.log.WithField("collection_id", id)

	log.Debug("probing collection as season")
	season, err := r.client.GetSeasonArchives(ctx, uid, id, 1, 1)
	if err == nil && season.Episodes != nil {
		log.Info("collection detected as season")
		return TypeSeason, nil
	}
	if err != nil {
		log.WithError(err).Debug("season probe failed")
	}

	log.Debug("probing collection as series")
	series, err := r.client.GetSeriesArchives(ctx, uid, id, 1, 1)
	if err == nil && series.Archives != nil {
		log.Info("collection detected as series")
		return TypeSeries, nil
	}
	if err != nil {
		log.WithError(err).Debug("series probe failed")
	}

	if r.policy == config.DetectAssumeSeries {
		log.Warn("could not detect collection type, assuming series")
		return TypeSeries, nil
	}
	return "", fmt.Errorf("%w: id %d: specify the type explicitly", ErrDetectFailed, id)
}

// Videos lists every member of the collection. TypeAuto triggers
// detection first. The resolved type is returned alongside the members.
func (r *Resolver) Videos(ctx context.Context, uid, id int64, typ Type) ([]Item, Type, error) {
	if typ == TypeAuto || typ == "" {
		detected, err := r.Detect(ctx, uid, id)
		if err != nil {
			return nil, "", err
		}
		typ = detected
	}

	var fetch func(ctx context.Context, page int) ([]Item, error)
	switch typ {
	case TypeSeason:
		fetch = func(ctx context.Context, page int) ([]Item, error) {
			p, err := r.client.GetSeasonArchives(ctx, uid, id, page, memberPageSize)
			if err != nil {
				return nil, err
			}
			if p.Episodes == nil {
				return nil, nil
			}
			return normalize(*p.Episodes), nil
		}
	case TypeSeries:
		fetch = func(ctx context.Context, page int) ([]Item, error) {
			p, err := r.client.GetSeriesArchives(ctx, uid, id, page, memberPageSize)
			if err != nil {
				return nil, err
			}
			if p.Archives == nil {
				return nil, nil
			}
			return normalize(*p.Archives), nil
		}
	default:
		return nil, "", fmt.Errorf("unknown collection type %q", typ)
	}

	pages := &pager.Pages[Item]{
		PageSize: memberPageSize,
		Delay:    r.pageDelay,
		Logger:   r.log,
		Fetch:    fetch,
	}
	items, err := pages.All(ctx)
	if err != nil {
		return nil, "", err
	}
	return items, typ, nil
}

// ListUserCollections lists the seasons and series a user keeps in their
// space.
func (r *Resolver) ListUserCollections(ctx context.Context, uid int64) ([]Info, error) {
	const pageSize = 20

	pages := &pager.Pages[Info]{
		PageSize: pageSize,
		Delay:    r.pageDelay,
		Logger:   r.log,
		Fetch: func(ctx context.Context, page int) ([]Info, error) {
			list, err := r.client.GetUserCollections(ctx, uid, page, pageSize)
			if err != nil {
				return nil, err
			}

			var infos []Info
			for _, s := range list.ItemsLists.SeasonsList {
				infos = append(infos, Info{
					ID:          s.Meta.SeasonID,
					Type:        TypeSeason,
					Name:        s.Meta.Name,
					Description: s.Meta.Description,
					Total:       s.Meta.Total,
					Ctime:       s.Meta.Ctime,
				})
			}
			for _, s := range list.ItemsLists.SeriesList {
				infos = append(infos, Info{
					ID:          s.Meta.SeriesID,
					Type:        TypeSeries,
					Name:        s.Meta.Name,
					Description: s.Meta.Description,
					Total:       s.Meta.Total,
					Ctime:       s.Meta.Ctime,
				})
			}
			return infos, nil
		},
	}
	return pages.All(ctx)
}

func normalize(videos []bili.CollectionVideo) []Item {
	items := make([]Item, 0, len(videos))
	for _, v := range videos {
		items = append(items, Item{
			Title:    v.Title,
			Bvid:     v.Bvid,
			Aid:      v.Aid,
			Duration: v.Duration,
			View:     v.Stat.View,
			Pubdate:  v.Pubdate,
		})
	}
	return items
}
