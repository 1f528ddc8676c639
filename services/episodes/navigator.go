package episodes

import (
	"context"
	"errors"
	"log"
	"sort"

	"github.com/sourcegraph/conc/pool"

	"couchplay/models"
)

// ErrEndOfSeries means there is no episode in the requested direction.
var ErrEndOfSeries = errors.New("end of series")

// restartThresholdMs: past this elapsed time "previous" restarts the current
// episode instead of jumping back.
const restartThresholdMs = 30_000

// Direction of episode navigation.
type Direction int

const (
	Next Direction = iota
	Previous
)

// seriesClient is the slice of the media-server client the navigator needs.
type seriesClient interface {
	Seasons(ctx context.Context, seriesID string) ([]models.MediaItem, error)
	Episodes(ctx context.Context, seriesID, seasonID string) ([]models.MediaItem, error)
}

// Navigator resolves adjacent episodes across season boundaries.
type Navigator struct {
	client seriesClient
}

func NewNavigator(client seriesClient) *Navigator {
	return &Navigator{client: client}
}

// Resolve finds the episode adjacent to current. restart=true means the
// caller should replay the current item from the beginning instead of
// switching: "previous" behaves that way past 30s of playback.
func (n *Navigator) Resolve(ctx context.Context, current models.MediaItem, dir Direction, elapsedMs int64) (models.MediaItem, bool, error) {
	if !current.IsEpisode() || current.SeriesID == "" {
		return models.MediaItem{}, false, ErrEndOfSeries
	}
	if dir == Previous && elapsedMs > restartThresholdMs {
		return current, true, nil
	}

	seasons, err := n.client.Seasons(ctx, current.SeriesID)
	if err != nil {
		return models.MediaItem{}, false, err
	}
	sort.Slice(seasons, func(i, j int) bool { return seasons[i].SeasonNumber < seasons[j].SeasonNumber })

	seasonIdx, episodes, episodeIdx, err := n.locate(ctx, current, seasons)
	if err != nil {
		return models.MediaItem{}, false, err
	}

	if dir == Next {
		if episodeIdx+1 < len(episodes) {
			return episodes[episodeIdx+1], false, nil
		}
		// first non-empty following season
		for i := seasonIdx + 1; i < len(seasons); i++ {
			eps, err := n.client.Episodes(ctx, current.SeriesID, seasons[i].ID)
			if err != nil {
				return models.MediaItem{}, false, err
			}
			if len(eps) > 0 {
				return eps[0], false, nil
			}
		}
		return models.MediaItem{}, false, ErrEndOfSeries
	}

	if episodeIdx > 0 {
		return episodes[episodeIdx-1], false, nil
	}
	// last non-empty preceding season
	for i := seasonIdx - 1; i >= 0; i-- {
		eps, err := n.client.Episodes(ctx, current.SeriesID, seasons[i].ID)
		if err != nil {
			return models.MediaItem{}, false, err
		}
		if len(eps) > 0 {
			return eps[len(eps)-1], false, nil
		}
	}
	return models.MediaItem{}, false, ErrEndOfSeries
}

// locate finds current inside its season. When the item's season id is stale
// (library reorganized mid-session) every season is scanned in parallel.
func (n *Navigator) locate(ctx context.Context, current models.MediaItem, seasons []models.MediaItem) (int, []models.MediaItem, int, error) {
	for i, season := range seasons {
		if season.ID != current.SeasonID {
			continue
		}
		eps, err := n.client.Episodes(ctx, current.SeriesID, season.ID)
		if err != nil {
			return 0, nil, 0, err
		}
		for j, ep := range eps {
			if ep.ID == current.ID {
				return i, eps, j, nil
			}
		}
		break
	}

	log.Printf("[episodes] season lookup missed for %s, scanning series %s", current.ID, current.SeriesID)

	type seasonEpisodes struct {
		seasonIdx int
		eps       []models.MediaItem
	}
	p := pool.NewWithResults[seasonEpisodes]().WithContext(ctx)
	for i, season := range seasons {
		i, seasonID := i, season.ID
		p.Go(func(ctx context.Context) (seasonEpisodes, error) {
			eps, err := n.client.Episodes(ctx, current.SeriesID, seasonID)
			return seasonEpisodes{seasonIdx: i, eps: eps}, err
		})
	}
	perSeason, err := p.Wait()
	if err != nil {
		return 0, nil, 0, err
	}

	for _, se := range perSeason {
		for j, ep := range se.eps {
			if ep.ID == current.ID {
				return se.seasonIdx, se.eps, j, nil
			}
		}
	}
	return 0, nil, 0, ErrEndOfSeries
}
