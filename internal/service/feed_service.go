package service

import (
	"context"
	"io"

	"github.com/AdvantusAI/m8-collab/internal/feeds"
)

// FeedService loads uploaded feed files and drops matrices built from the old data.
type FeedService struct {
	loader *feeds.Loader
	collab *CollaborationService
}

func NewFeedService(w feeds.Writer, collab *CollaborationService) *FeedService {
	return &FeedService{loader: feeds.NewLoader(w), collab: collab}
}

// Upload parses one file and writes its rows. An empty kind is inferred from name.
func (s *FeedService) Upload(ctx context.Context, name string, r io.Reader, kind feeds.Kind) (feeds.Report, error) {
	if kind == "" {
		k, err := feeds.KindFromFilename(name)
		if err != nil {
			return feeds.Report{Source: name}, err
		}
		kind = k
	}

	batch, err := feeds.Parse(r, name, kind)
	if err != nil {
		return feeds.Report{Source: name, Kind: kind}, err
	}
	rep, err := s.loader.Load(ctx, batch)
	if err != nil {
		return rep, err
	}

	if s.collab != nil {
		if err := s.collab.Invalidate(ctx); err != nil {
			return rep, err
		}
	}
	return rep, nil
}
