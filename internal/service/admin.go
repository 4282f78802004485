package service

import (
	"context"
	"errors"

	"promptguard/internal/biz"
	"promptguard/internal/pkg/filter"
	"promptguard/internal/pkg/pagination"

	kerrors "github.com/go-kratos/kratos/v2/errors"
)

type AddWordRequest struct {
	Word   string `json:"word"`
	Reason string `json:"reason"`
	Source string `json:"source"`
}

type AddWordReply struct {
	Word string `json:"word"`
}

type RemoveWordRequest struct {
	Word string `json:"word"`
}

type RemoveWordReply struct {
	Removed bool `json:"removed"`
}

type ListWordsRequest struct {
	Cursor string `json:"cursor"`
	Limit  int    `json:"limit"`
}

type ClearReply struct {
	Deleted int64 `json:"deleted"`
}

type SeedReply struct {
	Seeded int `json:"seeded"`
}

// AdminService manages the blocked word cache.
type AdminService struct {
	uc *biz.BlockCacheUsecase
}

// NewAdminService creates a new AdminService.
func NewAdminService(uc *biz.BlockCacheUsecase) *AdminService {
	return &AdminService{uc: uc}
}

// AddWord adds a word or phrase of up to three words to the blocklist.
func (s *AdminService) AddWord(ctx context.Context, in *AddWordRequest) (*AddWordReply, error) {
	source, err := parseSource(in.Source)
	if err != nil {
		return nil, err
	}
	var reason biz.ViolationCategory
	if in.Reason != "" {
		reason = biz.ParseViolationCategory(in.Reason)
	}

	err = s.uc.AddBlockedWord(ctx, in.Word, reason, source)
	switch {
	case errors.Is(err, biz.ErrEmptyWord), errors.Is(err, biz.ErrPhraseTooLong):
		return nil, kerrors.BadRequest("INVALID_WORD", err.Error())
	case err != nil:
		return nil, kerrors.ServiceUnavailable("STORE_UNAVAILABLE", err.Error())
	}
	return &AddWordReply{Word: filter.Canonical(in.Word)}, nil
}

// RemoveWord removes a word from the blocklist.
func (s *AdminService) RemoveWord(ctx context.Context, in *RemoveWordRequest) (*RemoveWordReply, error) {
	if in.Word == "" {
		return nil, kerrors.BadRequest("INVALID_WORD", biz.ErrEmptyWord.Error())
	}
	return &RemoveWordReply{Removed: s.uc.RemoveBlockedWord(ctx, in.Word)}, nil
}

// ListWords returns one page of blocked words.
func (s *AdminService) ListWords(ctx context.Context, in *ListWordsRequest) (*biz.WordPage, error) {
	page, err := s.uc.ListBlockedWords(ctx, pagination.NewCursorRequest(in.Cursor, in.Limit))
	switch {
	case errors.Is(err, pagination.ErrInvalidCursor):
		return nil, kerrors.BadRequest("INVALID_CURSOR", err.Error())
	case err != nil:
		return nil, kerrors.ServiceUnavailable("STORE_UNAVAILABLE", err.Error())
	}
	return page, nil
}

// Stats returns the block cache counters.
func (s *AdminService) Stats(ctx context.Context, _ *struct{}) (*biz.Statistics, error) {
	stats, err := s.uc.GetStatistics(ctx)
	if err != nil {
		return nil, kerrors.ServiceUnavailable("STORE_UNAVAILABLE", err.Error())
	}
	return stats, nil
}

// Clear deletes every cached word and prompt verdict.
func (s *AdminService) Clear(ctx context.Context, _ *struct{}) (*ClearReply, error) {
	n, err := s.uc.ClearAll(ctx)
	if err != nil {
		return nil, kerrors.ServiceUnavailable("STORE_UNAVAILABLE", err.Error())
	}
	return &ClearReply{Deleted: n}, nil
}

// Seed inserts the built-in word table.
func (s *AdminService) Seed(ctx context.Context, _ *struct{}) (*SeedReply, error) {
	n, err := s.uc.SeedDefaults(ctx)
	if err != nil {
		return nil, kerrors.ServiceUnavailable("STORE_UNAVAILABLE", err.Error())
	}
	return &SeedReply{Seeded: n}, nil
}

func parseSource(s string) (biz.WordSource, error) {
	switch source := biz.WordSource(s); source {
	case "", biz.SourceManual, biz.SourceSeed, biz.SourceClassifier:
		return source, nil
	default:
		return "", kerrors.BadRequest("INVALID_SOURCE", "source must be one of seed, gemini, manual")
	}
}
