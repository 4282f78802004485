package service

import (
	"context"

	"promptguard/internal/biz"
)

// CheckRequest is the body of POST /v1/moderation/check.
type CheckRequest struct {
	Prompt string `json:"prompt"`
}

// ModerationService answers prompt checks.
type ModerationService struct {
	uc *biz.BlockCacheUsecase
}

// NewModerationService creates a new ModerationService.
func NewModerationService(uc *biz.BlockCacheUsecase) *ModerationService {
	return &ModerationService{uc: uc}
}

// Check returns the moderation verdict for a prompt. It does not fail on
// backend errors; the verdict's source tells the caller how it was reached.
func (s *ModerationService) Check(ctx context.Context, in *CheckRequest) (*biz.Verdict, error) {
	return s.uc.CheckPrompt(ctx, in.Prompt), nil
}
