package service

import (
	"context"
	"net/url"

	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/google/wire"
)

// ProviderSet is service providers.
var ProviderSet = wire.NewSet(NewModerationService, NewAdminService)

const (
	OperationCheck      = "/promptguard.v1.Moderation/Check"
	OperationAddWord    = "/promptguard.v1.Admin/AddWord"
	OperationRemoveWord = "/promptguard.v1.Admin/RemoveWord"
	OperationListWords  = "/promptguard.v1.Admin/ListWords"
	OperationStats      = "/promptguard.v1.Admin/Stats"
	OperationClear      = "/promptguard.v1.Admin/Clear"
	OperationSeed       = "/promptguard.v1.Admin/Seed"
)

// RegisterHTTPServer mounts the moderation and admin routes on s.
func RegisterHTTPServer(s *http.Server, mod *ModerationService, admin *AdminService) {
	r := s.Route("/v1/moderation")
	r.POST("/check", handle(OperationCheck, bindBody[CheckRequest], mod.Check))
	r.POST("/words", handle(OperationAddWord, bindBody[AddWordRequest], admin.AddWord))
	r.DELETE("/words/{word}", handle(OperationRemoveWord, bindWordVar, admin.RemoveWord))
	r.GET("/words", handle(OperationListWords, bindQuery[ListWordsRequest], admin.ListWords))
	r.GET("/stats", handle(OperationStats, bindNone, admin.Stats))
	r.POST("/clear", handle(OperationClear, bindNone, admin.Clear))
	r.POST("/seed", handle(OperationSeed, bindNone, admin.Seed))
}

// handle binds the request, runs it through the server middleware and
// writes the reply.
func handle[Req, Reply any](operation string, bind func(http.Context) (*Req, error), call func(context.Context, *Req) (*Reply, error)) http.HandlerFunc {
	return func(ctx http.Context) error {
		in, err := bind(ctx)
		if err != nil {
			return err
		}
		http.SetOperation(ctx, operation)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(ctx, req.(*Req))
		})
		out, err := h(ctx, in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	}
}

func bindBody[T any](ctx http.Context) (*T, error) {
	var in T
	if err := ctx.Bind(&in); err != nil {
		return nil, err
	}
	return &in, nil
}

func bindQuery[T any](ctx http.Context) (*T, error) {
	var in T
	if err := ctx.BindQuery(&in); err != nil {
		return nil, err
	}
	return &in, nil
}

func bindWordVar(ctx http.Context) (*RemoveWordRequest, error) {
	word := ctx.Vars().Get("word")
	if unescaped, err := url.PathUnescape(word); err == nil {
		word = unescaped
	}
	return &RemoveWordRequest{Word: word}, nil
}

func bindNone(http.Context) (*struct{}, error) {
	return &struct{}{}, nil
}
