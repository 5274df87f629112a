package findtofollow

import (
	"context"
	"errors"
	"fmt"

	"github.com/haileyok/findtofollow/finder"
	"github.com/haileyok/findtofollow/internal/helpers"
	"github.com/labstack/echo/v4"
)

const getCandidatesMethod = "app.findtofollow.getCandidates"

type GetCandidatesResponse struct {
	RunId      string           `json:"runId"`
	Candidates []finder.Profile `json:"candidates"`
	Log        string           `json:"log"`
}

// prepareRequest parses raw and resolves both actors to DIDs, so friend ids
// are always stored under the caller's DID.
func (s *Server) prepareRequest(ctx context.Context, raw finder.RawFilterRequest) (finder.FilterRequest, error) {
	req, err := finder.ParseFilterRequest(raw)
	if err != nil {
		return finder.FilterRequest{}, err
	}

	if req.FollowerLimit > s.args.MaxFollowerLimit {
		return finder.FilterRequest{}, &finder.ConfigError{
			Field:  "followerLimit",
			Reason: fmt.Sprintf("must not exceed %d", s.args.MaxFollowerLimit),
		}
	}

	if req.SourceActor, err = s.resolveDid(ctx, req.SourceActor); err != nil {
		return finder.FilterRequest{}, err
	}
	if req.Account, err = s.resolveDid(ctx, req.Account); err != nil {
		return finder.FilterRequest{}, err
	}

	return req, nil
}

// resolveDid keeps unknown handles as request errors and reports anything
// else as an upstream failure.
func (s *Server) resolveDid(ctx context.Context, actor string) (string, error) {
	did, err := s.resolver.ResolveDid(ctx, actor)
	if err != nil {
		if errors.Is(err, finder.ErrInvalidRequest) {
			return "", err
		}
		return "", &finder.TransportError{Op: "resolve handle", Err: err}
	}
	return did, nil
}

func (s *Server) handleFindToFollow(e echo.Context) error {
	ctx := e.Request().Context()

	var raw finder.RawFilterRequest
	if err := e.Bind(&raw); err != nil {
		return e.String(400, err.Error())
	}

	trace := finder.NewTrace(s.logger)

	req, err := s.prepareRequest(ctx, raw)
	if err != nil {
		trace.Logf("Unable to start: %v", err)
		return e.HTML(statusForError(err), renderError(err, trace.Report()))
	}

	profiles, err := s.finder.Find(ctx, trace, req)
	report := trace.Report()
	if err != nil {
		s.logger.Error("error finding accounts to follow", "run", trace.ID(), "error", err)
		return e.HTML(statusForError(err), renderError(err, report))
	}

	html, err := renderResults(profiles, report)
	if err != nil {
		s.logger.Error("error rendering results", "run", trace.ID(), "error", err)
		return e.String(500, "unable to render results")
	}

	return e.HTML(200, html)
}

func (s *Server) handleGetCandidates(e echo.Context) error {
	ctx := e.Request().Context()

	var raw finder.RawFilterRequest
	if err := e.Bind(&raw); err != nil {
		s.logger.Error("unable to bind get candidates request", "error", err)
		return helpers.InputError(e, "InvalidRequest", "")
	}

	did, ok := e.Get("did").(string)
	if !ok || did == "" {
		return helpers.InputError(e, "AuthRequired", "")
	}
	raw.Account = did

	trace := finder.NewTrace(s.logger)

	req, err := s.prepareRequest(ctx, raw)
	if err != nil {
		trace.Logf("Unable to start: %v", err)
		return s.candidatesError(e, trace, err)
	}

	profiles, err := s.finder.Find(ctx, trace, req)
	if err != nil {
		return s.candidatesError(e, trace, err)
	}

	if profiles == nil {
		profiles = []finder.Profile{}
	}

	return e.JSON(200, GetCandidatesResponse{
		RunId:      trace.ID(),
		Candidates: profiles,
		Log:        trace.Report(),
	})
}

func (s *Server) candidatesError(e echo.Context, trace *finder.Trace, err error) error {
	status := statusForError(err)
	switch status {
	case 400:
		return helpers.RunError(e, status, "InvalidRequest", err.Error(), trace.Report())
	case 502:
		var te *finder.TransportError
		errors.As(err, &te)
		s.logger.Error("upstream error getting candidates", "run", trace.ID(), "error", err)
		return helpers.RunError(e, status, "UpstreamError", te.Op, trace.Report())
	default:
		s.logger.Error("error getting candidates", "run", trace.ID(), "error", err)
		return helpers.RunError(e, status, "InternalError", "", trace.Report())
	}
}

func statusForError(err error) int {
	var te *finder.TransportError
	switch {
	case errors.Is(err, finder.ErrInvalidRequest):
		return 400
	case errors.As(err, &te):
		return 502
	default:
		return 500
	}
}
