// Package resolver looks up a single parcel by its cadastral key.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mohammed-shakir/flurstueck-map/internal/core/executor"
	"github.com/mohammed-shakir/flurstueck-map/internal/core/model"
	"github.com/mohammed-shakir/flurstueck-map/internal/core/observability"
)

// ErrAmbiguous is matched by every *AmbiguousError.
var ErrAmbiguous = errors.New("ambiguous parcel key")

// AmbiguousError reports a key that matched more than one parcel after the
// flur filter. Candidates holds every match so callers can pick a
// denominator.
type AmbiguousError struct {
	Key        model.QueryKey
	Candidates []model.Feature
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("parcel %s matches %d features; specify a denominator", e.Key, len(e.Candidates))
}

func (e *AmbiguousError) Is(target error) bool { return target == ErrAmbiguous }

// UpstreamError is an error envelope returned by the feature service with
// a 200 status.
type UpstreamError struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details"`
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("feature service error %d: %s", e.Code, e.Message)
}

type Resolver struct {
	logger *slog.Logger
	exec   executor.Interface
}

func New(logger *slog.Logger, exec executor.Interface) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{logger: logger, exec: exec}
}

type response struct {
	Features []model.Feature `json:"features"`
	Error    *UpstreamError  `json:"error"`
}

// Resolve returns the single parcel matching k, nil when nothing matches, or
// an *AmbiguousError when several do.
func (r *Resolver) Resolve(ctx context.Context, k model.QueryKey) (*model.Feature, error) {
	body, err := r.exec.FetchFeatures(ctx, k)
	if err != nil {
		observability.IncResolve("error")
		return nil, fmt.Errorf("fetch %s: %w", k, err)
	}

	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		observability.IncResolve("error")
		return nil, fmt.Errorf("decode %s: %w", k, err)
	}
	if resp.Error != nil {
		observability.IncResolve("error")
		return nil, fmt.Errorf("query %s: %w", k, resp.Error)
	}

	matches := FilterFlur(resp.Features, k.Flur)
	r.logger.Debug("parcel candidates",
		"key", k.String(),
		"returned", len(resp.Features),
		"matching_flur", len(matches))

	switch len(matches) {
	case 0:
		observability.IncResolve("none")
		return nil, nil
	case 1:
		observability.IncResolve("found")
		return &matches[0], nil
	default:
		observability.IncResolve("ambiguous")
		return nil, &AmbiguousError{Key: k, Candidates: matches}
	}
}

// FilterFlur keeps the features whose flurnummer equals flur.
func FilterFlur(feats []model.Feature, flur int) []model.Feature {
	var out []model.Feature
	for _, f := range feats {
		if f.Attributes.Flur.Valid && f.Attributes.Flur.Value == int64(flur) {
			out = append(out, f)
		}
	}
	return out
}

type Result struct {
	Features []model.Feature
	Missing  []model.QueryKey
}

// ResolveAll resolves keys one after another and stops at the first error.
// Keys without a match are collected in Missing.
func (r *Resolver) ResolveAll(ctx context.Context, keys []model.QueryKey) (Result, error) {
	var res Result
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("resolve all: %w", err)
		}
		f, err := r.Resolve(ctx, k)
		if err != nil {
			return res, err
		}
		if f == nil {
			r.logger.Warn("no parcel found", "key", k.String())
			res.Missing = append(res.Missing, k)
			continue
		}
		res.Features = append(res.Features, *f)
	}
	return res, nil
}
