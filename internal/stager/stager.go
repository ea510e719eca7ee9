// Package stager implements the per-classification staging strategies:
// each wraps a retriever (package retriever) and returns a staged
// handle (package staged). Strategies are held in a static map keyed by
// source.Classification, built at package init, matching the registry
// strategy used by package retriever.
package stager

import (
	"context"
	"fmt"

	"github.com/CWorthy-ocean/C-Star-sub001/internal/cstarerrors"
	"github.com/CWorthy-ocean/C-Star-sub001/internal/retriever"
	"github.com/CWorthy-ocean/C-Star-sub001/internal/source"
	"github.com/CWorthy-ocean/C-Star-sub001/internal/staged"
)

// Stager places a source's content into targetDir and returns a handle
// tracking its divergence from the source.
type Stager interface {
	Stage(ctx context.Context, src *source.Source, targetDir string) (staged.Artifact, error)
}

var registry = map[source.Classification]Stager{
	source.RemoteTextFile:   fileStager{kind: source.RemoteTextFile},
	source.RemoteBinaryFile: fileStager{kind: source.RemoteBinaryFile},
	source.LocalTextFile:    fileStager{kind: source.LocalTextFile},
	source.LocalBinaryFile:  fileStager{kind: source.LocalBinaryFile},
	source.RemoteRepository: repositoryStager{},
}

// Get returns the registered stager for a classification.
func Get(c source.Classification) (Stager, error) {
	s, ok := registry[c]
	if !ok {
		return nil, cstarerrors.Configuration("stager.Get", fmt.Sprintf("no stager registered for classification %q", c))
	}
	return s, nil
}

// UseCachedRepository swaps in the caching remote-repository stager in
// place of the plain one (called once at program start by callers that
// want repository staging deduplicated through a shared cache; kept
// opt-in because the cache has on-disk side effects plain staging
// does not).
func UseCachedRepository(cache *CachedRepositoryStager) {
	registry[source.RemoteRepository] = cache
}

// fileStager wraps the retriever for a file classification: it
// pre-populates the staged file's cached SHA-256 from the source's
// identifier when available (the remote-binary retriever already
// verified it, so rehashing would be redundant), and rebuilds the
// cache from the on-disk stat otherwise.
type fileStager struct {
	kind source.Classification
}

func (f fileStager) Stage(ctx context.Context, src *source.Source, targetDir string) (staged.Artifact, error) {
	r, err := retriever.Get(f.kind)
	if err != nil {
		return nil, err
	}
	path, err := r.Save(ctx, src, targetDir)
	if err != nil {
		return nil, err
	}

	preset := ""
	if f.kind == source.RemoteBinaryFile && src.Identifier != "" {
		preset = src.Identifier
	}

	restage := func(ctx context.Context) (string, error) {
		return r.Save(ctx, src, targetDir)
	}
	return staged.NewStagedFile(src, path, preset, restage)
}

// repositoryStager is the plain (uncached) remote-repository stager: it
// clones directly into targetDir on every call.
type repositoryStager struct{}

func (repositoryStager) Stage(ctx context.Context, src *source.Source, targetDir string) (staged.Artifact, error) {
	r, err := retriever.Get(source.RemoteRepository)
	if err != nil {
		return nil, err
	}
	path, err := r.Save(ctx, src, targetDir)
	if err != nil {
		return nil, err
	}
	restage := func(ctx context.Context) (string, error) {
		return r.Save(ctx, src, targetDir)
	}
	return staged.NewStagedRepository(ctx, src, path, restage)
}
