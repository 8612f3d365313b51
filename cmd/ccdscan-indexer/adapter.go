package main

import (
	"context"

	"github.com/concordium/ccdscan-indexer/internal/indexer/pipeline"
	"github.com/concordium/ccdscan-indexer/internal/indexer/preprocess"
	"github.com/concordium/ccdscan-indexer/internal/nodeapi"
)

// indexerAdapter bridges preprocess.Processor's established API (shaped
// around block_preprocessor.rs's on_connect/on_finalized/on_failure) onto
// the pipeline.Indexer generic interface the driver depends on.
type indexerAdapter struct {
	p *preprocess.Processor
}

var _ pipeline.Indexer[*preprocess.PreparedBlock] = (*indexerAdapter)(nil)

func (a *indexerAdapter) OnConnect(ctx context.Context, client nodeapi.Client, endpoint string) (string, error) {
	if err := a.p.VerifyConnection(ctx, client, endpoint); err != nil {
		return "", err
	}
	return endpoint, nil
}

func (a *indexerAdapter) OnFinalized(ctx context.Context, client nodeapi.Client, endpoint string, fbi nodeapi.FinalizedBlockInfo) (*preprocess.PreparedBlock, error) {
	return a.p.PreprocessBlock(ctx, client, endpoint, fbi)
}

func (a *indexerAdapter) OnFailure(ctx context.Context, endpoint string, successiveFailures uint32, cause error) bool {
	return !a.p.ShouldStop(successiveFailures)
}
