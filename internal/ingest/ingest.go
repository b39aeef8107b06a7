package ingest

import (
	"context"

	"github.com/dwellir-public/haproxy-collector/internal/topology"
)

// Ingestor persists the resolved entries of one collection pass against a
// load balancer identity. Implementations decide transaction boundaries;
// a pass is persisted fully or not at all.
type Ingestor interface {
	Ingest(ctx context.Context, haproxyID int64, entries []topology.Entry) error
}
