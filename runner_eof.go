package quarry

import (
	"context"

	"github.com/segmentio/ksuid"
)

// eofRunner always yields end-of-stream. It is dispatched when the target
// collection does not exist.
type eofRunner struct {
	id     string
	cq     *CanonicalQuery
	ns     string
	killed bool
}

func newEOFRunner(cq *CanonicalQuery, ns string) *eofRunner {
	return &eofRunner{
		id: ksuid.New().String(),
		cq: cq,
		ns: ns,
	}
}

func (r *eofRunner) Next(ctx context.Context) (*Document, RecordID, RunnerState) {
	if r.killed {
		return nil, 0, RunnerDead
	}
	return nil, 0, RunnerEOF
}

func (r *eofRunner) Err() error { return nil }

func (r *eofRunner) SaveState() error { return nil }

func (r *eofRunner) RestoreState() error { return nil }

func (r *eofRunner) Invalidate(rid RecordID, kind InvalidationKind) {}

func (r *eofRunner) Kill() { r.killed = true }

func (r *eofRunner) Collection() Collection { return nil }

func (r *eofRunner) Namespace() string { return r.ns }

func (r *eofRunner) Explain() (*Document, error) {
	return NewDocumentFrom(map[string]any{
		"id":   r.id,
		"type": "eof",
		"ns":   r.ns,
	})
}
