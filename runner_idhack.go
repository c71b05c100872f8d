package quarry

import (
	"context"

	"github.com/autom8ter/quarry/errors"
	"github.com/segmentio/ksuid"
	"github.com/tidwall/gjson"
)

// idHackRunner resolves a simple id query directly through the collection's
// _id index, skipping planning entirely.
type idHackRunner struct {
	id      string
	col     Collection
	cq      *CanonicalQuery // nil on the raw fast path
	ns      string
	idValue any
	done    bool
	killed  bool
	err     error
}

func newIDHackRunner(col Collection, cq *CanonicalQuery) *idHackRunner {
	return &idHackRunner{
		id:      ksuid.New().String(),
		col:     col,
		cq:      cq,
		ns:      cq.Namespace(),
		idValue: extractIDValue(cq.Raw()),
	}
}

// newIDHackRunnerRaw builds the runner straight from a raw simple id query,
// without a canonical query ever existing
func newIDHackRunnerRaw(col Collection, ns string, rawQuery []byte) *idHackRunner {
	return &idHackRunner{
		id:      ksuid.New().String(),
		col:     col,
		ns:      ns,
		idValue: extractIDValue(rawQuery),
	}
}

func extractIDValue(rawQuery []byte) any {
	return gjson.GetBytes(rawQuery, "_id").Value()
}

func (r *idHackRunner) Next(ctx context.Context) (*Document, RecordID, RunnerState) {
	if r.killed {
		return nil, 0, RunnerDead
	}
	if r.done {
		return nil, 0, RunnerEOF
	}
	r.done = true
	doc, rid, err := r.col.DocumentByID(ctx, r.idValue)
	if err != nil {
		if errors.Is(err, errors.NotFound) {
			return nil, 0, RunnerEOF
		}
		r.err = err
		return nil, 0, RunnerDead
	}
	return doc, rid, RunnerAdvanced
}

func (r *idHackRunner) Err() error { return r.err }

func (r *idHackRunner) SaveState() error { return nil }

func (r *idHackRunner) RestoreState() error { return nil }

func (r *idHackRunner) Invalidate(rid RecordID, kind InvalidationKind) {}

func (r *idHackRunner) Kill() { r.killed = true }

func (r *idHackRunner) Collection() Collection { return r.col }

func (r *idHackRunner) Namespace() string { return r.ns }

func (r *idHackRunner) Explain() (*Document, error) {
	return NewDocumentFrom(map[string]any{
		"id":   r.id,
		"type": "idhack",
		"ns":   r.ns,
	})
}
