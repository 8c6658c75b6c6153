package matching

import (
	"sort"

	"github.com/arthur-debert/noodm/types"
)

// IndexReader exposes index buckets to the planner
type IndexReader interface {
	// Bucket returns the ids stored under key for field. indexed is false when
	// the field carries no index at all.
	Bucket(field, key string) (ids map[string]struct{}, indexed bool)
}

// Plan is the outcome of narrowing a condition through the indexes
type Plan struct {
	// Narrowed is true when at least one scalar field produced a candidate set.
	// When false every document is a candidate.
	Narrowed bool

	// Candidates holds the admissible ids when Narrowed
	Candidates map[string]struct{}

	// Residual holds the expectations still to be evaluated per document
	Residual types.Cond
}

// NewPlan narrows cond through idx. Scalar equality fields on _id or on indexed
// fields seed or intersect the candidate set and leave the residual; everything
// else stays in the residual. Narrowing never admits a document the residual
// evaluation alone would reject.
func NewPlan(cond types.Cond, idx IndexReader) Plan {
	plan := Plan{Residual: types.Cond{}}
	if len(cond) == 0 {
		return plan
	}

	fields := make([]string, 0, len(cond))
	for k := range cond {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	for _, field := range fields {
		expect := cond[field]
		v, scalar := expect.Scalar()
		if !scalar {
			plan.Residual[field] = expect
			continue
		}

		var bucket map[string]struct{}
		if field == types.IDField {
			bucket = map[string]struct{}{}
			if id, ok := v.Str(); ok {
				bucket[id] = struct{}{}
			}
		} else {
			key, _ := v.IndexKey()
			ids, indexed := idx.Bucket(field, key)
			if !indexed {
				plan.Residual[field] = expect
				continue
			}
			bucket = ids
		}

		if !plan.Narrowed {
			plan.Narrowed = true
			plan.Candidates = make(map[string]struct{}, len(bucket))
			for id := range bucket {
				plan.Candidates[id] = struct{}{}
			}
			continue
		}
		for id := range plan.Candidates {
			if _, ok := bucket[id]; !ok {
				delete(plan.Candidates, id)
			}
		}
	}

	return plan
}

// Admits reports whether id survives index narrowing
func (p Plan) Admits(id string) bool {
	if !p.Narrowed {
		return true
	}
	_, ok := p.Candidates[id]
	return ok
}

// Matches reports whether doc satisfies every expectation of cond
func Matches(doc types.Document, cond types.Cond) bool {
	for field, expect := range cond {
		if !expect.Matches(doc[field]) {
			return false
		}
	}
	return true
}
