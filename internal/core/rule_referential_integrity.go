package core

import (
	"context"
	"fmt"

	"printvault/internal/catalog"
	"printvault/pkg/domain"
)

// NewReferentialIntegrityRule returns the in-transaction rule that keeps every
// reference column pointing at an existing record and refuses deletes that
// would strand referencing records.
func NewReferentialIntegrityRule() domain.Rule {
	return referentialIntegrityRule{}
}

type referentialIntegrityRule struct{}

func (referentialIntegrityRule) Name() string { return "referential_integrity" }

func (referentialIntegrityRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		switch change.Action {
		case domain.ActionCreate, domain.ActionUpdate:
			rec := change.After
			if rec == nil {
				continue
			}
			desc, ok := catalog.Get(change.Entity)
			if !ok {
				continue
			}
			cells := desc.Encode(rec)
			for _, ref := range desc.Refs {
				id := cells[ref.Column]
				if id == "" {
					continue
				}
				if _, found := view.Find(ref.Target, id); !found {
					res.Violations = append(res.Violations, domain.Violation{
						Rule:     "referential_integrity",
						Severity: domain.SeverityBlock,
						Message:  fmt.Sprintf("%s %s references missing %s %s via %s", change.Entity, rec.RecordID(), ref.Target, id, ref.Column),
						Entity:   change.Entity,
						EntityID: rec.RecordID(),
					})
				}
			}
		case domain.ActionDelete:
			rec := change.Before
			if rec == nil {
				continue
			}
			for _, other := range catalog.Descriptors() {
				for _, ref := range other.Refs {
					if ref.Target != change.Entity {
						continue
					}
					for _, cand := range view.List(other.Type) {
						if other.Encode(cand)[ref.Column] != rec.RecordID() {
							continue
						}
						res.Violations = append(res.Violations, domain.Violation{
							Rule:     "referential_integrity",
							Severity: domain.SeverityBlock,
							Message:  fmt.Sprintf("%s %s is still referenced by %s %s via %s", change.Entity, rec.RecordID(), other.Type, cand.RecordID(), ref.Column),
							Entity:   change.Entity,
							EntityID: rec.RecordID(),
						})
					}
				}
			}
		}
	}
	return res, nil
}
