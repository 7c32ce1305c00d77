package core

import (
	"context"
	"fmt"
	"sort"

	"printvault/internal/catalog"
	"printvault/pkg/domain"
)

// NewUniqueNameRule returns the rule enforcing unique names across every
// lookup type addressed by name. Imports rely on these names as stable keys,
// so duplicates block the transaction.
func NewUniqueNameRule() domain.Rule {
	return uniqueNameRule{}
}

type uniqueNameRule struct{}

func (uniqueNameRule) Name() string { return "unique_name" }

func (uniqueNameRule) Evaluate(_ context.Context, view domain.TransactionView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, desc := range catalog.Descriptors() {
		if desc.NaturalKey == "id" {
			continue
		}
		byName := make(map[string][]string)
		for _, rec := range view.List(desc.Type) {
			name := desc.KeyValue(rec)
			byName[name] = append(byName[name], rec.RecordID())
		}
		for name, ids := range byName {
			if len(ids) < 2 {
				continue
			}
			sort.Strings(ids)
			for _, id := range ids[1:] {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "unique_name",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("%s name %q already in use", desc.Display, name),
					Entity:   desc.Type,
					EntityID: id,
				})
			}
		}
	}
	return res, nil
}
