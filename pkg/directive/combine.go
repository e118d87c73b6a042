package directive

import (
	"cmp"
	"slices"
)

// CombineParameters merges partial parameter definitions into composite
// ones. Fully specified definitions pass through in source order, followed
// by one composite per (mapping type, group), whose bind positions are
// ordered by part number.
func CombineParameters(defs []*ParameterDefinition) ([]*ParameterDefinition, error) {
	return combine(defs, func(run []*ParameterDefinition) *ParameterDefinition {
		c := *run[0]
		c.FieldPath = slices.Clone(run[0].FieldPath)
		c.SQLIndexes, c.SQLNames = nil, nil
		for _, d := range run {
			c.SQLIndexes = append(c.SQLIndexes, d.SQLIndexes...)
			c.SQLNames = append(c.SQLNames, d.SQLNames...)
		}
		c.PartialPart, c.PartialGroup = 0, ""
		return &c
	})
}

// CombineResults merges partial result definitions into composite ones.
// Columns (or indexes) of a composite are ordered by part number, not by
// where the parts appear in the statement.
func CombineResults(defs []*ResultDefinition) ([]*ResultDefinition, error) {
	return combine(defs, func(run []*ResultDefinition) *ResultDefinition {
		c := *run[0]
		c.FieldPath = slices.Clone(run[0].FieldPath)
		c.Columns, c.Indexes = nil, nil
		for _, d := range run {
			c.Columns = append(c.Columns, d.Columns...)
			c.Indexes = append(c.Indexes, d.Indexes...)
		}
		c.PartialPart, c.PartialGroup = 0, ""
		return &c
	})
}

func combine[D Definition](defs []D, merge func(run []D) D) ([]D, error) {
	var full, partial []D
	for _, d := range defs {
		if d.base().IsPartial() {
			partial = append(partial, d)
		} else {
			full = append(full, d)
		}
	}
	if len(partial) == 0 {
		return defs, nil
	}

	slices.SortStableFunc(partial, func(a, b D) int {
		return comparePartial(a.base(), b.base())
	})

	for i := 1; i < len(partial); i++ {
		prev, cur := partial[i-1].base(), partial[i].base()
		if comparePartial(prev, cur) == 0 {
			return nil, newValidationError(ErrDuplicatePartial, cur,
				"type %q group %q part %d is defined twice", cur.MappingType, cur.PartialGroup, cur.PartialPart)
		}
	}

	out := full
	for i := 0; i < len(partial); {
		j := i + 1
		for j < len(partial) && sameGroup(partial[i].base(), partial[j].base()) {
			j++
		}
		run := partial[i:j]
		for k, d := range run {
			b := d.base()
			if b.PartialPart != k+1 {
				return nil, newValidationError(ErrPartialGap, b,
					"type %q group %q has part %d but no part %d", b.MappingType, b.PartialGroup, b.PartialPart, k+1)
			}
		}
		out = append(out, merge(run))
		i = j
	}
	return out, nil
}

// comparePartial orders by mapping type, group and part. An empty group
// sorts before any named group.
func comparePartial(a, b *Base) int {
	if c := cmp.Compare(a.MappingType, b.MappingType); c != 0 {
		return c
	}
	if c := cmp.Compare(a.PartialGroup, b.PartialGroup); c != 0 {
		return c
	}
	return cmp.Compare(a.PartialPart, b.PartialPart)
}

func sameGroup(a, b *Base) bool {
	return a.MappingType == b.MappingType && a.PartialGroup == b.PartialGroup
}
