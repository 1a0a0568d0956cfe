package verify

import (
	"github.com/imabhichow/duvet/pkg/catalog"
	"github.com/imabhichow/duvet/pkg/regions"
)

// Handler receives classification results as the check walks the
// reference index.
type Handler interface {
	// OnRegion is called once per region a subject label is active in.
	OnRegion(subject regions.Label, region regions.Region, satisfied bool)
	// OnSubject is called once per subject label after its regions.
	OnSubject(subject regions.Label, satisfied bool, regionCount int)
}

// Rule pairs a subject type with the expression its regions must
// satisfy.
type Rule struct {
	// Subject selects the labels to check by their type attribute.
	Subject string
	// Expr is the parsed rule expression.
	Expr *Expr
}

// Check evaluates a rule against every subject label: for each region
// the label is active in, the expression is tested against the type set
// of the region's co-active labels. A subject is satisfied when it has
// at least one region and every region satisfies the expression.
func Check(cat *catalog.Catalog, eng *regions.Engine, rule Rule, h Handler) error {
	subjects, err := cat.Entities.WithAttrValue(catalog.AttrType, rule.Subject)
	if err != nil {
		return err
	}

	// Label types repeat heavily across regions; resolve each label once.
	types := make(map[regions.Label]string)
	typeOf := func(l regions.Label) (string, error) {
		if ty, ok := types[l]; ok {
			return ty, nil
		}
		ty, _, err := cat.Entities.Attr(uint32(l), catalog.AttrType)
		if err != nil {
			return "", err
		}
		types[l] = ty
		return ty, nil
	}

	for _, subject := range subjects {
		label := regions.Label(subject)
		it := eng.References(label)

		count := 0
		ok := true
		for it.Next() {
			region := it.Region()

			present := make(map[string]bool, len(region.Labels))
			for _, l := range region.Labels {
				ty, err := typeOf(l)
				if err != nil {
					return err
				}
				if ty != "" {
					present[ty] = true
				}
			}

			satisfied := rule.Expr.Eval(func(ty string) bool { return present[ty] })
			h.OnRegion(label, region, satisfied)
			count++
			ok = ok && satisfied
		}
		if err := it.Err(); err != nil {
			return err
		}

		h.OnSubject(label, ok && count > 0, count)
	}
	return nil
}

// Summary is a Handler that tallies results.
type Summary struct {
	// Subjects maps each checked label to whether it was satisfied.
	Subjects map[regions.Label]bool
	// RegionsChecked and RegionsFailed count region classifications.
	RegionsChecked int
	RegionsFailed  int
	// Failures lists the regions that failed, per subject.
	Failures map[regions.Label][]regions.Region
}

// NewSummary creates an empty summary.
func NewSummary() *Summary {
	return &Summary{
		Subjects: make(map[regions.Label]bool),
		Failures: make(map[regions.Label][]regions.Region),
	}
}

// OnRegion implements Handler.
func (s *Summary) OnRegion(subject regions.Label, region regions.Region, satisfied bool) {
	s.RegionsChecked++
	if !satisfied {
		s.RegionsFailed++
		s.Failures[subject] = append(s.Failures[subject], region)
	}
}

// OnSubject implements Handler.
func (s *Summary) OnSubject(subject regions.Label, satisfied bool, regionCount int) {
	s.Subjects[subject] = satisfied
}

// Satisfied reports whether every checked subject passed.
func (s *Summary) Satisfied() bool {
	for _, ok := range s.Subjects {
		if !ok {
			return false
		}
	}
	return true
}
