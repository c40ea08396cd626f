// SPDX-License-Identifier: AGPL-3.0-or-later

package module

import (
	"fmt"
	"sort"

	"g8r/pkg/model"
)

// SelectRoster filters rosters by trait-superset match and, when specified,
// exact roster_type match, then returns the lexicographically first name as
// the deterministic tie-break (spec.md §4.3).
func SelectRoster(rosters []model.Roster, selector model.RosterSelector) (model.Roster, error) {
	var candidates []model.Roster
	for _, r := range rosters {
		if selector.RosterType != "" && r.RosterType != selector.RosterType {
			continue
		}
		if !r.HasAllTraits(selector.Traits) {
			continue
		}
		candidates = append(candidates, r)
	}

	if len(candidates) == 0 {
		return model.Roster{}, fmt.Errorf("%w: selector %+v", model.ErrNoMatchingRoster, selector)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Name < candidates[j].Name
	})
	return candidates[0], nil
}

// RequireTraits verifies the roster carries every trait the module requires,
// beyond whatever the duty's own selector already narrowed (spec.md §4.6
// step "verify the roster carries every required_roster_traits()").
func RequireTraits(roster model.Roster, required []string) error {
	if !roster.HasAllTraits(required) {
		return fmt.Errorf("%w: roster %q missing required traits %v", model.ErrModule, roster.Name, required)
	}
	return nil
}
