// SPDX-License-Identifier: AGPL-3.0-or-later

/*
g8r - an infrastructure-automation control plane.

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

package eval

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"g8r/pkg/kv"
	"g8r/pkg/model"
)

// Document is the parsed result of a source file: its rosters, its duties,
// and any unresolved instruction tokens each duty's spec carries.
type Document struct {
	Rosters []model.Roster
	Duties  []model.Duty
}

// LoadPlain implements spec.md §4.4 mode 1: rewrite whatever pre-evaluation
// pseudo-functions the source contains, then parse the result as the
// rosters/duties document.
func LoadPlain(source string, resolver Resolver) (Document, error) {
	rewritten, err := RewriteInstructions(source, resolver)
	if err != nil {
		return Document{}, err
	}
	return parseDocument(rewritten.Text, rewritten.Instructions)
}

// LoadWithRuntimeContext implements spec.md §4.4 mode 2: inject the
// rendered runtime-context tree by resolving `runtime.*` references before
// the instruction-rewriting and parsing pipeline runs. This is what a
// Controller calls to re-evaluate a stack's configuration ahead of batch
// k>0, after batch k-1's outputs are known.
func LoadWithRuntimeContext(source string, rt kv.RuntimeContext, resolver Resolver) (Document, error) {
	tree, err := runtimeTreeAsMap(rt)
	if err != nil {
		return Document{}, fmt.Errorf("%w: rendering runtime context: %v", model.ErrConfig, err)
	}
	withRuntime := RewriteRuntimeRefs(source, tree)
	return LoadPlain(withRuntime, resolver)
}

func runtimeTreeAsMap(rt kv.RuntimeContext) (map[string]any, error) {
	b, err := json.Marshal(rt)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// sourceDocument mirrors the top-level shape of a g8r configuration file.
// rosters/duties are decoded as raw JSON because each field accepts more
// than one shape (spec.md §4.4): `rosters` is a list or a single `roster`,
// and `duties` is a list or a mapping keyed by name.
type sourceDocument struct {
	Rosters json.RawMessage `json:"rosters"`
	Roster  json.RawMessage `json:"roster"`
	Duties  json.RawMessage `json:"duties"`
}

// decodeRosters accepts either or both of a `rosters` list and a singular
// `roster` entry, concatenating them.
func decodeRosters(list, single json.RawMessage) ([]sourceRoster, error) {
	var rosters []sourceRoster
	if len(bytes.TrimSpace(list)) > 0 {
		if err := json.Unmarshal(list, &rosters); err != nil {
			return nil, fmt.Errorf("%w: parsing rosters: %v", model.ErrConfig, err)
		}
	}
	if len(bytes.TrimSpace(single)) > 0 {
		var r sourceRoster
		if err := json.Unmarshal(single, &r); err != nil {
			return nil, fmt.Errorf("%w: parsing roster: %v", model.ErrConfig, err)
		}
		rosters = append(rosters, r)
	}
	return rosters, nil
}

// decodeDuties accepts either a `duties` list or a mapping keyed by name.
// In the mapping form, an entry that omits its own `name` field takes the
// mapping key as its name; mapping keys are visited in sorted order so the
// resulting duty list is deterministic.
func decodeDuties(raw json.RawMessage) ([]sourceDuty, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}

	switch trimmed[0] {
	case '[':
		var duties []sourceDuty
		if err := json.Unmarshal(raw, &duties); err != nil {
			return nil, fmt.Errorf("%w: parsing duties list: %v", model.ErrConfig, err)
		}
		return duties, nil
	case '{':
		var mapping map[string]sourceDuty
		if err := json.Unmarshal(raw, &mapping); err != nil {
			return nil, fmt.Errorf("%w: parsing duties mapping: %v", model.ErrConfig, err)
		}
		names := make([]string, 0, len(mapping))
		for name := range mapping {
			names = append(names, name)
		}
		sort.Strings(names)

		duties := make([]sourceDuty, 0, len(mapping))
		for _, name := range names {
			d := mapping[name]
			if d.Name == "" {
				d.Name = name
			}
			duties = append(duties, d)
		}
		return duties, nil
	default:
		return nil, fmt.Errorf("%w: duties must be a list or a mapping keyed by name", model.ErrConfig)
	}
}

type sourceRoster struct {
	Name       string            `json:"name"`
	RosterType string            `json:"roster_type"`
	Traits     []string          `json:"traits"`
	Connection map[string]any    `json:"connection"`
	Auth       map[string]any    `json:"auth"`
	Metadata   map[string]string `json:"metadata"`
}

type sourceDuty struct {
	Name       string         `json:"name"`
	DutyType   string         `json:"duty_type"`
	Backend    string         `json:"backend"`
	RosterType string         `json:"roster_type"`
	Traits     []string       `json:"traits"`
	Spec       map[string]any `json:"spec"`
	DependsOn  []string       `json:"depends_on"`
}

// parseDocument parses rewritten JSON-superset text into rosters and
// duties, then attaches each unresolved instruction to the duty whose spec
// subtree contains its placeholder token, recording the dotted path
// relative to that duty's spec (spec.md §4.4 "target_path").
func parseDocument(jsonText string, instructions []model.Instruction) (Document, error) {
	var doc sourceDocument
	if err := json.Unmarshal([]byte(jsonText), &doc); err != nil {
		return Document{}, fmt.Errorf("%w: parsing evaluated configuration: %v", model.ErrConfig, err)
	}

	sourceRosters, err := decodeRosters(doc.Rosters, doc.Roster)
	if err != nil {
		return Document{}, err
	}
	sourceDuties, err := decodeDuties(doc.Duties)
	if err != nil {
		return Document{}, err
	}

	tokenSet := make(map[string]*model.Instruction, len(instructions))
	byToken := make(map[string]*model.Instruction, len(instructions))
	for i := range instructions {
		tokenSet[instructions[i].Token] = &instructions[i]
		byToken[instructions[i].Token] = &instructions[i]
	}

	rosters := make([]model.Roster, 0, len(sourceRosters))
	for _, r := range sourceRosters {
		rosters = append(rosters, model.Roster{
			Name:       r.Name,
			RosterType: r.RosterType,
			Traits:     model.NormalizeTraits(r.Traits),
			Connection: r.Connection,
			Auth:       r.Auth,
			Metadata:   r.Metadata,
		})
	}

	duties := make([]model.Duty, 0, len(sourceDuties))
	unclaimed := make(map[string]bool, len(instructions))
	for tok := range tokenSet {
		unclaimed[tok] = true
	}

	for _, d := range sourceDuties {
		found := make(map[string]string)
		findTokenPaths(d.Spec, "", tokenSet, found)

		var dutyInstructions []model.Instruction
		for tok, path := range found {
			inst := *byToken[tok]
			inst.TargetPath = path
			dutyInstructions = append(dutyInstructions, inst)
			delete(unclaimed, tok)
		}
		sort.Slice(dutyInstructions, func(i, j int) bool {
			return dutyInstructions[i].Token < dutyInstructions[j].Token
		})

		duties = append(duties, model.Duty{
			Name:     d.Name,
			DutyType: d.DutyType,
			Backend:  d.Backend,
			RosterSelector: model.RosterSelector{
				Traits:     model.NormalizeTraits(d.Traits),
				RosterType: d.RosterType,
			},
			Spec: d.Spec,
			Metadata: model.DutyMetadata{
				DependsOn:    d.DependsOn,
				Instructions: dutyInstructions,
			},
		})
	}

	if len(unclaimed) > 0 {
		return Document{}, fmt.Errorf("%w: %d instruction token(s) did not land in any duty spec", model.ErrConfig, len(unclaimed))
	}

	return Document{Rosters: rosters, Duties: duties}, nil
}

// findTokenPaths walks a parsed JSON value looking for string leaves that
// match one of tokens, recording the dotted path (relative to root) at
// which each was found.
func findTokenPaths(node any, prefix string, tokens map[string]*model.Instruction, found map[string]string) {
	switch v := node.(type) {
	case map[string]any:
		for k, val := range v {
			p := k
			if prefix != "" {
				p = prefix + "." + k
			}
			findTokenPaths(val, p, tokens, found)
		}
	case []any:
		for i, val := range v {
			p := fmt.Sprintf("%s[%d]", prefix, i)
			findTokenPaths(val, p, tokens, found)
		}
	case string:
		if _, ok := tokens[v]; ok {
			found[v] = prefix
		}
	}
}
