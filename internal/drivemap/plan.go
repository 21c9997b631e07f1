package drivemap

import "strings"

// samePath compares UNC paths case-insensitively, ignoring a trailing
// backslash.
func samePath(a, b string) bool {
	return strings.EqualFold(strings.TrimRight(a, `\`), strings.TrimRight(b, `\`))
}

// BuildPlan reconciles desired mappings against the machine's current drive
// state. Per mapping: an exact (letter, path) match is a no-op; a drive at
// the same letter with a different path, or the same path mounted at a
// different letter, is removed before the create. When removeStale is set,
// network drives absent from the desired set are removed too; local and
// removable drives are never touched.
func BuildPlan(desired []Mapping, current []DriveState, removeStale bool) Plan {
	var plan Plan

	desiredLetters := make(map[string]bool, len(desired))
	for _, m := range desired {
		desiredLetters[m.DriveLetter] = true
	}

	for i := range desired {
		m := desired[i]

		exact := false
		var conflicts []string
		for _, d := range current {
			sameLetter := strings.EqualFold(d.Letter, m.DriveLetter)
			if sameLetter && d.Network && samePath(d.Path, m.Path) {
				exact = true
				break
			}
			if sameLetter {
				conflicts = append(conflicts, d.Letter)
				continue
			}
			// The same share mounted elsewhere would leave two letters
			// pointing at one path; remove it so the desired letter wins.
			if d.Network && samePath(d.Path, m.Path) {
				conflicts = append(conflicts, d.Letter)
			}
		}

		if exact {
			plan.AlreadyCorrect = append(plan.AlreadyCorrect, m)
			continue
		}
		for _, letter := range conflicts {
			plan.Actions = append(plan.Actions, Action{Kind: ActionRemoveConflict, Letter: letter})
		}
		plan.Actions = append(plan.Actions, Action{Kind: ActionCreate, Letter: m.DriveLetter, Mapping: &desired[i]})
	}

	if removeStale {
		for _, d := range current {
			if !d.Network || desiredLetters[strings.ToUpper(d.Letter)] {
				continue
			}
			if !strings.HasPrefix(d.Path, `\\`) {
				continue
			}
			plan.Actions = append(plan.Actions, Action{Kind: ActionRemoveStale, Letter: d.Letter})
		}
	}

	return plan
}
