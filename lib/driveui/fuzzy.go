// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package driveui

import (
	"strings"

	"github.com/junegunn/fzf/src/algo"
	"github.com/junegunn/fzf/src/util"
)

// fuzzyScore scores text against a lowercase pattern with fzf's
// algorithm. Zero means no match. Matching ignores case.
func fuzzyScore(text string, pattern []rune, slab *util.Slab) int {
	if len(pattern) == 0 {
		return 0
	}
	chars := util.ToChars([]byte(strings.ToLower(text)))
	result, _ := algo.FuzzyMatchV2(false, true, true, &chars, pattern, false, slab)
	return result.Score
}
