// Package normalize maps raw extracted offer values to canonical enumerations and a monthly salary basis.
package normalize

import (
	"regexp"
	"strings"

	"github.com/jonathan/offer-ingest/internal/types"
)

// wordPattern wraps alternatives in letter-aware boundaries; \b is ASCII-only and misses Polish diacritics.
func wordPattern(alternatives ...string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}])(?:` + strings.Join(alternatives, "|") + `)(?:$|[^\p{L}\p{N}])`)
}

type levelFamily struct {
	level   types.Level
	pattern *regexp.Regexp
}

// levelFamilies is ordered from the highest rank down.
var levelFamilies = []levelFamily{
	{types.LevelLead, wordPattern(
		`lead`, `leader`, `team[\s-]?lead`, `tech[\s-]?lead`, `principal`, `head of`, `manager`,
		`director`, `vp`, `c[\s-]level`, `cto`, `ceo`, `cio`, `cfo`, `chief`, `kierownik`, `lider`, `dyrektor`, `menedżer`, `menedzer`,
	)},
	{types.LevelSenior, wordPattern(
		`senior`, `sr\.?`, `starszy`, `starsza`, `ekspert`, `expert`,
	)},
	{types.LevelMid, wordPattern(
		`mid`, `mid[\s-]level`, `middle`, `regular`, `intermediate`, `specjalista`, `specjalistka`,
	)},
	{types.LevelJunior, wordPattern(
		`junior`, `jr\.?`, `młodszy`, `mlodszy`, `młodsza`, `mlodsza`, `entry[\s-]level`, `asystent`, `asystentka`, `graduate`,
	)},
	{types.LevelInternship, wordPattern(
		`intern`, `internship`, `trainee`, `apprentice`, `staż`, `staz`, `stażysta`, `stazysta`, `stażystka`,
		`praktykant`, `praktykantka`, `praktyki`,
	)},
}

// InferLevel returns the highest-ranked seniority mentioned in any of texts.
func InferLevel(texts ...string) types.Level {
	best := types.LevelUnknown
	for _, text := range texts {
		if text == "" {
			continue
		}
		for _, family := range levelFamilies {
			if family.level.Rank() <= best.Rank() {
				break
			}
			if family.pattern.MatchString(text) {
				best = family.level
				break
			}
		}
	}
	return best
}

// CoerceLevel keeps canonical levels and infers the rest from their text.
func CoerceLevel(l types.Level) types.Level {
	switch types.Level(strings.ToUpper(strings.TrimSpace(string(l)))) {
	case types.LevelInternship, types.LevelJunior, types.LevelMid, types.LevelSenior, types.LevelLead:
		return types.Level(strings.ToUpper(strings.TrimSpace(string(l))))
	}
	return InferLevel(string(l))
}
