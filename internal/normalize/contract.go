package normalize

import (
	"regexp"
	"strings"

	"github.com/jonathan/offer-ingest/internal/types"
)

var contractFamilies = map[types.ContractType]*regexp.Regexp{
	types.ContractB2B: wordPattern(
		`b2b`, `business[\s-]to[\s-]business`, `kontrakt`, `self[\s-]employ(?:ed|ment)?`, `contractor`,
	),
	types.ContractEmployment: wordPattern(
		`umow[ay] o prac[ęe]`, `uop`, `u\.o\.p\.?`, `employment(?:[\s_-]contract)?`, `contract of employment`,
		`permanent`, `etat`, `pełny etat`, `full[\s-]time employment`,
	),
	types.ContractMandate: wordPattern(
		`zlecenie`, `umow[ay] zlecenie`, `uz`, `mandate(?:[\s_-]contract)?`, `contract of mandate`,
	),
	types.ContractSpecificTask: wordPattern(
		`o dzieło`, `o dzielo`, `dzieło`, `dzielo`, `uod`, `specific[\s_-]task(?:[\s_-]contract)?`,
		`contract for (?:a )?specific (?:work|task)`, `task[\s-]based`,
	),
}

// InferContracts returns every contract family mentioned in texts, ordered by preference,
// and the preferred one as main.
func InferContracts(texts ...string) (types.ContractType, []types.ContractType) {
	found := make(map[types.ContractType]bool)
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		for contract, pattern := range contractFamilies {
			if pattern.MatchString(text) {
				found[contract] = true
			}
		}
	}
	all := orderContracts(found)
	if len(all) == 0 {
		return "", nil
	}
	return all[0], all
}

// ParseContract maps one label to a contract type; ok is false for unrecognised labels.
func ParseContract(label string) (types.ContractType, bool) {
	switch types.ContractType(strings.ToUpper(strings.TrimSpace(label))) {
	case types.ContractB2B, types.ContractEmployment, types.ContractMandate, types.ContractSpecificTask:
		return types.ContractType(strings.ToUpper(strings.TrimSpace(label))), true
	}
	main, _ := InferContracts(label)
	return main, main != ""
}

func orderContracts(found map[types.ContractType]bool) []types.ContractType {
	var out []types.ContractType
	for _, c := range types.ContractPreference {
		if found[c] {
			out = append(out, c)
		}
	}
	return out
}
