package normalize

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jonathan/offer-ingest/internal/types"
)

// tagAliases maps common tag variants to canonical names
var tagAliases = map[string]string{
	"golang":     "Go",
	"go lang":    "Go",
	"javascript": "JavaScript",
	"js":         "JavaScript",
	"typescript": "TypeScript",
	"ts":         "TypeScript",
	"k8s":        "Kubernetes",
	"kubernetes": "Kubernetes",
	"react":      "React",
	"react.js":   "React",
	"reactjs":    "React",
	"vue":        "Vue",
	"vue.js":     "Vue",
	"vuejs":      "Vue",
	"angular":    "Angular",
	"angularjs":  "Angular",
	"node":       "Node.js",
	"node.js":    "Node.js",
	"nodejs":     "Node.js",
	"postgres":   "PostgreSQL",
	"postgresql": "PostgreSQL",
	"psql":       "PostgreSQL",
	"mongo":      "MongoDB",
	"mongodb":    "MongoDB",
	"aws":        "AWS",
	"gcp":        "GCP",
	"azure":      "Azure",
	"c#":         "C#",
	"csharp":     "C#",
	".net":       ".NET",
	"dotnet":     ".NET",
	"c++":        "C++",
	"cpp":        "C++",
	"python":     "Python",
	"java":       "Java",
	"kotlin":     "Kotlin",
	"docker":     "Docker",
	"terraform":  "Terraform",
	"sql":        "SQL",
	"nosql":      "NoSQL",
	"ci/cd":      "CI/CD",
	"cicd":       "CI/CD",
	"spring":     "Spring",
	"springboot": "Spring Boot",
}

const maxTagLength = 40

var (
	tagWhitespace = regexp.MustCompile(`\s+`)
	manyDigits    = regexp.MustCompile(`\d{3,}`)

	noiseVocabulary = wordPattern(
		// salary
		`pln`, `eur`, `usd`, `gbp`, `zł`, `salary`, `wynagrodzenie`, `brutto`, `netto`, `gross`, `per month`,
		// contract
		`b2b`, `uop`, `umowa`, `contract`, `zlecenie`, `dzieło`, `dzielo`, `kontrakt`, `permanent`,
		// seniority
		`intern`, `junior`, `mid`, `regular`, `senior`, `lead`, `staż`, `staz`, `trainee`,
	)

	languageNames = wordPattern(
		`english`, `polish`, `german`, `french`, `spanish`, `italian`, `ukrainian`, `russian`, `dutch`, `czech`,
		`angielski`, `polski`, `niemiecki`, `francuski`, `hiszpański`, `hiszpanski`, `włoski`, `wloski`,
		`ukraiński`, `ukrainski`, `rosyjski`, `niderlandzki`, `czeski`,
	)
)

// NormalizeTag trims and collapses whitespace and maps known aliases to their canonical name.
func NormalizeTag(tag string) string {
	cleaned := strings.TrimSpace(tagWhitespace.ReplaceAllString(tag, " "))
	if cleaned == "" {
		return ""
	}
	if canonical, ok := tagAliases[strings.ToLower(cleaned)]; ok {
		return canonical
	}
	return cleaned
}

// PlausibleTag rejects strings that are not technology names: overly long text, salary,
// contract or seniority vocabulary, long digit runs and spoken-language names.
func PlausibleTag(tag string) bool {
	if tag == "" || utf8.RuneCountInString(tag) > maxTagLength {
		return false
	}
	if manyDigits.MatchString(tag) {
		return false
	}
	if noiseVocabulary.MatchString(tag) || languageNames.MatchString(tag) {
		return false
	}
	return true
}

// NormalizeSkills canonicalises skill names, drops implausible ones and de-duplicates
// case-insensitively keeping the first occurrence.
func NormalizeSkills(skills []types.Skill) []types.Skill {
	if len(skills) == 0 {
		return nil
	}

	out := make([]types.Skill, 0, len(skills))
	seen := make(map[string]int)
	for _, s := range skills {
		name := NormalizeTag(s.Name)
		if !PlausibleTag(name) {
			continue
		}
		key := strings.ToLower(name)
		if idx, exists := seen[key]; exists {
			if out[idx].Proficiency == "" && s.Proficiency != "" {
				out[idx].Proficiency = strings.TrimSpace(s.Proficiency)
				out[idx].Ordinal = s.Ordinal
			}
			continue
		}
		out = append(out, types.Skill{
			Name:        name,
			Proficiency: strings.TrimSpace(s.Proficiency),
			Ordinal:     s.Ordinal,
			Provenance:  s.Provenance,
		})
		seen[key] = len(out) - 1
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// TagsFromSkills returns skill names in order, used as the denormalised tag list.
func TagsFromSkills(skills []types.Skill) []string {
	if len(skills) == 0 {
		return nil
	}
	tags := make([]string, 0, len(skills))
	for _, s := range skills {
		tags = append(tags, s.Name)
	}
	return tags
}

// SkillsFromTags wraps plain tag strings as skills with the given provenance.
func SkillsFromTags(tags []string, provenance string) []types.Skill {
	skills := make([]types.Skill, 0, len(tags))
	for _, t := range tags {
		skills = append(skills, types.Skill{Name: t, Provenance: provenance})
	}
	return skills
}
