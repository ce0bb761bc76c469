package classify

import (
	"regexp"
	"strings"

	"github.com/ppiankov/signalwatch/internal/model"
)

type themeRule struct {
	theme    model.Theme
	keywords []string
}

// checked in order; the first theme with a hit wins
var themeRules = []themeRule{
	{model.ThemeLegal, []string{"court", "lawsuit", "litigation", "ruling", "appeal", "judge", "opinion", "settlement", "plaintiff"}},
	{model.ThemeLegislation, []string{"bill", "act", "amendment", "legislation", "introduced", "passed", "senate", "house", "congress"}},
	{model.ThemeOversight, []string{"inspector general", "oig", "audit", "investigation", "subpoena", "whistleblower", "oversight", "gao", "accountability"}},
	{model.ThemeHealthcare, []string{"hospital", "clinic", "patient", "medical", "health care", "healthcare", "mental health", "suicide", "community care", "wait time"}},
	{model.ThemeBenefits, []string{"benefit", "disability", "compensation", "pension", "claims", "gi bill", "backlog", "appeals"}},
	{model.ThemeTechnology, []string{"electronic health record", "ehr", "software", "it system", "modernization", "cyber", "data breach"}},
	{model.ThemeWorkforce, []string{"staffing", "workforce", "hiring", "employees", "vacancies", "shortage", "union"}},
	{model.ThemeBudget, []string{"budget", "appropriation", "funding", "spending", "shortfall", "fiscal"}},
}

var themeMatchers = compileThemeRules()

type themeMatcher struct {
	theme model.Theme
	re    *regexp.Regexp
}

func compileThemeRules() []themeMatcher {
	out := make([]themeMatcher, 0, len(themeRules))
	for _, r := range themeRules {
		quoted := make([]string, len(r.keywords))
		for i, k := range r.keywords {
			quoted[i] = regexp.QuoteMeta(k)
		}
		out = append(out, themeMatcher{
			theme: r.theme,
			re:    regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)s?\b`),
		})
	}
	return out
}

// sourceThemes is the fallback when no keyword matches
var sourceThemes = map[string]model.Theme{
	"gao":      model.ThemeOversight,
	"oig":      model.ThemeOversight,
	"crs":      model.ThemeOversight,
	"bill":     model.ThemeLegislation,
	"congress": model.ThemeLegislation,
	"hearing":  model.ThemeOversight,
	"court":    model.ThemeLegal,
}

// Theme assigns an event to the taxonomy from its title, falling back to the
// content and then to the source type's default. Nil means unclassified.
func Theme(title, content, sourceType string) *model.Theme {
	for _, text := range []string{title, content} {
		text = strings.ToLower(text)
		if text == "" {
			continue
		}
		for _, m := range themeMatchers {
			if m.re.MatchString(text) {
				t := m.theme
				return &t
			}
		}
	}
	if t, ok := sourceThemes[strings.ToLower(sourceType)]; ok {
		return &t
	}
	return nil
}
