package agent

import "github.com/ppiankov/signalwatch/internal/model"

// defaultRefPatterns returns the built-in identifier formats a source family
// publishes, as a fresh map so callers may add to it
func defaultRefPatterns(sourceType string) map[string]string {
	out := make(map[string]string)
	for _, f := range model.EntityFamilies {
		if f.SourceType == sourceType {
			out[f.Key] = f.Pattern.String()
		}
	}
	return out
}
