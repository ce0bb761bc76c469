package escalation

import "github.com/ppiankov/signalwatch/internal/model"

func sig(pattern string, mode model.MatchMode, severity model.Severity, description string) model.EscalationSignal {
	return model.EscalationSignal{Pattern: pattern, Type: mode, Severity: severity, Description: description, Active: true}
}

// DefaultSignals is the library seeded into an empty store
func DefaultSignals() []model.EscalationSignal {
	return []model.EscalationSignal{
		// critical
		sig("criminal referral", model.MatchPhrase, model.SeverityCritical, "Matter referred for criminal prosecution"),
		sig("indictment", model.MatchKeyword, model.SeverityCritical, "Criminal charges filed"),
		sig("indicted", model.MatchKeyword, model.SeverityCritical, "Criminal charges filed"),
		sig("patient death", model.MatchPhrase, model.SeverityCritical, "Death linked to care failure"),
		sig("data breach", model.MatchPhrase, model.SeverityCritical, "Exposure of protected records"),
		sig("fraud scheme", model.MatchPhrase, model.SeverityCritical, "Organized fraud"),

		// high
		sig("subpoena", model.MatchKeyword, model.SeverityHigh, "Compulsory process issued"),
		sig("whistleblower", model.MatchKeyword, model.SeverityHigh, "Whistleblower disclosure or retaliation"),
		sig("investigation", model.MatchKeyword, model.SeverityHigh, "Formal investigation opened"),
		sig("contempt", model.MatchKeyword, model.SeverityHigh, "Contempt proceedings"),
		sig("inspector general", model.MatchPhrase, model.SeverityHigh, "Inspector general involvement"),
		sig("class action", model.MatchPhrase, model.SeverityHigh, "Class action litigation"),
		sig("injunction", model.MatchKeyword, model.SeverityHigh, "Court order restraining agency action"),
		sig("resigns", model.MatchKeyword, model.SeverityHigh, "Senior official departure"),

		// medium
		sig("hearing", model.MatchKeyword, model.SeverityMedium, "Congressional hearing"),
		sig("audit", model.MatchKeyword, model.SeverityMedium, "Audit findings"),
		sig("backlog", model.MatchKeyword, model.SeverityMedium, "Processing backlog"),
		sig("improper payments", model.MatchPhrase, model.SeverityMedium, "Improper payment findings"),
		sig("wait times", model.MatchPhrase, model.SeverityMedium, "Access-to-care delays"),
		sig("high-risk list", model.MatchPhrase, model.SeverityMedium, "GAO high-risk designation"),
	}
}
