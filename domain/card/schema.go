package card

import "fmt"

// ValidatePushcard checks the required-field subset of pushcard.schema.json.
// No JSON-schema library appears anywhere in the example corpus, so this
// is a small hand-rolled structural check rather than a dropped concern;
// failures degrade (caller marks states.degrade=true) rather than drop
// the card.
func ValidatePushcard(pc Pushcard) []string {
	var problems []string

	if pc.Type == "" {
		problems = append(problems, "type is required")
	}
	if pc.EventKey == "" {
		problems = append(problems, "event_key is required")
	}
	if pc.RiskLevel == "" {
		problems = append(problems, "risk_level is required")
	} else if !validRiskLevel(pc.RiskLevel) {
		problems = append(problems, fmt.Sprintf("risk_level %q is not one of green|yellow|gray|red", pc.RiskLevel))
	}
	if pc.Rendered == nil || (pc.Rendered["tg"] == "" && pc.Rendered["ui"] == "") {
		problems = append(problems, "rendered must contain at least one of tg/ui")
	}
	if pc.VerifyPath == "" {
		problems = append(problems, "verify_path is required")
	}

	return problems
}

func validRiskLevel(level string) bool {
	switch level {
	case "green", "yellow", "gray", "red":
		return true
	default:
		return false
	}
}
