package handlers

import (
	"fmt"
	"strings"

	"scmigrate/models"
)

// Validation collects every violation instead of stopping at the first, so
// the trigger author sees the full list in one rejection.

func validateIntake(p *models.IntakePayload, wantSessionType string) []string {
	var violations []string
	violations = appendStringViolation(violations, "SessionID", p.SessionID)
	violations = appendStringViolation(violations, "Name", p.Name)

	switch {
	case p.SessionType == nil:
		violations = append(violations, "SessionType (missing)")
	case strings.TrimSpace(*p.SessionType) == "":
		violations = append(violations, "SessionType (empty)")
	case *p.SessionType != wantSessionType:
		violations = append(violations, fmt.Sprintf("SessionType (expected %q, got %q)", wantSessionType, *p.SessionType))
	}
	return violations
}

func validateResult(p *models.ResultPayload) []string {
	var violations []string
	violations = appendStringViolation(violations, "sessionId", p.SessionID)
	if p.Success == nil {
		violations = append(violations, "success (missing)")
	}
	return violations
}

func appendStringViolation(violations []string, field string, value *string) []string {
	switch {
	case value == nil:
		return append(violations, field+" (missing)")
	case strings.TrimSpace(*value) == "":
		return append(violations, field+" (empty)")
	default:
		return violations
	}
}

func joinViolations(violations []string) string {
	return strings.Join(violations, ", ")
}
