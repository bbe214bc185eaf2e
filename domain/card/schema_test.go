package card

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validPushcard() Pushcard {
	return Pushcard{
		Type:       "primary",
		EventKey:   "abc123",
		RiskLevel:  "green",
		VerifyPath: "/",
		Rendered:   map[string]string{"tg": "hello"},
	}
}

func TestValidatePushcardAcceptsWellFormed(t *testing.T) {
	assert.Empty(t, ValidatePushcard(validPushcard()))
}

func TestValidatePushcardRejectsMissingEventKey(t *testing.T) {
	pc := validPushcard()
	pc.EventKey = ""
	problems := ValidatePushcard(pc)
	assert.NotEmpty(t, problems)
}

func TestValidatePushcardRejectsBadRiskLevel(t *testing.T) {
	pc := validPushcard()
	pc.RiskLevel = "purple"
	problems := ValidatePushcard(pc)
	assert.NotEmpty(t, problems)
}

func TestValidatePushcardRejectsEmptyRendered(t *testing.T) {
	pc := validPushcard()
	pc.Rendered = map[string]string{}
	problems := ValidatePushcard(pc)
	assert.NotEmpty(t, problems)
}
