package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCandidateScoreUsesSentimentAndKeywordCount(t *testing.T) {
	sentiment := 0.5
	score := CandidateScore(DefaultEnv(), &sentiment, 2)
	// alpha*(sentiment+1)/2 + beta*min(kw,5)/5 = 0.6*0.75 + 0.4*0.4 = 0.61
	assert.InDelta(t, 0.61, score, 0.0001)
}

func TestCandidateScoreNilSentimentTreatedAsNeutral(t *testing.T) {
	score := CandidateScore(DefaultEnv(), nil, 5)
	// 0.6*0.5 + 0.4*1.0 = 0.7
	assert.InDelta(t, 0.7, score, 0.0001)
}

func TestCandidateScoreCapsKeywordCountAtFive(t *testing.T) {
	sentiment := 1.0
	withFive := CandidateScore(DefaultEnv(), &sentiment, 5)
	withTen := CandidateScore(DefaultEnv(), &sentiment, 10)
	assert.Equal(t, withFive, withTen)
}

func TestCandidateScoreClampedToUnitRange(t *testing.T) {
	sentiment := -1.0
	score := CandidateScore(DefaultEnv(), &sentiment, 0)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
}
