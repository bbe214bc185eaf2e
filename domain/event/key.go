package event

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	pipelineerrors "github.com/Tracy625/event-stream-starter-sub001/internal/platform/errors"
)

var (
	reURL        = regexp.MustCompile(`https?://\S+`)
	reWWW        = regexp.MustCompile(`www\.\S+`)
	reBareDomain = regexp.MustCompile(`\b[a-zA-Z0-9][a-zA-Z0-9-]*\.(com|org|net|io|xyz|co|app|tech|ai|dev|finance|eth)[\s,.!?;:]`)
	reHandle     = regexp.MustCompile(`@\w+`)
	reSpaces     = regexp.MustCompile(`\s+`)
	reHexPrefix  = regexp.MustCompile(`^0x[0-9a-f]+$`)
)

// normalizeText lowercases, NFC-normalizes, strips URLs/bare-domains and
// @handles (preserving #hashtags), then collapses whitespace.
func normalizeText(text string) string {
	if text == "" {
		return ""
	}
	lowered := strings.ToLower(text)
	normalized := norm.NFC.String(lowered)
	normalized = reURL.ReplaceAllString(normalized, "")
	normalized = reWWW.ReplaceAllString(normalized, "")
	normalized = reBareDomain.ReplaceAllString(normalized, " ")
	normalized = reHandle.ReplaceAllString(normalized, "")
	normalized = reSpaces.ReplaceAllString(normalized, " ")
	return strings.TrimSpace(normalized)
}

// MakeEventKey deterministically derives an event_key from a Post and the
// active Env. Pure: no clock reads, no randomness. Returns InvalidInput
// when Type is empty.
func MakeEventKey(post Post, env Env) (string, error) {
	typeNorm := strings.ToLower(strings.TrimSpace(post.Type))
	if typeNorm == "" {
		return "", pipelineerrors.InvalidInput("type", "post type is required")
	}

	symbolNorm := strings.ToUpper(strings.TrimSpace(post.Symbol))

	tokenCANorm := strings.ToLower(strings.TrimSpace(post.TokenCA))
	if tokenCANorm != "" && !reHexPrefix.MatchString(tokenCANorm) {
		// Normalization still proceeds; callers are expected to log this
		// at the call site where a logger with trace context is available.
	}

	textNorm := normalizeText(post.Text)

	bucketSec := env.TimeBucketSec
	if bucketSec <= 0 {
		bucketSec = 300
	}
	createdTS := post.CreatedTS
	if createdTS.IsZero() {
		createdTS = time.Unix(0, 0).UTC()
	}
	bucket := (createdTS.Unix() / int64(bucketSec)) * int64(bucketSec)

	var preimage string
	switch env.KeyVersion {
	case "v2":
		preimage = fmt.Sprintf("%s|%s|%s|%s|%d|%s|%s", typeNorm, symbolNorm, tokenCANorm, textNorm, bucket, env.Salt, post.ChainID)
	default:
		preimage = fmt.Sprintf("%s|%s|%s|%s|%d|%s", typeNorm, symbolNorm, tokenCANorm, textNorm, bucket, env.Salt)
	}

	sum := sha256.Sum256([]byte(preimage))
	return hex.EncodeToString(sum[:])[:40], nil
}

// TokenCAHasValidPrefix reports whether a normalized token contract
// address looks like a well-formed 0x-prefixed hex string, purely for the
// caller's own warning-log decision.
func TokenCAHasValidPrefix(tokenCA string) bool {
	normalized := strings.ToLower(strings.TrimSpace(tokenCA))
	if normalized == "" {
		return true
	}
	return reHexPrefix.MatchString(normalized)
}
