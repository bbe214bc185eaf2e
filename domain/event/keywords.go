package event

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2s"
)

// ExtractTopicKeywords is the fallback keyword extractor used when no ML
// keyphrase collaborator supplied post.Keywords. It prioritizes $token
// symbols, then short 2-3 character words, then anything remaining, and
// returns at most topK entries sorted for determinism.
func ExtractTopicKeywords(keywords []string, topK int) []string {
	if len(keywords) == 0 {
		return nil
	}
	if topK <= 0 {
		topK = 5
	}

	seen := make(map[string]bool, len(keywords))
	var normalized []string

	appendIfRoom := func(kw string) bool {
		if len(normalized) >= topK {
			return false
		}
		normalized = append(normalized, kw)
		seen[kw] = true
		return len(normalized) < topK
	}

	for _, kw := range keywords {
		lowered := strings.ToLower(strings.TrimSpace(kw))
		if lowered == "" || seen[lowered] {
			continue
		}
		if strings.HasPrefix(lowered, "$") {
			if !appendIfRoom(lowered) {
				break
			}
		}
	}

	if len(normalized) < topK {
		for _, kw := range keywords {
			lowered := strings.ToLower(strings.TrimSpace(kw))
			if lowered == "" || seen[lowered] || strings.HasPrefix(lowered, "$") {
				continue
			}
			if len(lowered) >= 2 && len(lowered) <= 3 {
				if !appendIfRoom(lowered) {
					break
				}
			}
		}
	}

	if len(normalized) < topK {
		for _, kw := range keywords {
			lowered := strings.ToLower(strings.TrimSpace(kw))
			if lowered == "" || seen[lowered] {
				continue
			}
			if !appendIfRoom(lowered) {
				break
			}
		}
	}

	return TopKeywords(normalized, topK)
}

// TopicHash computes a short content hash over normalized keywords,
// joined with "||", defaulting to blake2s (matching the original
// implementation's hash selection) with sha256 as the named alternative.
// Returns the first 12 hex characters.
func TopicHash(keywords []string, algo string) string {
	content := "none"
	if len(keywords) > 0 {
		content = strings.Join(keywords, "||")
	}

	var digest []byte
	switch algo {
	case "sha256":
		digest = sha256Sum(content)
	default:
		digest = blake2sSum(content)
	}
	return hex.EncodeToString(digest)[:12]
}

func blake2sSum(content string) []byte {
	sum := blake2s.Sum256([]byte(content))
	return sum[:]
}

func sha256Sum(content string) []byte {
	sum := sha256.Sum256([]byte(content))
	return sum[:]
}
