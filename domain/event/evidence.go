package event

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// trackingParams are stripped from any URL passed through evidence
// canonicalization; they vary by campaign/session and would otherwise
// defeat evidence dedup on an otherwise-identical link.
var trackingParams = map[string]bool{
	"utm_source": true, "utm_medium": true, "utm_campaign": true,
	"utm_term": true, "utm_content": true, "ref": true, "s": true, "t": true,
}

var reTwitterStatus = regexp.MustCompile(`twitter\.com/[^/]+/status/(\d+)`)
var reXStatus = regexp.MustCompile(`x\.com/[^/]+/status/(\d+)`)

// blockExplorerHosts grade as "strong" evidence (on-chain truth).
var blockExplorerHosts = map[string]bool{
	"etherscan.io": true, "bscscan.com": true, "polygonscan.com": true,
	"solscan.io": true, "arbiscan.io": true, "basescan.org": true,
}

// dexAggregatorHosts grade as "medium" evidence (market data, not chain truth).
var dexAggregatorHosts = map[string]bool{
	"dexscreener.com": true, "dextools.io": true, "geckoterminal.com": true,
	"birdeye.so": true,
}

// CanonicalizeRef strips known tracking query parameters from any "url"
// field in ref and, when the URL is a twitter/x status link, extracts its
// tweet_id into the ref map. Returns a new map; the input is not mutated.
func CanonicalizeRef(ref map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(ref))
	for k, v := range ref {
		out[k] = v
	}

	rawURL, ok := out["url"].(string)
	if !ok || rawURL == "" {
		return out
	}

	if parsed, err := url.Parse(rawURL); err == nil {
		q := parsed.Query()
		changed := false
		for param := range q {
			if trackingParams[strings.ToLower(param)] {
				q.Del(param)
				changed = true
			}
		}
		if changed {
			parsed.RawQuery = q.Encode()
			rawURL = parsed.String()
			out["url"] = rawURL
		}
	}

	if _, has := out["tweet_id"]; !has {
		if m := reTwitterStatus.FindStringSubmatch(rawURL); m != nil {
			out["tweet_id"] = m[1]
		} else if m := reXStatus.FindStringSubmatch(rawURL); m != nil {
			out["tweet_id"] = m[1]
		}
	}

	// Once a tweet_id is known, the raw status URL is redundant and varies
	// by tracking params/source; dropping it lets two refs for the same
	// tweet (one seen as a bare id, one as a URL) converge to one dedup key.
	if _, has := out["tweet_id"]; has {
		delete(out, "url")
	}

	return out
}

// GradeStrength classifies a ref's evidentiary strength by host heuristic:
// block explorers are strong (on-chain truth), dex aggregators are medium
// (market data), everything else is weak.
func GradeStrength(ref map[string]interface{}) string {
	rawURL, ok := ref["url"].(string)
	if !ok || rawURL == "" {
		return "weak"
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "weak"
	}
	host := strings.TrimPrefix(strings.ToLower(parsed.Host), "www.")
	if blockExplorerHosts[host] {
		return "strong"
	}
	if dexAggregatorHosts[host] {
		return "medium"
	}
	return "weak"
}

// EvidenceDedupKey computes sha1(source + "|" + sorted-stable-JSON(ref)),
// matching the canonical evidence dedup scheme.
func EvidenceDedupKey(source string, ref map[string]interface{}) string {
	sortedRef := stableJSON(ref)
	content := source + "|" + sortedRef
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

// stableJSON marshals a map with keys in sorted order, recursively, so the
// dedup key is stable regardless of map iteration order.
func stableJSON(v interface{}) string {
	b, err := json.Marshal(sortKeys(v))
	if err != nil {
		return ""
	}
	return string(b)
}

// sortKeys recursively copies map[string]interface{} and []interface{}
// values. It does not reorder anything itself: encoding/json already
// sorts map keys on marshal, which is what makes stableJSON deterministic.
func sortKeys(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, vv := range val {
			out[k] = sortKeys(vv)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, vv := range val {
			out[i] = sortKeys(vv)
		}
		return out
	default:
		return val
	}
}

// DedupEvidence merges existing and incoming evidence according to
// EVENT_MERGE_STRICT semantics:
//   - strict=true (cross-source): union by dedup key, preserving the
//     first occurrence.
//   - strict=false (single-source): keep existing items from
//     currentSource, append new same-source items.
func DedupEvidence(existing, incoming []EvidenceItem, strict bool, currentSource string) []EvidenceItem {
	if strict {
		seen := make(map[string]bool, len(existing)+len(incoming))
		result := make([]EvidenceItem, 0, len(existing)+len(incoming))
		for _, item := range existing {
			key := EvidenceDedupKey(item.Source, item.Ref)
			if !seen[key] {
				seen[key] = true
				result = append(result, item)
			}
		}
		for _, item := range incoming {
			key := EvidenceDedupKey(item.Source, item.Ref)
			if !seen[key] {
				seen[key] = true
				result = append(result, item)
			}
		}
		return result
	}

	result := make([]EvidenceItem, 0, len(existing)+len(incoming))
	for _, item := range existing {
		if item.Source == currentSource {
			result = append(result, item)
		}
	}
	seen := make(map[string]bool, len(result))
	for _, item := range result {
		seen[EvidenceDedupKey(item.Source, item.Ref)] = true
	}
	for _, item := range incoming {
		if item.Source != currentSource {
			continue
		}
		key := EvidenceDedupKey(item.Source, item.Ref)
		if !seen[key] {
			seen[key] = true
			result = append(result, item)
		}
	}
	return result
}

// TopKeywords normalizes, deduplicates, and sorts up to k keywords,
// matching the aggregation used for topic_hash input.
func TopKeywords(keywords []string, k int) []string {
	seen := make(map[string]bool, len(keywords))
	var normalized []string
	for _, kw := range keywords {
		lowered := strings.ToLower(strings.TrimSpace(kw))
		if lowered == "" || seen[lowered] {
			continue
		}
		seen[lowered] = true
		normalized = append(normalized, lowered)
	}
	sort.Strings(normalized)
	if k > 0 && len(normalized) > k {
		normalized = normalized[:k]
	}
	return normalized
}
