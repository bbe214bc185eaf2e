package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMakeEventKeyDeterministic(t *testing.T) {
	env := Env{Salt: "pepper", KeyVersion: "v1", TimeBucketSec: 300}
	post := Post{
		Type:      "x",
		Symbol:    " pepe ",
		TokenCA:   "0xABC123",
		Text:      "Check out https://t.co/xyz $PEPE is pumping @someone",
		CreatedTS: time.Unix(1700000000, 0).UTC(),
	}

	key1, err := MakeEventKey(post, env)
	assert.NoError(t, err)
	key2, err := MakeEventKey(post, env)
	assert.NoError(t, err)
	assert.Equal(t, key1, key2)
	assert.Len(t, key1, 40)
}

func TestMakeEventKeyRequiresType(t *testing.T) {
	_, err := MakeEventKey(Post{}, Env{})
	assert.Error(t, err)
}

func TestMakeEventKeyV2FoldsChainID(t *testing.T) {
	base := Post{Type: "x", Symbol: "ABC", CreatedTS: time.Unix(1700000000, 0).UTC()}
	withChain := base
	withChain.ChainID = "eth"

	env := Env{KeyVersion: "v2", TimeBucketSec: 300}
	keyNoChain, _ := MakeEventKey(base, env)
	keyWithChain, _ := MakeEventKey(withChain, env)
	assert.NotEqual(t, keyNoChain, keyWithChain)
}

func TestNormalizeTextStripsURLsHandlesPreservesHashtags(t *testing.T) {
	in := "Hey @alice check https://example.com/path and www.foo.io #moon"
	out := normalizeText(in)
	assert.NotContains(t, out, "@alice")
	assert.NotContains(t, out, "https://")
	assert.Contains(t, out, "#moon")
}

func TestTokenCAHasValidPrefix(t *testing.T) {
	assert.True(t, TokenCAHasValidPrefix("0xabc123"))
	assert.False(t, TokenCAHasValidPrefix("abc123"))
	assert.True(t, TokenCAHasValidPrefix(""))
}
