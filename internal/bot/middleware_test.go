package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"telegram-shop-bot/internal/config"
)

func TestChatWhitelistProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numChats := rapid.IntRange(1, 10).Draw(t, "numChats")
		chats := make([]int64, numChats)
		for i := range chats {
			chats[i] = rapid.Int64Range(-1000000000, 1000000000).Draw(t, "chatID")
		}

		cfg := &config.Config{
			Whitelist: config.WhitelistConfig{Chats: chats},
		}

		probed := rapid.Int64Range(-1000000000, 1000000000).Draw(t, "probedID")

		listed := false
		for _, id := range chats {
			if id == probed {
				listed = true
				break
			}
		}
		if cfg.IsChatAllowed(probed) != listed {
			t.Fatalf("chat %d: allowed=%v, listed=%v, whitelist=%v",
				probed, cfg.IsChatAllowed(probed), listed, chats)
		}
	})
}

func TestEmptyWhitelistAllowsEveryChat(t *testing.T) {
	cfg := &config.Config{}

	assert.True(t, cfg.IsChatAllowed(1))
	assert.True(t, cfg.IsChatAllowed(-1001234567890))
	assert.True(t, cfg.IsChatAllowed(0))
}

func TestWhitelistedChatAllowsOnlyListed(t *testing.T) {
	cfg := &config.Config{
		Whitelist: config.WhitelistConfig{Chats: []int64{-1001234567890}},
	}

	assert.True(t, cfg.IsChatAllowed(-1001234567890))
	assert.False(t, cfg.IsChatAllowed(-1009999999999))
	assert.False(t, cfg.IsChatAllowed(42))
}
