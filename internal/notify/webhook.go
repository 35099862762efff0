// Package notify sends solved block announcements to chat webhooks.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tos-network/tos-reporter/internal/config"
	"github.com/tos-network/tos-reporter/internal/storage"
	"github.com/tos-network/tos-reporter/internal/util"
)

// Retry configuration
const (
	MaxRetries     = 3
	RetryBaseDelay = 2 * time.Second
	RateLimitDelay = 5 * time.Second

	telegramAPI = "https://api.telegram.org"

	// Base units per coin for display
	coinUnits = 1e8
)

// Notifier handles sending notifications
type Notifier struct {
	cfg    *config.NotifyConfig
	client *http.Client

	telegramAPI string
	retryDelay  time.Duration
	rateDelay   time.Duration

	wg sync.WaitGroup
}

// NewNotifier creates a new notifier
func NewNotifier(cfg *config.NotifyConfig) *Notifier {
	return &Notifier{
		cfg: cfg,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		telegramAPI: telegramAPI,
		retryDelay:  RetryBaseDelay,
		rateDelay:   RateLimitDelay,
	}
}

// NotifyBlockSolved announces a solved block on every configured channel.
// Sends run in the background.
func (n *Notifier) NotifyBlockSolved(block *storage.SolvedBlock) {
	if n == nil || !n.cfg.Enabled || block == nil {
		return
	}

	if n.cfg.DiscordURL != "" {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.sendDiscordNotification(block)
		}()
	}

	if n.cfg.TelegramBot != "" && n.cfg.TelegramChat != "" {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.sendTelegramNotification(block)
		}()
	}
}

// Wait blocks until pending notifications have been sent or given up
func (n *Notifier) Wait() {
	if n != nil {
		n.wg.Wait()
	}
}

// DiscordEmbed represents a Discord embed object
type DiscordEmbed struct {
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	URL         string         `json:"url,omitempty"`
	Color       int            `json:"color,omitempty"`
	Fields      []DiscordField `json:"fields,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
	Footer      *DiscordFooter `json:"footer,omitempty"`
}

// DiscordField represents a field in a Discord embed
type DiscordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// DiscordFooter represents the footer of a Discord embed
type DiscordFooter struct {
	Text string `json:"text"`
}

// DiscordMessage represents a Discord webhook message
type DiscordMessage struct {
	Content string         `json:"content,omitempty"`
	Embeds  []DiscordEmbed `json:"embeds,omitempty"`
}

// TelegramMessage represents a Telegram bot message
type TelegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func (n *Notifier) sendDiscordNotification(block *storage.SolvedBlock) {
	title := "Block Solved!"
	color := 0x00FF00
	if block.Merged {
		title = "Merged Block Solved!"
		color = 0x3498DB
	}

	embed := DiscordEmbed{
		Title: title,
		URL:   n.cfg.PoolURL,
		Color: color,
		Fields: []DiscordField{
			{Name: "Currency", Value: fmt.Sprintf("%s (%s)", block.Currency, block.Algo), Inline: true},
			{Name: "Height", Value: fmt.Sprintf("%d", block.Height), Inline: true},
			{Name: "Reward", Value: formatReward(block), Inline: true},
			{Name: "Difficulty", Value: formatDifficulty(block.HexBits), Inline: true},
			{Name: "Finder", Value: truncateAddress(block.Address) + workerSuffix(block.Worker), Inline: true},
			{Name: "Chains", Value: formatChains(block), Inline: true},
			{Name: "Hash", Value: truncateHash(block.Hash)},
		},
		Timestamp: time.Unix(block.SolveTime, 0).UTC().Format(time.RFC3339),
		Footer:    &DiscordFooter{Text: n.cfg.PoolName},
	}

	n.post(n.cfg.DiscordURL, DiscordMessage{Embeds: []DiscordEmbed{embed}}, "Discord")
}

func (n *Notifier) sendTelegramNotification(block *storage.SolvedBlock) {
	text := fmt.Sprintf(
		"*Block Solved!*\n\n"+
			"Currency: `%s (%s)`\n"+
			"Height: `%d`\n"+
			"Reward: `%s`\n"+
			"Difficulty: `%s`\n"+
			"Finder: `%s`\n"+
			"Hash: `%s`",
		block.Currency, block.Algo, block.Height, formatReward(block),
		formatDifficulty(block.HexBits),
		truncateAddress(block.Address), truncateHash(block.Hash),
	)

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.telegramAPI, n.cfg.TelegramBot)
	n.post(url, TelegramMessage{
		ChatID:    n.cfg.TelegramChat,
		Text:      text,
		ParseMode: "Markdown",
	}, "Telegram")
}

// post sends a JSON message with exponential backoff retry
func (n *Notifier) post(url string, msg interface{}, channel string) {
	body, err := json.Marshal(msg)
	if err != nil {
		util.Warnf("Failed to marshal %s message: %v", channel, err)
		return
	}

	var lastErr error
	for attempt := 0; attempt < MaxRetries; attempt++ {
		if attempt > 0 {
			// 2s, 4s, 8s
			time.Sleep(n.retryDelay * time.Duration(1<<uint(attempt-1)))
		}

		resp, err := n.client.Post(url, "application/json", bytes.NewReader(body))
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		if resp.StatusCode < 400 {
			return
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			time.Sleep(n.rateDelay)
		}
		lastErr = fmt.Errorf("status %d", resp.StatusCode)
	}

	util.Warnf("Failed to send %s notification after %d retries: %v", channel, MaxRetries, lastErr)
}

func formatReward(block *storage.SolvedBlock) string {
	total := float64(block.TotalSubsidy+block.Fees) / coinUnits
	return fmt.Sprintf("%.8f %s", total, block.Currency)
}

func formatDifficulty(hexBits string) string {
	diff := util.CompactToDifficulty(hexBits)
	if diff == 0 {
		return "unknown"
	}
	return fmt.Sprintf("%.2f", diff)
}

func formatChains(block *storage.SolvedBlock) string {
	if len(block.ChainIndexes) == 0 {
		return "none"
	}
	chains := block.Chains()
	parts := make([]string, 0, len(chains))
	for _, chain := range chains {
		parts = append(parts, fmt.Sprintf("%d#%d", chain, block.ChainIndexes[chain]))
	}
	return strings.Join(parts, " ")
}

func workerSuffix(worker string) string {
	if worker == "" {
		return ""
	}
	return "." + worker
}

// truncateAddress returns a shortened address for display
func truncateAddress(addr string) string {
	if len(addr) <= 16 {
		return addr
	}
	return addr[:8] + "..." + addr[len(addr)-6:]
}

// truncateHash returns a shortened hash for display
func truncateHash(hash string) string {
	if len(hash) <= 20 {
		return hash
	}
	return hash[:10] + "..." + hash[len(hash)-8:]
}
