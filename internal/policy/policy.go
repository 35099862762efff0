// Package policy rate limits HTTP ingress clients by IP.
//
// Every request adds to the client's score and malformed requests add more.
// A client whose score reaches the limit inside one reset window is banned
// until the ban timeout passes.
package policy

import (
	"net"
	"sync"
	"time"

	"github.com/tos-network/tos-reporter/internal/config"
	"github.com/tos-network/tos-reporter/internal/util"
)

// IPStats tracks per-IP statistics
type IPStats struct {
	LastBeat       time.Time
	BannedAt       time.Time // zero when not banned
	Score          int32
	LastScoreReset time.Time
	Malformed      int32
}

// PolicyServer manages ingress policies
type PolicyServer struct {
	config *config.PolicyConfig
	now    func() time.Time

	statsMu sync.Mutex
	stats   map[string]*IPStats

	whitelist map[string]struct{}

	quit chan struct{}
	wg   sync.WaitGroup
}

// NewPolicyServer creates a new policy server
func NewPolicyServer(cfg *config.PolicyConfig) *PolicyServer {
	whitelist := make(map[string]struct{}, len(cfg.Whitelist))
	for _, ip := range cfg.Whitelist {
		whitelist[normalizeIP(ip)] = struct{}{}
	}

	return &PolicyServer{
		config:    cfg,
		now:       time.Now,
		stats:     make(map[string]*IPStats),
		whitelist: whitelist,
		quit:      make(chan struct{}),
	}
}

// Start begins the stale entry sweeper
func (p *PolicyServer) Start() {
	if !p.config.Enabled {
		return
	}

	p.wg.Add(1)
	go p.resetLoop()
	util.Info("Ingress policy started")
}

// Stop shuts down the policy server
func (p *PolicyServer) Stop() {
	select {
	case <-p.quit:
		return
	default:
	}
	close(p.quit)
	p.wg.Wait()
}

// resetLoop periodically drops idle entries and expired bans
func (p *PolicyServer) resetLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.ScoreReset)
	defer ticker.Stop()

	for {
		select {
		case <-p.quit:
			return
		case <-ticker.C:
			p.resetStats()
		}
	}
}

// resetStats clears old statistics
func (p *PolicyServer) resetStats() int {
	now := p.now()

	p.statsMu.Lock()
	defer p.statsMu.Unlock()

	removed := 0
	for ip, stats := range p.stats {
		banned := !stats.BannedAt.IsZero() && now.Sub(stats.BannedAt) < p.config.BanTimeout
		if !banned && now.Sub(stats.LastBeat) >= p.config.BanTimeout {
			delete(p.stats, ip)
			removed++
		}
	}

	if removed > 0 {
		util.Debugf("Policy stats reset: removed %d stale IPs", removed)
	}
	return removed
}

// getStats gets or creates stats for an IP, caller holds statsMu
func (p *PolicyServer) getStats(ip string, now time.Time) *IPStats {
	stats, ok := p.stats[ip]
	if !ok {
		stats = &IPStats{LastScoreReset: now}
		p.stats[ip] = stats
	}
	stats.LastBeat = now
	return stats
}

// IsWhitelisted reports whether an IP bypasses the policy
func (p *PolicyServer) IsWhitelisted(ip string) bool {
	_, ok := p.whitelist[normalizeIP(ip)]
	return ok
}

// IsBanned checks if an IP is currently banned
func (p *PolicyServer) IsBanned(ip string) bool {
	if !p.config.Enabled || p.IsWhitelisted(ip) {
		return false
	}

	p.statsMu.Lock()
	defer p.statsMu.Unlock()

	stats, ok := p.stats[normalizeIP(ip)]
	return ok && p.bannedLocked(stats, p.now())
}

func (p *PolicyServer) bannedLocked(stats *IPStats, now time.Time) bool {
	if stats.BannedAt.IsZero() {
		return false
	}
	if now.Sub(stats.BannedAt) >= p.config.BanTimeout {
		stats.BannedAt = time.Time{}
		return false
	}
	return true
}

// AddScore adds to an IP's score and returns false if the IP is or becomes banned
func (p *PolicyServer) AddScore(ip string, cost int32) bool {
	if !p.config.Enabled || p.IsWhitelisted(ip) {
		return true
	}

	ip = normalizeIP(ip)
	now := p.now()

	p.statsMu.Lock()
	defer p.statsMu.Unlock()

	stats := p.getStats(ip, now)
	if p.bannedLocked(stats, now) {
		return false
	}

	if now.Sub(stats.LastScoreReset) >= p.config.ScoreReset {
		stats.Score = 0
		stats.LastScoreReset = now
	}

	stats.Score += cost
	if stats.Score >= p.config.MaxScore {
		util.Warnf("Score limit exceeded for %s: %d >= %d, banned for %v", ip, stats.Score, p.config.MaxScore, p.config.BanTimeout)
		stats.Score = 0
		stats.BannedAt = now
		return false
	}
	return true
}

// GetScore returns current score for an IP
func (p *PolicyServer) GetScore(ip string) int32 {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()

	if stats, ok := p.stats[normalizeIP(ip)]; ok {
		return stats.Score
	}
	return 0
}

// ApplyRequestScore applies the per-request cost
func (p *PolicyServer) ApplyRequestScore(ip string) bool {
	return p.AddScore(ip, p.config.CostRequest)
}

// ApplyMalformedScore applies the malformed request cost
func (p *PolicyServer) ApplyMalformedScore(ip string) bool {
	p.statsMu.Lock()
	if stats, ok := p.stats[normalizeIP(ip)]; ok {
		stats.Malformed++
	}
	p.statsMu.Unlock()

	return p.AddScore(ip, p.config.CostMalformed)
}

// Tracked returns the number of IPs with live stats
func (p *PolicyServer) Tracked() int {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return len(p.stats)
}

func normalizeIP(ip string) string {
	if parsed := net.ParseIP(ip); parsed != nil {
		return parsed.String()
	}
	return ip
}
