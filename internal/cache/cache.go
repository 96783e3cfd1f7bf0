// Package cache holds recently synthesized reports so repeated requests for
// the same country, focus and article set skip the model call.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/TobiSchelling/intelbrief/internal/news"
)

// ReportCache is a bounded, time-boxed report cache. It is safe for concurrent use.
type ReportCache struct {
	lru *expirable.LRU[string, *news.Report]
}

// New creates a cache holding at most size reports for ttl each.
func New(size int, ttl time.Duration) *ReportCache {
	if size <= 0 {
		size = 128
	}
	return &ReportCache{lru: expirable.NewLRU[string, *news.Report](size, nil, ttl)}
}

// Key identifies a report by country, focus text and the articles it was built from.
func Key(country, focus string, articles []*news.Article) string {
	h := sha256.New()
	for _, a := range articles {
		h.Write([]byte(a.Link))
		h.Write([]byte{0})
		h.Write([]byte(a.Title))
		h.Write([]byte{0})
	}
	return countryPrefix(country) + strings.TrimSpace(focus) + "|" + hex.EncodeToString(h.Sum(nil)[:12])
}

func countryPrefix(country string) string {
	return strings.ToLower(strings.TrimSpace(country)) + "|"
}

// Get returns a cached report.
func (c *ReportCache) Get(key string) (*news.Report, bool) {
	return c.lru.Get(key)
}

// Add stores a report.
func (c *ReportCache) Add(key string, r *news.Report) {
	c.lru.Add(key, r)
}

// Invalidate drops every cached report for a country and returns how many were removed.
func (c *ReportCache) Invalidate(country string) int {
	prefix := countryPrefix(country)
	removed := 0
	for _, k := range c.lru.Keys() {
		if strings.HasPrefix(k, prefix) && c.lru.Remove(k) {
			removed++
		}
	}
	return removed
}

// Purge empties the cache.
func (c *ReportCache) Purge() {
	c.lru.Purge()
}

// Len returns the number of cached reports.
func (c *ReportCache) Len() int {
	return c.lru.Len()
}
