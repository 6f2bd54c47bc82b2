package core

import (
	"container/list"
	"fmt"
)

// IdempotencyChecker implements two-tier request deduplication.
type IdempotencyChecker struct {
	// Tier 1: in-memory LRU
	lru *IdempotencyLRU

	// Tier 2: Postgres (injected via interface)
	dbChecker DBIdempotencyChecker

	tier2Errors int64
}

// DBIdempotencyChecker is the interface for Postgres dedup lookup.
type DBIdempotencyChecker interface {
	IsDuplicate(opType string, idempotencyKey string) (bool, error)
}

func NewIdempotencyChecker(capacity int, dbChecker DBIdempotencyChecker) *IdempotencyChecker {
	return &IdempotencyChecker{
		lru:       NewIdempotencyLRU(capacity),
		dbChecker: dbChecker,
	}
}

// DuplicateTier identifies which tier caught a duplicate.
type DuplicateTier string

const (
	TierNone     DuplicateTier = ""
	TierLRU      DuplicateTier = "lru"
	TierPostgres DuplicateTier = "postgres"
)

// IsDuplicate checks whether a request has been processed (two-tier lookup).
// Returns the tier that caught the duplicate so callers can label metrics.
func (ic *IdempotencyChecker) IsDuplicate(opType string, idempotencyKey string) (bool, DuplicateTier) {
	compositeKey := fmt.Sprintf("%s:%s", opType, idempotencyKey)

	// Tier 1: LRU check (hot path)
	if ic.lru.Contains(compositeKey) {
		return true, TierLRU
	}

	// Tier 2: Postgres check (cold path)
	if ic.dbChecker != nil {
		isDup, err := ic.dbChecker.IsDuplicate(opType, idempotencyKey)
		if err != nil {
			// Conservative: a DB issue must not block request processing.
			ic.tier2Errors++
			return false, TierNone
		}

		if isDup {
			// Add to LRU so we don't hit the DB again.
			ic.lru.Add(compositeKey)
			return true, TierPostgres
		}
	}

	return false, TierNone
}

// IsDuplicateLocal checks the LRU tier only. Used during replay, where
// every logged request is by definition already in the event log.
func (ic *IdempotencyChecker) IsDuplicateLocal(opType string, idempotencyKey string) bool {
	return ic.lru.Contains(fmt.Sprintf("%s:%s", opType, idempotencyKey))
}

// MarkProcessed adds the key to the LRU after successful processing.
func (ic *IdempotencyChecker) MarkProcessed(opType string, idempotencyKey string) {
	ic.lru.Add(fmt.Sprintf("%s:%s", opType, idempotencyKey))
}

// Tier2Errors returns the number of failed Postgres lookups.
func (ic *IdempotencyChecker) Tier2Errors() int64 {
	return ic.tier2Errors
}

// --- LRU implementation ---

// IdempotencyLRU is an LRU cache for idempotency keys.
// Not thread-safe. Only accessed from the single-threaded deterministic core.
type IdempotencyLRU struct {
	capacity int
	cache    map[string]*list.Element
	lruList  *list.List

	evictions int64
}

type lruEntry struct {
	key string
}

func NewIdempotencyLRU(capacity int) *IdempotencyLRU {
	return &IdempotencyLRU{
		capacity: capacity,
		cache:    make(map[string]*list.Element, capacity),
		lruList:  list.New(),
	}
}

// Contains checks if key exists (promotes to front).
func (lru *IdempotencyLRU) Contains(key string) bool {
	elem, exists := lru.cache[key]
	if exists {
		lru.lruList.MoveToFront(elem)
		return true
	}
	return false
}

// Add inserts a key (or promotes if it exists).
func (lru *IdempotencyLRU) Add(key string) {
	if elem, exists := lru.cache[key]; exists {
		lru.lruList.MoveToFront(elem)
		return
	}

	entry := &lruEntry{key: key}
	elem := lru.lruList.PushFront(entry)
	lru.cache[key] = elem

	if lru.lruList.Len() > lru.capacity {
		lru.evictOldest()
	}
}

func (lru *IdempotencyLRU) evictOldest() {
	elem := lru.lruList.Back()
	if elem != nil {
		lru.lruList.Remove(elem)
		entry := elem.Value.(*lruEntry)
		delete(lru.cache, entry.key)
		lru.evictions++
	}
}

// WarmFromKeys loads a batch of composite keys into the LRU. On restart,
// recent keys from Postgres are loaded to avoid cold-path DB lookups.
func (lru *IdempotencyLRU) WarmFromKeys(keys []string) {
	for _, key := range keys {
		if _, exists := lru.cache[key]; exists {
			continue
		}
		entry := &lruEntry{key: key}
		elem := lru.lruList.PushFront(entry)
		lru.cache[key] = elem

		if lru.lruList.Len() > lru.capacity {
			lru.evictOldest()
		}
	}
}

// GetAllKeys returns every cached composite key, oldest first, for snapshots.
func (lru *IdempotencyLRU) GetAllKeys() []string {
	keys := make([]string, 0, lru.lruList.Len())
	for elem := lru.lruList.Back(); elem != nil; elem = elem.Prev() {
		keys = append(keys, elem.Value.(*lruEntry).key)
	}
	return keys
}

// Size returns the current number of entries.
func (lru *IdempotencyLRU) Size() int {
	return lru.lruList.Len()
}

// Evictions returns total evictions.
func (lru *IdempotencyLRU) Evictions() int64 {
	return lru.evictions
}
