package indexer

import "mintWatch/internal/model"

const defaultDedupWindow = 10000

// MintDetector filters transfers down to mints and drops mints it has
// already emitted. It remembers the most recent window keys.
type MintDetector struct {
	window int
	seen   map[model.EventKey]struct{}
	order  []model.EventKey
	next   int
}

func NewMintDetector(window int) *MintDetector {
	if window <= 0 {
		window = defaultDedupWindow
	}
	return &MintDetector{
		window: window,
		seen:   make(map[model.EventKey]struct{}, window),
		order:  make([]model.EventKey, 0, window),
	}
}

// Detect returns the mints among events, in input order, skipping keys seen before.
func (d *MintDetector) Detect(events []model.TransferEvent) []model.MintEvent {
	mints := make([]model.MintEvent, 0)
	for _, event := range events {
		if !event.IsMint() {
			continue
		}
		if !d.remember(event.Key()) {
			continue
		}
		mints = append(mints, model.MintEvent{TransferEvent: event})
	}
	return mints
}

// Seed marks keys as already emitted.
func (d *MintDetector) Seed(keys []model.EventKey) {
	for _, key := range keys {
		d.remember(key)
	}
}

// Seen reports whether key is inside the dedup window.
func (d *MintDetector) Seen(key model.EventKey) bool {
	_, ok := d.seen[key]
	return ok
}

// Len returns the number of remembered keys.
func (d *MintDetector) Len() int {
	return len(d.seen)
}

func (d *MintDetector) remember(key model.EventKey) bool {
	if _, ok := d.seen[key]; ok {
		return false
	}
	if len(d.order) < d.window {
		d.order = append(d.order, key)
	} else {
		delete(d.seen, d.order[d.next])
		d.order[d.next] = key
		d.next = (d.next + 1) % d.window
	}
	d.seen[key] = struct{}{}
	return true
}
