// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playlist

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Order controls how a scan arranges items.
type Order string

const (
	OrderSequential Order = "sequential"
	OrderShuffle    Order = "shuffle"
)

// ParseOrder accepts "sequential" (or empty) and "shuffle".
func ParseOrder(s string) (Order, error) {
	switch Order(strings.ToLower(strings.TrimSpace(s))) {
	case "", OrderSequential:
		return OrderSequential, nil
	case OrderShuffle, "shuffled", "random":
		return OrderShuffle, nil
	default:
		return "", fmt.Errorf("unknown playlist order %q", s)
	}
}

// Playlist is the immutable result of one scan plus a cursor.
// A Playlist returned by Scan always holds at least one item.
type Playlist struct {
	Dir     string
	Order   Order
	Items   []MediaItem
	cursor  int
	wrapped bool
}

// Len returns the number of items.
func (p *Playlist) Len() int { return len(p.Items) }

// Paths returns item paths in playlist order.
func (p *Playlist) Paths() []string {
	out := make([]string, len(p.Items))
	for i, it := range p.Items {
		out[i] = it.Path
	}
	return out
}

// Next returns the item under the cursor and advances it. ok is false once the
// pass is exhausted; the caller rescans to start the next pass.
func (p *Playlist) Next() (MediaItem, bool) {
	if p.wrapped || len(p.Items) == 0 {
		return MediaItem{}, false
	}
	it := p.Items[p.cursor]
	p.cursor++
	if p.cursor >= len(p.Items) {
		p.cursor = 0
		p.wrapped = true
	}
	return it, true
}

// Scanner holds scan settings. The zero value scans video in directory order.
type Scanner struct {
	Kind  Kind
	Order Order
	// Shuffle permutes items in place; nil uses math/rand/v2.
	Shuffle func(n int, swap func(i, j int))
	Now     func() time.Time
}

// Scan lists dir and returns the recognized media. It only reads the directory
// and stats entries. Dotfiles, directories and unknown extensions are skipped.
func (s Scanner) Scan(dir string) (*Playlist, error) {
	kind := s.Kind
	if kind == "" {
		kind = KindVideo
	}
	order := s.Order
	if order == "" {
		order = OrderSequential
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read media dir: %w", err)
	}

	at := now()
	items := make([]MediaItem, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") || e.IsDir() || !kind.Recognized(name) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and stat.
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		items = append(items, MediaItem{
			Path:         filepath.Join(abs, name),
			Ext:          strings.ToLower(filepath.Ext(name)),
			Size:         info.Size(),
			DiscoveredAt: at,
		})
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%s: %w", abs, ErrEmptyDirectory)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Path < items[j].Path })
	if order == OrderShuffle {
		shuffle := s.Shuffle
		if shuffle == nil {
			shuffle = rand.Shuffle
		}
		shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })
	}

	return &Playlist{Dir: abs, Order: order, Items: items}, nil
}

// Scan is Scanner{Kind: kind, Order: order}.Scan(dir).
func Scan(dir string, kind Kind, order Order) (*Playlist, error) {
	return Scanner{Kind: kind, Order: order}.Scan(dir)
}
