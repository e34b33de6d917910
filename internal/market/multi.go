package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// MultiLister lists from several venues in order. A failing venue is logged
// and skipped; the listing fails only when every venue fails.
type MultiLister struct {
	names   []string
	listers []Lister
}

func NewMultiLister() *MultiLister {
	return &MultiLister{}
}

// Add registers a venue under name.
func (m *MultiLister) Add(name string, l Lister) *MultiLister {
	m.names = append(m.names, name)
	m.listers = append(m.listers, l)
	return m
}

func (m *MultiLister) ListMarkets(ctx context.Context, q Query) ([]RawRecord, error) {
	var (
		all  []RawRecord
		errs []error
	)
	for i, l := range m.listers {
		recs, err := l.ListMarkets(ctx, q)
		if err != nil {
			slog.Warn("venue listing failed", "venue", m.names[i], "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", m.names[i], err))
			continue
		}
		all = append(all, recs...)
	}
	if len(m.listers) > 0 && len(errs) == len(m.listers) {
		return nil, errors.Join(errs...)
	}
	return all, nil
}
