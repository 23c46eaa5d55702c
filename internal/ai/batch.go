package ai

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"
)

const (
	MaxBatchSize     = 10
	batchConcurrency = 3
)

type BatchItem struct {
	AdGroupID string `json:"adGroupId"`
	Result    Result `json:"result"`
}

// DedupeIDs trims, drops empties and duplicates, keeps first-seen order and caps at MaxBatchSize.
func DedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
		if len(out) == MaxBatchSize {
			break
		}
	}
	return out
}

// Batch runs insight-mode summaries for up to MaxBatchSize ad groups, at most
// three at a time. Items keep the order of the deduplicated ids.
func (p *Pipeline) Batch(ctx context.Context, ids []string, periodDays int, businessContext string) []BatchItem {
	ids = DedupeIDs(ids)
	items := make([]BatchItem, len(ids))

	var g errgroup.Group
	g.SetLimit(batchConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			items[i] = BatchItem{
				AdGroupID: id,
				Result: p.Summary(ctx, Request{
					AdGroupID:       id,
					PeriodDays:      periodDays,
					BusinessContext: businessContext,
					Mode:            ModeInsight,
				}),
			}
			return nil
		})
	}
	_ = g.Wait()
	return items
}
