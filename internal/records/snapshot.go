package records

import (
	"context"
	"fmt"
	"time"

	"bizdash/internal/core"
)

// ReportSnapshot is a persisted dashboard aggregate, keyed by the month it
// was computed in.
type ReportSnapshot struct {
	Month       core.MonthKey
	GeneratedAt time.Time
	Series      core.MonthlySeries
	Categories  []core.CategoryCount
	Summary     core.SeriesSummary
}

func (r *Repository) SaveReportSnapshot(ctx context.Context, snap ReportSnapshot) error {
	if err := r.store.Put(ctx, core.CollectionSnapshots, snap.Month.String(), EncodeReportSnapshot(snap)); err != nil {
		return fmt.Errorf("save report snapshot %s: %w", snap.Month, err)
	}
	return nil
}

func (r *Repository) GetReportSnapshot(ctx context.Context, month core.MonthKey) (ReportSnapshot, error) {
	doc, err := r.store.GetByID(ctx, core.CollectionSnapshots, month.String())
	if err != nil {
		return ReportSnapshot{}, fmt.Errorf("get report snapshot %s: %w", month, err)
	}
	return DecodeReportSnapshot(doc.ID, doc.Data)
}

// EncodeReportSnapshot flattens a snapshot into store-neutral values:
// strings for money and months, []any of map[string]any for lists.
func EncodeReportSnapshot(s ReportSnapshot) map[string]any {
	buckets := make([]any, 0, len(s.Series.Buckets))
	for _, b := range s.Series.Buckets {
		buckets = append(buckets, map[string]any{
			"month":     b.Key.String(),
			"unitsSold": b.UnitsSold,
			"profit":    b.Profit.String(),
		})
	}
	categories := make([]any, 0, len(s.Categories))
	for _, c := range s.Categories {
		categories = append(categories, map[string]any{
			"category": c.Category,
			"count":    c.Count,
		})
	}
	return map[string]any{
		"generatedAt":           s.GeneratedAt.UTC(),
		"buckets":               buckets,
		"categories":            categories,
		"skippedMissingProduct": s.Series.Skipped.MissingProduct,
		"skippedInvalidPrice":   s.Series.Skipped.InvalidPrice,
		"totalUnits":            s.Summary.TotalUnits,
		"totalProfit":           s.Summary.TotalProfit.String(),
	}
}

func DecodeReportSnapshot(id string, data map[string]any) (ReportSnapshot, error) {
	var s ReportSnapshot
	var err error
	fail := func(field string, err error) (ReportSnapshot, error) {
		return ReportSnapshot{}, malformed(core.CollectionSnapshots, id, field, err)
	}

	if s.Month, err = core.ParseMonthKey(id); err != nil {
		return fail("id", err)
	}
	if s.GeneratedAt, err = TimeValue(data["generatedAt"]); err != nil {
		return fail("generatedAt", err)
	}

	buckets, err := listOfMaps(data["buckets"])
	if err != nil {
		return fail("buckets", err)
	}
	s.Series.Buckets = make([]core.MonthlyBucket, 0, len(buckets))
	for _, b := range buckets {
		var bucket core.MonthlyBucket
		month, _ := b["month"].(string)
		if bucket.Key, err = core.ParseMonthKey(month); err != nil {
			return fail("buckets.month", err)
		}
		if bucket.UnitsSold, err = IntValue(b["unitsSold"]); err != nil {
			return fail("buckets.unitsSold", err)
		}
		if bucket.Profit, err = core.ParsePrice(b["profit"]); err != nil {
			return fail("buckets.profit", err)
		}
		s.Series.Buckets = append(s.Series.Buckets, bucket)
	}

	categories, err := listOfMaps(data["categories"])
	if err != nil {
		return fail("categories", err)
	}
	s.Categories = make([]core.CategoryCount, 0, len(categories))
	for _, c := range categories {
		name, _ := c["category"].(string)
		n, err := IntValue(c["count"])
		if err != nil {
			return fail("categories.count", err)
		}
		s.Categories = append(s.Categories, core.CategoryCount{Category: name, Count: n})
	}

	if s.Series.Skipped.MissingProduct, err = IntValue(data["skippedMissingProduct"]); err != nil {
		return fail("skippedMissingProduct", err)
	}
	if s.Series.Skipped.InvalidPrice, err = IntValue(data["skippedInvalidPrice"]); err != nil {
		return fail("skippedInvalidPrice", err)
	}
	s.Summary = core.Summarize(s.Series)
	return s, nil
}

func listOfMaps(raw any) ([]map[string]any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []map[string]any:
		return v, nil
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("unexpected element type %T", item)
			}
			out = append(out, m)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unexpected type %T", raw)
	}
}
