package nes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"imeiledger/pkg/services"
)

// DefaultStartDate is used when a listing has neither a start nor an end date.
const DefaultStartDate = "2015-01-01"

// issuer time zone used for the date range bounds
const rangeZone = "+03:00"

var listPaths = map[services.Direction]string{
	services.Incoming: "/einvoice/v1/incoming/invoices",
	services.Outgoing: "/einvoice/v1/outgoing/invoices",
	services.EArchive: "/earchive/v1/invoices",
}

func (c *Client) listURL(dir services.Direction) (string, error) {
	p, ok := listPaths[dir]
	if !ok {
		return "", fmt.Errorf("nes: unknown direction %q", dir)
	}
	return c.cfg.BaseURL + p, nil
}

// flexString decodes JSON strings and numbers alike.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(b)
	return nil
}

type listItem struct {
	ID             flexString `json:"id"`
	DocumentNumber flexString `json:"documentNumber"`
}

type listResponse struct {
	TotalCount json.Number `json:"totalCount"`
	Data       []listItem  `json:"data"`
	Invoices   []listItem  `json:"invoices"`
}

func (r listResponse) items() []listItem {
	if len(r.Data) > 0 {
		return r.Data
	}
	return r.Invoices
}

// resolveRange applies the default range when both bounds are empty.
func resolveRange(r services.DateRange, now time.Time) services.DateRange {
	if r.Start == "" && r.End == "" {
		return services.DateRange{Start: DefaultStartDate, End: now.Format("2006-01-02")}
	}
	return r
}

// ListCollection lists one collection page by page. Paging stops at an empty
// batch, the last page, a failed request or cancellation. The entries read
// so far are returned together with the error that ended paging.
func (c *Client) ListCollection(ctx context.Context, dir services.Direction, r services.DateRange, archived *bool) ([]services.InvoiceMeta, error) {
	const op = "ListInvoices"

	endpoint, err := c.listURL(dir)
	if err != nil {
		return nil, err
	}
	r = resolveRange(r, time.Now())

	log := c.log.With().Str("direction", string(dir)).Logger()
	var out []services.InvoiceMeta
	total := 0
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		params := url.Values{}
		params.Set("sort", "createdAt desc")
		params.Set("page", strconv.Itoa(page))
		params.Set("pageSize", strconv.Itoa(c.cfg.PageSize))
		if archived != nil {
			params.Set("archived", strconv.FormatBool(*archived))
		}
		if r.Start != "" {
			params.Set("startDate", r.Start+"T00:00:00"+rangeZone)
		}
		if r.End != "" {
			params.Set("endDate", r.End+"T23:59:59"+rangeZone)
		}

		body, err := c.get(ctx, op, endpoint, "json", params, true)
		if err != nil {
			return out, fmt.Errorf("%s: page %d: %w", op, page, err)
		}

		var resp listResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return out, fmt.Errorf("%s: page %d: decode response: %w", op, page, err)
		}
		if total == 0 {
			total = 1
			if n, err := resp.TotalCount.Int64(); err == nil && n > 0 {
				total = int((n + int64(c.cfg.PageSize) - 1) / int64(c.cfg.PageSize))
			}
		}

		batch := resp.items()
		if len(batch) == 0 {
			break
		}
		for _, it := range batch {
			out = append(out, services.InvoiceMeta{ID: string(it.ID), DocumentNumber: string(it.DocumentNumber)})
		}
		log.Debug().Int("page", page).Int("pages", total).Int("count", len(batch)).Msg("Listed invoice page")
		if page >= total {
			break
		}
	}
	return out, nil
}

// ListInvoices lists non-archived then archived entries and removes repeated
// ids, keeping first-seen order. Entries from a listing that failed midway
// are still returned, along with the first error.
func (c *Client) ListInvoices(ctx context.Context, dir services.Direction, r services.DateRange) ([]services.InvoiceMeta, error) {
	var firstErr error
	var all []services.InvoiceMeta
	for _, archived := range []bool{false, true} {
		if ctx.Err() != nil {
			break
		}
		items, err := c.ListCollection(ctx, dir, r, &archived)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		all = append(all, items...)
	}

	seen := make(map[string]struct{}, len(all))
	uniq := make([]services.InvoiceMeta, 0, len(all))
	for _, m := range all {
		if m.ID == "" {
			continue
		}
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		uniq = append(uniq, m)
	}

	c.log.Info().
		Str("direction", string(dir)).
		Int("listed", len(all)).
		Int("unique", len(uniq)).
		Msg("Invoice listing complete")

	if firstErr == nil {
		firstErr = ctx.Err()
	}
	return uniq, firstErr
}
