package nes

import (
	"context"
	"fmt"
	"net/url"

	"imeiledger/pkg/services"
)

// FetchDocument downloads the XML or PDF rendition of one invoice.
func (c *Client) FetchDocument(ctx context.Context, dir services.Direction, id string, format services.Format) ([]byte, error) {
	const op = "FetchDocument"

	if id == "" {
		return nil, fmt.Errorf("%s: empty document id", op)
	}
	endpoint, err := c.listURL(dir)
	if err != nil {
		return nil, err
	}
	kind := "xml"
	if format == services.FormatPDF {
		kind = "pdf"
	}
	return c.get(ctx, op, endpoint+"/"+url.PathEscape(id)+"/"+kind, kind, nil, true)
}

// FetchXML is a shorthand for FetchDocument with FormatXML.
func (c *Client) FetchXML(ctx context.Context, dir services.Direction, id string) ([]byte, error) {
	return c.FetchDocument(ctx, dir, id, services.FormatXML)
}

// FetchPDF is a shorthand for FetchDocument with FormatPDF.
func (c *Client) FetchPDF(ctx context.Context, dir services.Direction, id string) ([]byte, error) {
	return c.FetchDocument(ctx, dir, id, services.FormatPDF)
}

// FetchURL downloads arbitrary content, such as a published spreadsheet,
// without sending the API token.
func (c *Client) FetchURL(ctx context.Context, rawURL string) ([]byte, error) {
	const op = "FetchURL"

	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%s: invalid url %q", op, rawURL)
	}
	return c.get(ctx, op, rawURL, "any", nil, false)
}
