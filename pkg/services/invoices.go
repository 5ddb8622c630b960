package services

import (
	"context"
	"fmt"
	"strings"
)

// Direction selects one of the vendor's invoice collections.
type Direction string

const (
	// Incoming e-invoices received by the filer (purchases).
	Incoming Direction = "incoming"
	// Outgoing e-invoices issued by the filer (sales).
	Outgoing Direction = "outgoing"
	// EArchive invoices issued to consumers (sales).
	EArchive Direction = "earchive"
)

// ParseDirection accepts the direction names used on the command line.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "incoming", "in", "purchase":
		return Incoming, nil
	case "outgoing", "out", "sale":
		return Outgoing, nil
	case "earchive", "e-archive", "archive":
		return EArchive, nil
	default:
		return "", fmt.Errorf("unknown invoice direction %q (incoming, outgoing, earchive)", s)
	}
}

// IsSale reports whether documents in this direction are sales.
func (d Direction) IsSale() bool {
	return d == Outgoing || d == EArchive
}

// Format is the rendition of a document to download.
type Format string

const (
	FormatXML Format = "xml"
	FormatPDF Format = "pdf"
)

// InvoiceMeta is a list entry returned by the vendor API.
type InvoiceMeta struct {
	ID             string
	DocumentNumber string
}

// DateRange bounds a listing by issue date (YYYY-MM-DD, inclusive).
// Empty bounds are resolved by the lister.
type DateRange struct {
	Start string
	End   string
}

// InvoiceSource lists and fetches invoice documents.
type InvoiceSource interface {
	// ListInvoices returns archived and non-archived entries, deduplicated
	// by id. A non-nil error may accompany a partial result.
	ListInvoices(ctx context.Context, dir Direction, r DateRange) ([]InvoiceMeta, error)

	// FetchDocument returns the raw document content.
	FetchDocument(ctx context.Context, dir Direction, id string, format Format) ([]byte, error)
}

// URLFetcher downloads arbitrary binary content, e.g. a published spreadsheet.
type URLFetcher interface {
	FetchURL(ctx context.Context, url string) ([]byte, error)
}
