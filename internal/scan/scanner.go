// Package scan runs one reconciliation pass against the invoice API: sale
// and purchase listings, expense-voucher sources, then the ledger holds the
// result.
package scan

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"imeiledger/internal/logger"
	"imeiledger/internal/reconciliation"
	"imeiledger/internal/textmatch"
	"imeiledger/internal/voucher"
	"imeiledger/pkg/services"
)

var (
	// ErrMissingToken is returned when the invoice source has no API token.
	ErrMissingToken = errors.New("NES API token is not set")

	// ErrNoTargets is returned when targets are required but none are loaded.
	ErrNoTargets = errors.New("no target identifiers or document numbers loaded")

	// ErrAlreadyRunning is returned by Start while a scan is in progress.
	ErrAlreadyRunning = errors.New("a scan is already running")

	// ErrNotStarted is returned by Wait before Start.
	ErrNotStarted = errors.New("scan was not started")
)

// PartyFilter narrows invoices by counterparty. Empty fields match anything.
type PartyFilter struct {
	Name  string // case and accent insensitive substring
	TaxID string // exact
}

func (f PartyFilter) matches(name, taxID string) bool {
	if n := textmatch.Lower(f.Name); n != "" && !strings.Contains(textmatch.Lower(name), n) {
		return false
	}
	if id := strings.TrimSpace(f.TaxID); id != "" && taxID != id {
		return false
	}
	return true
}

// Options configure one scan.
type Options struct {
	Range services.DateRange

	// ScanSales enables the outgoing and e-archive passes.
	ScanSales bool

	// DocumentFilter restricts sale documents to these numbers. When set
	// together with ScanSales, sales are scanned before purchases.
	DocumentFilter []string

	// IncludeOutside merges identifiers that are not in the target list.
	IncludeOutside bool

	// RequireTargets refuses to start without targets or a document filter.
	RequireTargets bool

	Supplier PartyFilter
	Buyer    PartyFilter

	// Whitelist holds supplier name patterns whose invoices are skipped
	// when they carry no identifier (couriers, utilities and the like).
	Whitelist []*regexp.Regexp

	// VoucherURLs are downloaded and read as expense-voucher workbooks.
	VoucherURLs []string

	// SheetRanges are read from the configured spreadsheet, e.g. "GP!A:Z".
	SheetRanges []string
}

// Summary reports what a scan did.
type Summary struct {
	ScanID     string
	StartedAt  time.Time
	FinishedAt time.Time

	PurchaseDocuments int
	SaleDocuments     int
	PurchaseMerges    int
	SaleMerges        int
	ExternalMerges    int
	Duplicates        int
	AdditionalSales   int
	NotFound          int
	SideRows          int
	Skipped           int
	Failures          int

	Cancelled bool
}

type tokenHolder interface {
	HasToken() bool
}

// Scanner drives a scan into a ledger.
type Scanner struct {
	source   services.InvoiceSource
	fetcher  services.URLFetcher
	ranges   voucher.RangeReader
	vouchers *voucher.Reader
	ledger   *reconciliation.Ledger
	opts     Options
	log      zerolog.Logger

	// per run
	targets   map[string]struct{}
	docFilter map[string]struct{}

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	summary Summary
	err     error
}

// Option customizes a Scanner.
type Option func(*Scanner)

// WithURLFetcher sets the downloader for VoucherURLs.
func WithURLFetcher(f services.URLFetcher) Option {
	return func(s *Scanner) { s.fetcher = f }
}

// WithRangeReader sets the spreadsheet reader for SheetRanges.
func WithRangeReader(r voucher.RangeReader) Option {
	return func(s *Scanner) { s.ranges = r }
}

// New creates a scanner writing into ledger. When source also implements
// services.URLFetcher it is used for voucher downloads.
func New(source services.InvoiceSource, ledger *reconciliation.Ledger, opts Options, options ...Option) *Scanner {
	s := &Scanner{
		source:   source,
		ledger:   ledger,
		opts:     opts,
		vouchers: voucher.NewReader(),
		log:      logger.WithComponent("scan"),
	}
	if f, ok := source.(services.URLFetcher); ok {
		s.fetcher = f
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Ledger returns the ledger the scanner writes into.
func (s *Scanner) Ledger() *reconciliation.Ledger {
	return s.ledger
}

// check validates preconditions before any network call.
func (s *Scanner) check() error {
	if s.source == nil {
		return ErrMissingToken
	}
	if th, ok := s.source.(tokenHolder); ok && !th.HasToken() {
		return ErrMissingToken
	}
	if s.opts.RequireTargets && len(s.ledger.Targets()) == 0 && len(s.opts.DocumentFilter) == 0 {
		return ErrNoTargets
	}
	return nil
}

// Start validates preconditions and runs the scan in the background.
func (s *Scanner) Start(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		select {
		case <-s.done:
		default:
			return ErrAlreadyRunning
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		defer cancel()
		sum, err := s.run(runCtx)
		s.mu.Lock()
		s.summary, s.err = sum, err
		s.mu.Unlock()
	}()
	return nil
}

// Stop asks a running scan to finish. Work on the current document
// completes; no further pages or documents are requested.
func (s *Scanner) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the scan started by Start returns.
func (s *Scanner) Wait() (Summary, error) {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return Summary{}, ErrNotStarted
	}
	<-done

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary, s.err
}

// Run is Start followed by Wait.
func (s *Scanner) Run(ctx context.Context) (Summary, error) {
	if err := s.Start(ctx); err != nil {
		return Summary{}, err
	}
	return s.Wait()
}

func (s *Scanner) run(ctx context.Context) (Summary, error) {
	sum := Summary{ScanID: uuid.NewString(), StartedAt: time.Now()}
	log := logger.WithScanID(s.log, sum.ScanID)

	s.targets = make(map[string]struct{})
	for _, id := range s.ledger.Targets() {
		s.targets[id] = struct{}{}
	}
	s.docFilter = make(map[string]struct{})
	for _, d := range s.opts.DocumentFilter {
		if d = strings.ToUpper(strings.TrimSpace(d)); d != "" {
			s.docFilter[d] = struct{}{}
		}
	}

	log.Info().
		Int("targets", len(s.targets)).
		Int("document_filter", len(s.docFilter)).
		Bool("include_outside", s.opts.IncludeOutside).
		Bool("sales", s.opts.ScanSales).
		Msg("Scan started")

	salesFirst := s.opts.ScanSales && len(s.docFilter) > 0
	if salesFirst {
		log.Info().Msg("Document filter loaded, scanning sales first")
		s.scanSales(ctx, log, &sum, true)
	}

	s.scanPurchases(ctx, log, &sum)

	if s.opts.ScanSales && !salesFirst && ctx.Err() == nil {
		s.scanSales(ctx, log, &sum, false)
	}

	if ctx.Err() == nil {
		s.scanVouchers(ctx, log, &sum)
	}

	sum.FinishedAt = time.Now()
	sum.Cancelled = ctx.Err() != nil

	log.Info().
		Int("records", s.ledger.Len()).
		Int("purchase_merges", sum.PurchaseMerges).
		Int("sale_merges", sum.SaleMerges).
		Int("external_merges", sum.ExternalMerges).
		Int("not_found", sum.NotFound).
		Int("failures", sum.Failures).
		Bool("cancelled", sum.Cancelled).
		Dur("elapsed", sum.FinishedAt.Sub(sum.StartedAt)).
		Msg("Scan finished")

	return sum, ctx.Err()
}

// inScope reports whether an identifier may be merged. Without targets
// everything is in scope.
func (s *Scanner) inScope(id string) bool {
	if s.opts.IncludeOutside || len(s.targets) == 0 {
		return true
	}
	_, ok := s.targets[id]
	return ok
}

// track adds an identifier found on a filtered sale to the targets.
func (s *Scanner) track(id string) {
	s.ledger.Track(id)
	s.targets[id] = struct{}{}
}

func (s *Scanner) whitelisted(supplier string) bool {
	name := textmatch.Upper(supplier)
	if name == "" {
		return false
	}
	for _, re := range s.opts.Whitelist {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

func (s *Scanner) wantDocument(docNo string) bool {
	if len(s.docFilter) == 0 {
		return true
	}
	_, ok := s.docFilter[strings.ToUpper(strings.TrimSpace(docNo))]
	return ok
}

func count(sum *Summary, outcome reconciliation.Outcome, merged *int) {
	switch outcome {
	case reconciliation.Merged:
		*merged++
	case reconciliation.Duplicate:
		sum.Duplicates++
	case reconciliation.AdditionalSale:
		*merged++
		sum.AdditionalSales++
	}
}
