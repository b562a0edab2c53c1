package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"marketplace-orders/internal/domain"
	offerrepo "marketplace-orders/internal/repository/offer"

	"github.com/shopspring/decimal"
)

type StockWriter interface {
	UpdateBySKU(ctx context.Context, in offerrepo.StockUpdate) (*domain.Offer, error)
}

// CSVImporter reads seller stock sheets and applies them to existing offers.
// Prices are written in rupees ("499.50") and stored in paise.
type CSVImporter struct {
	reader *csv.Reader
	offers StockWriter
	logger *log.Logger
}

// Result counts what a run did. Unknown lists SKUs with no matching offer.
type Result struct {
	Updated int
	Unknown []string
}

func NewCSVImporter(r io.Reader, offers StockWriter, logger *log.Logger) *CSVImporter {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	csvr := csv.NewReader(r)
	csvr.FieldsPerRecord = -1 // rows may have trailing commas
	csvr.TrimLeadingSpace = true
	return &CSVImporter{reader: csvr, offers: offers, logger: logger}
}

var requiredColumns = []string{"sku", "price", "mrp", "stock_quantity", "status"}

// Run applies every row in order. A malformed row stops the run; rows already
// applied stay applied.
func (i *CSVImporter) Run(ctx context.Context) (Result, error) {
	var res Result

	headers, err := i.reader.Read()
	if err != nil {
		return res, fmt.Errorf("read headers: %w", err)
	}
	index := headerIndex(headers)
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return res, fmt.Errorf("missing column %q", col)
		}
	}

	line := 1
	for {
		record, err := i.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("read row: %w", err)
		}
		line++

		if blank(record) {
			continue
		}
		in, err := parseRow(record, index)
		if err != nil {
			return res, fmt.Errorf("line %d: %w", line, err)
		}

		if _, err := i.offers.UpdateBySKU(ctx, in); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				i.logger.Printf("importer: unknown sku=%s line=%d", in.SKU, line)
				res.Unknown = append(res.Unknown, in.SKU)
				continue
			}
			return res, fmt.Errorf("update sku %q: %w", in.SKU, err)
		}
		res.Updated++
	}
	return res, nil
}

func parseRow(record []string, index map[string]int) (offerrepo.StockUpdate, error) {
	in := offerrepo.StockUpdate{
		SKU:    pick(record, index, "sku"),
		Status: strings.ToLower(pick(record, index, "status")),
	}
	if in.SKU == "" {
		return in, errors.New("sku is required")
	}

	var err error
	if in.Price, err = parseRupees(pick(record, index, "price")); err != nil {
		return in, fmt.Errorf("sku %q price: %w", in.SKU, err)
	}
	if in.MRP, err = parseRupees(pick(record, index, "mrp")); err != nil {
		return in, fmt.Errorf("sku %q mrp: %w", in.SKU, err)
	}
	if in.MRP < in.Price {
		return in, fmt.Errorf("sku %q: mrp below price", in.SKU)
	}

	qty, err := strconv.Atoi(pick(record, index, "stock_quantity"))
	if err != nil || qty < 0 {
		return in, fmt.Errorf("sku %q: invalid stock_quantity", in.SKU)
	}
	in.StockQuantity = qty

	switch in.Status {
	case "":
		in.Status = domain.OfferActive
	case domain.OfferActive, domain.OfferInactive:
	default:
		return in, fmt.Errorf("sku %q: unknown status %q", in.SKU, in.Status)
	}
	return in, nil
}

func parseRupees(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	if d.IsNegative() {
		return 0, errors.New("must not be negative")
	}
	paise := d.Shift(2)
	if !paise.Equal(paise.Truncate(0)) {
		return 0, errors.New("more than two decimal places")
	}
	return paise.IntPart(), nil
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func pick(record []string, index map[string]int, key string) string {
	pos, ok := index[key]
	if !ok || pos >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[pos])
}

func headerIndex(headers []string) map[string]int {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return idx
}
