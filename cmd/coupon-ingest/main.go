// Command coupon-ingest imports promo codes from gzip-compressed code lists.
// A code is valid when it occurs in at least two of the lists.
package main

import (
	"bufio"
	"context"
	"flag"
	"io"
	"math/bits"
	"os"
	"path/filepath"
	"slices"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/foodcart/internal/domain/coupon"
	"github.com/xenking/foodcart/internal/repository"
)

const (
	bloomFPR      = 0.001
	progressEvery = 10_000_000
	minCodeLen    = 5
	maxCodeLen    = 16
	maxLists      = 64
)

type options struct {
	pattern     string
	capacity    uint
	percent     string
	minSubtotal string
	maxUses     int
	perUser     int
	dryRun      bool
}

func main() {
	var (
		opts        options
		databaseURL string
	)
	flag.StringVar(&opts.pattern, "lists", "data/*.gz", "glob of gzip code lists")
	flag.UintVar(&opts.capacity, "capacity", 120_000_000, "expected codes per list, sizes the bloom filters")
	flag.StringVar(&opts.percent, "percent", "10", "percent discount of imported codes")
	flag.StringVar(&opts.minSubtotal, "min-subtotal", "0", "minimum subtotal of imported codes")
	flag.IntVar(&opts.maxUses, "max-uses", 1, "global usage limit per code, 0 for unlimited")
	flag.IntVar(&opts.perUser, "per-user", 1, "per-user usage limit per code, 0 for unlimited")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "report valid codes without writing them")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}

	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		if databaseURL == "" && !opts.dryRun {
			return errors.New("database URL is required: set --database-url or DATABASE_URL")
		}
		ctx = zctx.Base(ctx, lg)
		if err := run(ctx, opts, databaseURL); err != nil {
			return errors.Wrap(err, "coupon ingest")
		}
		lg.Info("Coupon ingest completed")
		return nil
	})
}

func run(ctx context.Context, opts options, databaseURL string) error {
	lg := zctx.From(ctx)

	files, err := filepath.Glob(opts.pattern)
	if err != nil {
		return errors.Wrap(err, "glob lists")
	}
	if len(files) < 2 {
		return errors.Errorf("need at least two lists, %q matched %d", opts.pattern, len(files))
	}
	if len(files) > maxLists {
		return errors.Errorf("at most %d lists are supported, got %d", maxLists, len(files))
	}
	rule, err := opts.rule()
	if err != nil {
		return err
	}

	lg.Info("Pass 1: building bloom filters", zap.Int("files", len(files)))
	filters, err := buildFilters(ctx, files, opts.capacity)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	lg.Info("Pass 2: finding codes present in two or more lists")
	codes, err := findValidCodes(ctx, files, filters)
	if err != nil {
		return errors.Wrap(err, "find valid codes")
	}
	lg.Info("Valid codes found", zap.Int("count", len(codes)))
	if len(codes) == 0 || opts.dryRun {
		return nil
	}

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	return writeCoupons(ctx, repository.NewCouponRepository(pool), rule, codes)
}

// rule is the template applied to every imported code.
func (o options) rule() (coupon.Rule, error) {
	pct, err := decimal.NewFromString(o.percent)
	if err != nil || !pct.IsPositive() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return coupon.Rule{}, errors.Errorf("percent %q must be in (0, 100]", o.percent)
	}
	minSubtotal, err := decimal.NewFromString(o.minSubtotal)
	if err != nil || minSubtotal.IsNegative() {
		return coupon.Rule{}, errors.Errorf("min subtotal %q must be a non-negative amount", o.minSubtotal)
	}
	return coupon.Rule{
		Kind:         coupon.KindPercent,
		Value:        pct,
		Description:  "Promo code: " + pct.String() + "% off",
		MinSubtotal:  minSubtotal,
		MaxUses:      o.maxUses,
		PerUserLimit: o.perUser,
		Active:       true,
	}, nil
}

// normalize returns the canonical form of a list entry, or false when it
// cannot be a code.
func normalize(line string) (string, bool) {
	code := coupon.Canonical(line)
	if len(code) < minCodeLen || len(code) > maxCodeLen {
		return "", false
	}
	return code, true
}

// buildFilters creates one bloom filter per list, concurrently.
func buildFilters(ctx context.Context, files []string, capacity uint) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			f := bloom.NewWithEstimates(capacity, bloomFPR)
			n, err := scanFile(ctx, path, func(code string) { f.AddString(code) })
			if err != nil {
				return errors.Wrapf(err, "list %s", path)
			}
			zctx.From(ctx).Info("Pass 1 list done", zap.Int("list", i+1), zap.Uint64("codes", n))
			filters[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// findValidCodes re-reads every list and keeps codes that another list's
// filter also reports. Bloom false positives are removed by requiring the
// code to be seen, not merely suspected, in two lists.
func findValidCodes(ctx context.Context, files []string, filters []*bloom.BloomFilter) ([]string, error) {
	found := make([]map[string]uint64, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			candidates := make(map[string]uint64)
			bit := uint64(1) << uint(i)
			_, err := scanFile(ctx, path, func(code string) {
				if inOther(filters, i, code) {
					candidates[code] |= bit
				}
			})
			if err != nil {
				return errors.Wrapf(err, "list %s", path)
			}
			zctx.From(ctx).Info("Pass 2 list done", zap.Int("list", i+1), zap.Int("candidates", len(candidates)))
			found[i] = candidates
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return mergeCandidates(found), nil
}

func inOther(filters []*bloom.BloomFilter, self int, code string) bool {
	for j, f := range filters {
		if j != self && f.TestString(code) {
			return true
		}
	}
	return false
}

// mergeCandidates returns the sorted codes whose list masks cover two or
// more lists.
func mergeCandidates(found []map[string]uint64) []string {
	merged := make(map[string]uint64)
	for _, c := range found {
		for code, mask := range c {
			merged[code] |= mask
		}
	}
	var valid []string
	for code, mask := range merged {
		if bits.OnesCount64(mask) >= 2 {
			valid = append(valid, code)
		}
	}
	slices.Sort(valid)
	return valid
}

// scanFile decompresses path and calls fn for each normalized code.
func scanFile(ctx context.Context, path string, fn func(code string)) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return 0, errors.Wrap(err, "gzip reader")
	}
	defer func() { _ = gz.Close() }()

	return scanCodes(ctx, gz, fn)
}

func scanCodes(ctx context.Context, r io.Reader, fn func(code string)) (uint64, error) {
	var n uint64
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		code, ok := normalize(sc.Text())
		if !ok {
			continue
		}
		n++
		if n%progressEvery == 0 {
			if err := ctx.Err(); err != nil {
				return n, err
			}
			zctx.From(ctx).Debug("Scan progress", zap.Uint64("codes", n))
		}
		fn(code)
	}
	if err := sc.Err(); err != nil {
		return n, errors.Wrap(err, "scan")
	}
	return n, ctx.Err()
}

// couponSaver is the subset of the coupon repository used for writes.
type couponSaver interface {
	Save(ctx context.Context, c coupon.Rule) error
}

// writeCoupons upserts every code with the template rule.
func writeCoupons(ctx context.Context, repo couponSaver, rule coupon.Rule, codes []string) error {
	lg := zctx.From(ctx)
	lg.Info("Writing coupons", zap.Int("count", len(codes)))

	for i, code := range codes {
		r := rule
		r.Code = code
		if err := repo.Save(ctx, r); err != nil {
			return errors.Wrapf(err, "save coupon %s", code)
		}
		if (i+1)%1000 == 0 || i+1 == len(codes) {
			lg.Info("Write progress", zap.Int("written", i+1), zap.Int("total", len(codes)))
		}
	}
	return nil
}
