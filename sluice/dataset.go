package sluice

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/jmespath/go-jmespath"
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// datasetConfig holds the resolved configuration for a dataset.
type datasetConfig struct {
	prefix   string
	decoder  Decoder
	executor Executor
	logger   *slog.Logger
}

// recordsConfig holds the resolved configuration for a single records or
// summaries run.
type recordsConfig struct {
	decoder  Decoder
	executor Executor
	limit    int // -1 means unlimited
	sample   float64
	seed     uint64
	seeded   bool
	stats    *ScanStats
}

// Option configures dataset construction or a records run.
// Options implement methods for the call sites they support.
// Using an option with an unsupported call site returns an error.
type Option interface {
	applyDataset(*datasetConfig) error
	applyRecords(*recordsConfig) error
}

// ErrOptionNotValidForRecords indicates an option was used with Records or
// Summaries that only applies to New.
var ErrOptionNotValidForRecords = errors.New("option not valid for records")

// ErrOptionNotValidForDataset indicates an option was used with New that
// only applies to Records or Summaries.
var ErrOptionNotValidForDataset = errors.New("option not valid for dataset")

// prefixOption implements Option for WithPrefix (dataset-only).
type prefixOption struct {
	prefix string
}

// WithPrefix sets the root key prefix under which the dataset's dimension
// tree lives. Default: the bucket root.
func WithPrefix(prefix string) Option {
	return &prefixOption{prefix: prefix}
}

func (o *prefixOption) applyDataset(cfg *datasetConfig) error {
	cfg.prefix = strings.Trim(o.prefix, "/")
	return nil
}

func (o *prefixOption) applyRecords(*recordsConfig) error {
	return fmt.Errorf("WithPrefix: %w", ErrOptionNotValidForRecords)
}

// decoderOption implements Option for WithDecoder.
type decoderOption struct {
	decoder Decoder
}

// WithDecoder sets the decoder used to turn fetched objects into records.
// Default: NewJSONLDecoder(). Valid for both New and Records; a records-level
// decoder overrides the dataset's for that run.
func WithDecoder(d Decoder) Option {
	return &decoderOption{decoder: d}
}

func (o *decoderOption) applyDataset(cfg *datasetConfig) error {
	if o.decoder == nil {
		return errors.New("WithDecoder: decoder must not be nil")
	}
	cfg.decoder = o.decoder
	return nil
}

func (o *decoderOption) applyRecords(cfg *recordsConfig) error {
	if o.decoder == nil {
		return errors.New("WithDecoder: decoder must not be nil")
	}
	cfg.decoder = o.decoder
	return nil
}

// executorOption implements Option for WithExecutor.
type executorOption struct {
	executor Executor
}

// WithExecutor sets the executor that runs parallel listing and fetching.
// Default: NewParallelExecutor(0). Valid for both New and Records; a
// records-level executor overrides the dataset's for that run.
func WithExecutor(e Executor) Option {
	return &executorOption{executor: e}
}

func (o *executorOption) applyDataset(cfg *datasetConfig) error {
	if o.executor == nil {
		return errors.New("WithExecutor: executor must not be nil")
	}
	cfg.executor = o.executor
	return nil
}

func (o *executorOption) applyRecords(cfg *recordsConfig) error {
	if o.executor == nil {
		return errors.New("WithExecutor: executor must not be nil")
	}
	cfg.executor = o.executor
	return nil
}

// loggerOption implements Option for WithLogger (dataset-only).
type loggerOption struct {
	logger *slog.Logger
}

// WithLogger sets the structured logger for scan progress and skipped
// objects. Pass nil to disable logging (the default).
func WithLogger(l *slog.Logger) Option {
	return &loggerOption{logger: l}
}

func (o *loggerOption) applyDataset(cfg *datasetConfig) error {
	cfg.logger = o.logger
	return nil
}

func (o *loggerOption) applyRecords(*recordsConfig) error {
	return fmt.Errorf("WithLogger: %w", ErrOptionNotValidForRecords)
}

// limitOption implements Option for WithLimit (records-only).
type limitOption struct {
	limit int
}

// WithLimit caps the number of partitions scanned by a records run. It
// bounds partitions, not records; callers needing a fixed number of records
// must post-filter. Zero scans nothing. Default: unlimited.
func WithLimit(n int) Option {
	return &limitOption{limit: n}
}

func (o *limitOption) applyDataset(*datasetConfig) error {
	return fmt.Errorf("WithLimit: %w", ErrOptionNotValidForDataset)
}

func (o *limitOption) applyRecords(cfg *recordsConfig) error {
	if o.limit < 0 {
		return fmt.Errorf("WithLimit: limit must be >= 0, got %d", o.limit)
	}
	cfg.limit = o.limit
	return nil
}

// sampleOption implements Option for WithSampleFraction (records-only).
type sampleOption struct {
	fraction float64
}

// WithSampleFraction keeps a random subset of the resolved partitions,
// floor(fraction * n) of them, before any listing or fetching. The fraction
// must be in (0, 1]. Unless a seed is supplied with WithSeed, the subset is
// drawn fresh per run and repeated queries see different partitions.
func WithSampleFraction(fraction float64) Option {
	return &sampleOption{fraction: fraction}
}

func (o *sampleOption) applyDataset(*datasetConfig) error {
	return fmt.Errorf("WithSampleFraction: %w", ErrOptionNotValidForDataset)
}

func (o *sampleOption) applyRecords(cfg *recordsConfig) error {
	if o.fraction <= 0 || o.fraction > 1 {
		return fmt.Errorf("WithSampleFraction: fraction must be in (0, 1], got %v", o.fraction)
	}
	cfg.sample = o.fraction
	return nil
}

// seedOption implements Option for WithSeed (records-only).
type seedOption struct {
	seed uint64
}

// WithSeed fixes the sampling seed so repeated runs over the same dimension
// space select the same partition subset.
func WithSeed(seed uint64) Option {
	return &seedOption{seed: seed}
}

func (o *seedOption) applyDataset(*datasetConfig) error {
	return fmt.Errorf("WithSeed: %w", ErrOptionNotValidForDataset)
}

func (o *seedOption) applyRecords(cfg *recordsConfig) error {
	cfg.seed = o.seed
	cfg.seeded = true
	return nil
}

// statsOption implements Option for WithStats (records-only).
type statsOption struct {
	stats *ScanStats
}

// WithStats collects scan counters into stats during a records run. The
// counters are complete once the record stream has been fully consumed.
// Pass nil to disable collection (the default).
func WithStats(stats *ScanStats) Option {
	return &statsOption{stats: stats}
}

func (o *statsOption) applyDataset(*datasetConfig) error {
	return fmt.Errorf("WithStats: %w", ErrOptionNotValidForDataset)
}

func (o *statsOption) applyRecords(cfg *recordsConfig) error {
	cfg.stats = o.stats
	return nil
}

// -----------------------------------------------------------------------------
// Dataset
// -----------------------------------------------------------------------------

// Configuration error sentinel values.
var (
	// ErrUnknownDimension indicates a condition was bound to a dimension
	// name that is not in the schema.
	ErrUnknownDimension = errors.New("unknown dimension")

	// ErrDimensionBound indicates a dimension already has a condition.
	ErrDimensionBound = errors.New("dimension already bound")

	// ErrSelectionBound indicates a selection alias is already in use.
	ErrSelectionBound = errors.New("selection already bound")
)

// selection is one compiled projection expression.
type selection struct {
	alias string
	expr  string
	path  *jmespath.JMESPath
}

// Dataset is an immutable query descriptor over a dimension-partitioned
// namespace.
//
// A Dataset is built one condition at a time with Where; every builder
// method returns a new Dataset and leaves the receiver unchanged. Dimensions
// without a condition are wildcarded and expanded lazily, by listing the
// remote namespace under the already-resolved prefix, only when a terminal
// operation (Partitions, Summaries, Records) runs.
type Dataset struct {
	store      Store
	schema     []string
	prefix     string
	conditions map[string]Condition
	selections []selection
	decoder    Decoder
	executor   Executor
	logger     *slog.Logger
}

// New creates a dataset over the given store with the given dimension
// schema. Dimension order must match the remote layout exactly; a mismatch
// lists zero matches rather than erroring.
//
// Defaults:
//   - Prefix: bucket root
//   - Decoder: NewJSONLDecoder()
//   - Executor: NewParallelExecutor(0)
//   - Logger: discard
//
// Use option functions to override defaults:
//   - WithPrefix(p) to root the dimension tree under a key prefix
//   - WithDecoder(d) to decode a different object format
//   - WithExecutor(e) to control parallel listing and fetching
//   - WithLogger(l) to observe scan progress
func New(store Store, schema []string, opts ...Option) (*Dataset, error) {
	if store == nil {
		return nil, errors.New("sluice: store is required")
	}
	if len(schema) == 0 {
		return nil, errors.New("sluice: schema must name at least one dimension")
	}

	seen := make(map[string]bool, len(schema))
	for _, name := range schema {
		if name == "" {
			return nil, errors.New("sluice: schema contains an empty dimension name")
		}
		if seen[name] {
			return nil, fmt.Errorf("sluice: schema contains dimension %q twice", name)
		}
		seen[name] = true
	}

	cfg := &datasetConfig{
		decoder: NewJSONLDecoder(),
	}

	for _, opt := range opts {
		if err := opt.applyDataset(cfg); err != nil {
			return nil, fmt.Errorf("sluice: %w", err)
		}
	}

	if cfg.executor == nil {
		cfg.executor = NewParallelExecutor(0)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}

	return &Dataset{
		store:      store,
		schema:     slices.Clone(schema),
		prefix:     cfg.prefix,
		conditions: make(map[string]Condition),
		decoder:    cfg.decoder,
		executor:   cfg.executor,
		logger:     cfg.logger,
	}, nil
}

// Where binds a condition to a dimension and returns the updated dataset.
// The receiver is unchanged. The effect is order-independent: binding two
// dimensions in either order yields the same descriptor.
//
// Binding an unknown dimension or rebinding a bound one is a configuration
// error, surfaced immediately.
func (d *Dataset) Where(dimension string, cond Condition) (*Dataset, error) {
	if cond == nil {
		return nil, fmt.Errorf("sluice: condition for dimension %q must not be nil", dimension)
	}
	if !slices.Contains(d.schema, dimension) {
		return nil, fmt.Errorf("sluice: dimension %q is not in schema %v: %w", dimension, d.schema, ErrUnknownDimension)
	}
	if _, bound := d.conditions[dimension]; bound {
		return nil, fmt.Errorf("sluice: dimension %q: %w", dimension, ErrDimensionBound)
	}

	next := d.clone()
	next.conditions[dimension] = cond
	return next, nil
}

// Select registers payload projections and returns the updated dataset.
// Each expression is a JMESPath query evaluated against the record payload
// at materialization time; the expression doubles as its alias. Invalid
// expressions and duplicate aliases are configuration errors, surfaced
// immediately.
func (d *Dataset) Select(exprs ...string) (*Dataset, error) {
	next := d
	for _, expr := range exprs {
		var err error
		next, err = next.SelectAs(expr, expr)
		if err != nil {
			return nil, err
		}
	}
	return next, nil
}

// SelectAs registers a single payload projection under an explicit alias
// and returns the updated dataset.
func (d *Dataset) SelectAs(alias, expr string) (*Dataset, error) {
	if alias == "" {
		return nil, errors.New("sluice: selection alias must not be empty")
	}
	for _, s := range d.selections {
		if s.alias == alias {
			return nil, fmt.Errorf("sluice: selection %q: %w", alias, ErrSelectionBound)
		}
	}

	path, err := jmespath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("sluice: selection %q: %w", expr, err)
	}

	next := d.clone()
	next.selections = append(next.selections, selection{alias: alias, expr: expr, path: path})
	return next, nil
}

// Schema returns the dimension names in resolution order.
func (d *Dataset) Schema() []string {
	return slices.Clone(d.schema)
}

// Prefix returns the root key prefix the dataset queries under.
func (d *Dataset) Prefix() string {
	return d.prefix
}

// String describes the dataset's schema and bound conditions in resolution
// order. Unbound dimensions show as wildcards.
func (d *Dataset) String() string {
	var b strings.Builder
	b.WriteString("sluice.Dataset(")
	if d.prefix != "" {
		fmt.Fprintf(&b, "prefix=%q, ", d.prefix)
	}
	b.WriteString("dimensions=[")
	for i, name := range d.schema {
		if i > 0 {
			b.WriteString(", ")
		}
		cond, bound := d.conditions[name]
		if bound {
			fmt.Fprintf(&b, "%s %s", name, cond)
		} else {
			fmt.Fprintf(&b, "%s = *", name)
		}
	}
	b.WriteString("])")
	return b.String()
}

// clone copies the dataset so builder methods can modify the copy.
func (d *Dataset) clone() *Dataset {
	next := *d
	next.conditions = make(map[string]Condition, len(d.conditions)+1)
	for name, cond := range d.conditions {
		next.conditions[name] = cond
	}
	next.selections = slices.Clone(d.selections)
	return &next
}

// rootPrefix returns the prefix the dimension walk starts from.
func (d *Dataset) rootPrefix() string {
	if d.prefix == "" {
		return ""
	}
	return d.prefix + "/"
}
