package sluice

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"iter"
	"slices"
)

// groupsPerWorker scales the number of fetch batches relative to executor
// concurrency. More batches than workers keeps the size balancing useful
// while letting fast workers pull ahead.
const groupsPerWorker = 10

// objectRef ties a listed object to the partition it was found under.
type objectRef struct {
	ObjectSummary
	partition *Partition
}

// newRecordsConfig resolves per-run options over the dataset's defaults.
func (d *Dataset) newRecordsConfig(opts []Option) (*recordsConfig, error) {
	cfg := &recordsConfig{
		decoder:  d.decoder,
		executor: d.executor,
		limit:    -1,
		sample:   1,
	}
	for _, opt := range opts {
		if err := opt.applyRecords(cfg); err != nil {
			return nil, fmt.Errorf("sluice: %w", err)
		}
	}
	return cfg, nil
}

// -----------------------------------------------------------------------------
// Summaries
// -----------------------------------------------------------------------------

// Summaries lists the objects the dataset currently matches: each resolved
// partition is listed and the results are flattened in partition order.
// limit caps the number of objects returned; zero means unlimited.
func (d *Dataset) Summaries(ctx context.Context, limit int) ([]ObjectSummary, error) {
	if limit < 0 {
		return nil, fmt.Errorf("sluice: limit must be >= 0, got %d", limit)
	}

	partitions, err := d.resolvePartitions(ctx)
	if err != nil {
		return nil, err
	}

	perPartition, err := d.listObjects(ctx, d.executor, partitions)
	if err != nil {
		return nil, fmt.Errorf("sluice: %w", err)
	}

	var summaries []ObjectSummary
	for _, objects := range perPartition {
		summaries = append(summaries, objects...)
	}
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

// listObjects lists every partition in parallel. Results stay grouped by
// partition, in partition order.
func (d *Dataset) listObjects(ctx context.Context, ex Executor, partitions []Partition) ([][]ObjectSummary, error) {
	perPartition := make([][]ObjectSummary, len(partitions))
	err := ex.Map(ctx, len(partitions), func(ctx context.Context, i int) error {
		objects, err := d.store.ListObjects(ctx, partitions[i].Prefix)
		if err != nil {
			return fmt.Errorf("list objects under %q: %w", partitions[i].Prefix, err)
		}
		perPartition[i] = objects
		return nil
	})
	if err != nil {
		return nil, err
	}
	return perPartition, nil
}

// -----------------------------------------------------------------------------
// Records
// -----------------------------------------------------------------------------

// Records materializes the dataset as a lazy stream of decoded records.
//
// The pipeline resolves partitions, applies sampling and the partition
// limit, lists objects under the kept partitions, groups the objects into
// size-balanced batches, and fetches and decodes the batches in parallel
// through the executor. Records are yielded as workers finish objects, so
// stream order is not deterministic.
//
// An object that fails to decompress or decode is skipped, counted, and
// logged; it never fails the query. Store errors are fatal: the iterator
// yields a zero Ping with the error and stops. An empty stream is a normal
// result, not an error. Abandoning the stream early cancels remaining work.
//
// Records-level options: WithLimit, WithSampleFraction, WithSeed, WithStats,
// and per-run WithDecoder / WithExecutor overrides.
func (d *Dataset) Records(ctx context.Context, opts ...Option) iter.Seq2[Ping, error] {
	return func(yield func(Ping, error) bool) {
		cfg, err := d.newRecordsConfig(opts)
		if err != nil {
			yield(Ping{}, err)
			return
		}

		counters := &scanCounters{}
		defer func() { counters.snapshotInto(cfg.stats) }()

		partitions, err := d.resolvePartitions(ctx)
		if err != nil {
			yield(Ping{}, err)
			return
		}
		counters.partitionsResolved.Store(int64(len(partitions)))

		if cfg.sample < 1 {
			// Whole partitions are kept or dropped, so the subset is
			// skewed by whatever those partitions happen to contain.
			d.logger.Warn("partition sampling is not a representative sample; use for prototyping only",
				"fraction", cfg.sample)
			partitions = samplePartitions(partitions, cfg.sample, newSampleRand(cfg.seed, cfg.seeded))
		}
		if cfg.limit >= 0 && len(partitions) > cfg.limit {
			partitions = partitions[:cfg.limit]
		}
		counters.partitionsKept.Store(int64(len(partitions)))
		if len(partitions) == 0 {
			return
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		perPartition, err := d.listObjects(ctx, cfg.executor, partitions)
		if err != nil {
			yield(Ping{}, fmt.Errorf("sluice: %w", err))
			return
		}

		var objects []objectRef
		var totalBytes int64
		for i := range perPartition {
			for _, summary := range perPartition[i] {
				objects = append(objects, objectRef{ObjectSummary: summary, partition: &partitions[i]})
				totalBytes += summary.Size
			}
		}
		counters.objectsListed.Store(int64(len(objects)))
		if len(objects) == 0 {
			return
		}

		d.logger.Debug("fetching records",
			"partitions", len(partitions),
			"objects", len(objects),
			"bytes", totalBytes)

		groups := groupBySizeGreedy(objects, groupsPerWorker*cfg.executor.Concurrency())

		results := make(chan Ping, cfg.executor.Concurrency())
		fetchErr := make(chan error, 1)
		go func() {
			defer close(results)
			fetchErr <- cfg.executor.Map(ctx, len(groups), func(ctx context.Context, i int) error {
				for _, obj := range groups[i] {
					if err := d.fetchObject(ctx, cfg, counters, obj, results); err != nil {
						return err
					}
				}
				return nil
			})
		}()

		for ping := range results {
			counters.recordsYielded.Add(1)
			if !yield(ping, nil) {
				cancel()
				for range results {
					// Drain so blocked workers observe cancellation.
				}
				<-fetchErr
				return
			}
		}
		if err := <-fetchErr; err != nil {
			yield(Ping{}, fmt.Errorf("sluice: %w", err))
		}
	}
}

// fetchObject reads one object, decompresses and decodes it, and sends the
// resulting records. A failure after the object was fetched falls under the
// skip policy: log, count, move on. Store errors propagate and fail the run.
func (d *Dataset) fetchObject(ctx context.Context, cfg *recordsConfig, counters *scanCounters, obj objectRef, results chan<- Ping) error {
	rc, err := d.store.Get(ctx, obj.Key)
	if err != nil {
		return fmt.Errorf("get %q: %w", obj.Key, err)
	}

	counted := &countingReader{r: rc}
	pings, decodeErr := decodeObject(counted, cfg.decoder)
	_ = rc.Close()

	counters.objectsFetched.Add(1)
	counters.bytesFetched.Add(counted.n)

	if decodeErr != nil {
		counters.objectsSkipped.Add(1)
		d.logger.Warn("skipping undecodable object",
			"key", obj.Key,
			"decoder", cfg.decoder.Name(),
			"error", decodeErr)
		return nil
	}

	for i := range pings {
		d.finalize(&pings[i], obj)
		select {
		case results <- pings[i]:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// decodeObject decompresses and decodes one object's bytes.
func decodeObject(r io.Reader, dec Decoder) ([]Ping, error) {
	body, _, err := decompress(r)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()
	return dec.Decode(body)
}

// finalize stamps provenance onto a record and applies the projection.
// Dimension values and bookkeeping fields win over decoder-supplied meta.
func (d *Dataset) finalize(ping *Ping, obj objectRef) {
	meta := ping.Meta
	if meta == nil {
		meta = make(Metadata, len(d.schema)+2)
	}
	for i, name := range d.schema {
		meta[name] = obj.partition.Values[i]
	}
	meta["key"] = obj.Key
	meta["size"] = obj.Size
	ping.Meta = meta

	if len(d.selections) == 0 {
		return
	}
	selected := make(map[string]any, len(d.selections))
	for _, s := range d.selections {
		// JMESPath yields nil for paths absent from the payload;
		// evaluation errors collapse to nil the same way.
		v, err := s.path.Search(ping.Payload)
		if err != nil {
			v = nil
		}
		selected[s.alias] = v
	}
	ping.Payload = selected
}

// -----------------------------------------------------------------------------
// Size-balanced Grouping
// -----------------------------------------------------------------------------

// groupBySizeGreedy splits objects into at most n groups, keeping the total
// bytes per group as even as possible: objects are sorted by size, largest
// first, and dealt round-robin. Every returned group is non-empty.
func groupBySizeGreedy(objects []objectRef, n int) [][]objectRef {
	if len(objects) == 0 || n <= 0 {
		return nil
	}
	if n > len(objects) {
		n = len(objects)
	}

	sorted := slices.Clone(objects)
	slices.SortStableFunc(sorted, func(a, b objectRef) int {
		return cmp.Compare(b.Size, a.Size)
	})

	groups := make([][]objectRef, n)
	for i, obj := range sorted {
		groups[i%n] = append(groups[i%n], obj)
	}
	return groups
}

// countingReader counts bytes read from the underlying reader.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
