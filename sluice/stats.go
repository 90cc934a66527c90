package sluice

import "sync/atomic"

// -----------------------------------------------------------------------------
// Scan Statistics
// -----------------------------------------------------------------------------

// ScanStats reports what a records run touched.
//
// Populate it by passing WithStats(&stats) to Records. The counters are
// written when the record stream finishes, whether it was fully consumed,
// abandoned early, or stopped by an error.
type ScanStats struct {
	// PartitionsResolved is the number of partition paths the dimension
	// walk produced before sampling and limiting.
	PartitionsResolved int64

	// PartitionsKept is the number of partitions scanned after sampling
	// and limiting.
	PartitionsKept int64

	// ObjectsListed is the number of objects found under the kept
	// partitions.
	ObjectsListed int64

	// ObjectsFetched is the number of objects read from the store.
	ObjectsFetched int64

	// ObjectsSkipped is the number of fetched objects dropped because
	// they failed to decompress or decode.
	ObjectsSkipped int64

	// BytesFetched is the total stored bytes read, before decompression.
	BytesFetched int64

	// RecordsYielded is the number of records delivered to the consumer.
	RecordsYielded int64
}

// scanCounters accumulates statistics across concurrent fetch workers.
type scanCounters struct {
	partitionsResolved atomic.Int64
	partitionsKept     atomic.Int64
	objectsListed      atomic.Int64
	objectsFetched     atomic.Int64
	objectsSkipped     atomic.Int64
	bytesFetched       atomic.Int64
	recordsYielded     atomic.Int64
}

// snapshotInto copies the current counter values into stats.
func (c *scanCounters) snapshotInto(stats *ScanStats) {
	if stats == nil {
		return
	}
	stats.PartitionsResolved = c.partitionsResolved.Load()
	stats.PartitionsKept = c.partitionsKept.Load()
	stats.ObjectsListed = c.objectsListed.Load()
	stats.ObjectsFetched = c.objectsFetched.Load()
	stats.ObjectsSkipped = c.objectsSkipped.Load()
	stats.BytesFetched = c.bytesFetched.Load()
	stats.RecordsYielded = c.recordsYielded.Load()
}
