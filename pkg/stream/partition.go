package stream

import (
	"context"
	"fmt"
	"iter"

	"github.com/cespare/xxhash/v2"

	"github.com/ajitpratap0/nebula-dispatch/pkg/slicing"
)

// PartitionID is the identity of a partition, derived from the stream name
// and the slice.
type PartitionID uint64

// String formats the ID as fixed-width hex.
func (id PartitionID) String() string {
	return fmt.Sprintf("%016x", uint64(id))
}

// Partition binds one slice to the stream that reads it.
type Partition struct {
	stream Stream
	slice  slicing.Slice
	id     PartitionID
}

// NewPartition creates the partition of s for slice.
func NewPartition(s Stream, slice slicing.Slice) *Partition {
	return &Partition{
		stream: s,
		slice:  slice,
		id:     PartitionKey(s.Name(), slice),
	}
}

// PartitionKey hashes the stream name and the canonical slice key.
func PartitionKey(streamName string, slice slicing.Slice) PartitionID {
	d := xxhash.New()
	_, _ = d.WriteString(streamName)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(slice.Key())
	return PartitionID(d.Sum64())
}

// ID returns the partition identity.
func (p *Partition) ID() PartitionID { return p.id }

// Stream returns the stream name.
func (p *Partition) Stream() string { return p.stream.Name() }

// Slice returns the partition slice.
func (p *Partition) Slice() slicing.Slice { return p.slice }

// Read reads the partition's records, tagging each with the partition ID
// and the stream name.
func (p *Partition) Read(ctx context.Context, state State) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for rec, err := range p.stream.ReadSlice(ctx, p.slice, state) {
			if err != nil {
				yield(Record{}, err)
				return
			}
			rec.Partition = p.id
			if rec.Stream == "" {
				rec.Stream = p.stream.Name()
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// PartitionSet deduplicates partitions by identity, keeping first-seen
// order.
type PartitionSet struct {
	index map[PartitionID]int
	items []*Partition
}

// NewPartitionSet creates an empty set.
func NewPartitionSet() *PartitionSet {
	return &PartitionSet{index: make(map[PartitionID]int)}
}

// Add inserts p and reports whether it was new.
func (s *PartitionSet) Add(p *Partition) bool {
	if _, ok := s.index[p.ID()]; ok {
		return false
	}
	s.index[p.ID()] = len(s.items)
	s.items = append(s.items, p)
	return true
}

// Contains reports whether a partition with id is in the set.
func (s *PartitionSet) Contains(id PartitionID) bool {
	_, ok := s.index[id]
	return ok
}

// Len returns the number of distinct partitions.
func (s *PartitionSet) Len() int { return len(s.items) }

// All returns the partitions in insertion order.
func (s *PartitionSet) All() []*Partition {
	out := make([]*Partition, len(s.items))
	copy(out, s.items)
	return out
}
