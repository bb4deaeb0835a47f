package lfq

// ProducerToken identifies a producer on a shared MPMC queue. The
// underlying Queue is already safe for concurrent producers without a
// token (CAS on the tail index), but every RX/worker shard in spec.md
// §4.5/§4.6 is described as holding one "producer token" — we keep the
// type so call sites read the same way the spec does and so a future
// cache-affinity optimization (a per-producer reserved index range) has
// a home without changing call sites.
type ProducerToken struct {
	id int
}

// NewProducerToken mints a token for producer id (e.g. shard index).
func NewProducerToken(id int) ProducerToken { return ProducerToken{id: id} }

// ID returns the producer's shard index.
func (t ProducerToken) ID() int { return t.id }

// ShardSet is N independent single-consumer queues, one per worker, used
// for the master's per-stage task queues: a task is affine to exactly one
// worker (spec.md §4.5 "Workers are addressed by i mod thread_num"), so
// each worker's task stream needs no producer/consumer contention with
// its siblings.
type ShardSet[T any] struct {
	shards []*Queue[T]
}

// NewShardSet builds n shards, each of the given per-shard capacity.
func NewShardSet[T any](n, capacity int) *ShardSet[T] {
	s := &ShardSet[T]{shards: make([]*Queue[T], n)}
	for i := range s.shards {
		s.shards[i] = New[T](capacity)
	}
	return s
}

// Len returns the shard count.
func (s *ShardSet[T]) Len() int { return len(s.shards) }

// Shard returns the queue owned by worker i.
func (s *ShardSet[T]) Shard(i int) *Queue[T] { return s.shards[i%len(s.shards)] }

// TryEnqueueTo pushes v onto worker i's shard, retrying with a blocking
// Enqueue and a caller-supplied warning callback on overflow, matching
// the master's backpressure policy in spec.md §4.5.
func (s *ShardSet[T]) TryEnqueueTo(i int, v T, onBlock func()) {
	shard := s.Shard(i)
	if shard.TryEnqueue(v) {
		return
	}
	if onBlock != nil {
		onBlock()
	}
	shard.Enqueue(v)
}
