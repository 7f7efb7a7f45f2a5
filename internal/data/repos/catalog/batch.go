package catalog

import "github.com/google/uuid"

// inChunk bounds the number of bind variables in a single IN clause.
const inChunk = 500

func chunkIDs(ids []uuid.UUID, size int) [][]uuid.UUID {
	if size <= 0 {
		size = inChunk
	}
	out := make([][]uuid.UUID, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
