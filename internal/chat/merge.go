package chat

import (
	"sort"
)

// Merge combines two message lists into one timestamp-ordered list in which
// every key appears once. Entries from incoming replace existing entries with
// the same key. Ties keep their first-seen order.
func Merge(existing, incoming []Message) []Message {
	index := make(map[string]int, len(existing)+len(incoming))
	out := make([]Message, 0, len(existing)+len(incoming))
	for _, list := range [][]Message{existing, incoming} {
		for _, m := range list {
			k := m.Key()
			if i, ok := index[k]; ok {
				out[i] = m
				continue
			}
			index[k] = len(out)
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
