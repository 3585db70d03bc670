// Package ingest reduces raw tick batches before they reach the
// monitoring engine. A batch may carry many ticks for the same token;
// only the latest one per token matters for inactivity detection.
package ingest

import "stallwatch/internal/model"

// Latest reduces an unordered batch to the latest tick per token,
// judged by TickTS. Ties are broken by last-seen-in-batch. Single pass,
// O(n); an empty batch yields an empty map. Pure, no side effects.
func Latest(batch []model.Tick) map[string]model.Tick {
	out := make(map[string]model.Tick, len(batch))
	for _, tk := range batch {
		prev, ok := out[tk.Token]
		if !ok || !tk.TickTS.Before(prev.TickTS) {
			out[tk.Token] = tk
		}
	}
	return out
}
