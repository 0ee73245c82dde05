package mail

// filterUnseen returns the candidate IDs not present in existing, preserving
// provider order and dropping repeats within the candidate list itself.
//
// This is an advisory filter to avoid refetching known messages; the unique
// index on (account_id, message_id) remains the dedup authority, so an ID
// that slips through here still lands as a no-op insert.
func filterUnseen(candidates []string, existing map[string]struct{}) []string {
	if len(candidates) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(candidates))
	unseen := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if _, ok := existing[id]; ok {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unseen = append(unseen, id)
	}
	return unseen
}
