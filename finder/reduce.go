package finder

// RemoveAlreadyFollowed returns pool without any id in friendIds. Survivors
// keep their relative order and repeated ids collapse to their first
// occurrence. removed counts every dropped entry, repeats included.
func RemoveAlreadyFollowed(pool []string, friendIds []string) ([]string, int) {
	following := make(map[string]struct{}, len(friendIds))
	for _, id := range friendIds {
		following[id] = struct{}{}
	}

	seen := make(map[string]struct{}, len(pool))
	out := make([]string, 0, len(pool))
	for _, id := range pool {
		if _, ok := following[id]; ok {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	return out, len(pool) - len(out)
}
