package formula

// ExtractVariables returns the identifiers referenced by a formula,
// deduplicated in first-seen order. Numeric literals are dropped.
func ExtractVariables(source string) ([]string, error) {
	root, err := Parse(source)
	if err != nil {
		return nil, err
	}
	return collectIdentifiers(root), nil
}

func collectIdentifiers(root Node) []string {
	seen := make(map[string]bool)
	var names []string
	Walk(root, func(n Node) {
		id, ok := n.(*Identifier)
		if !ok || seen[id.Name] {
			return
		}
		seen[id.Name] = true
		names = append(names, id.Name)
	})
	return names
}
