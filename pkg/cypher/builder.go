package cypher

// The constructors below produce one plan per repository operation. Every plan
// is built fresh per call; nothing here is shared or cached.

// Create inserts a node carrying props.
func Create(typeName string, props map[string]any) *Plan {
	return &Plan{
		Action: ActionCreate,
		Nodes:  []Node{NodeOf(NodeAlias, typeName)},
		Params: map[string]any{EntityParam: props},
	}
}

// Replace overwrites every property of the node keyed by key.
func Replace(typeName, key string, props map[string]any) *Plan {
	return &Plan{
		Action: ActionReplace,
		Nodes:  []Node{NodeOf(NodeAlias, typeName)},
		Keys:   []KeyFilter{{Alias: NodeAlias, Key: key}},
		Params: map[string]any{EntityParam: props},
	}
}

// DetachDelete removes the node keyed by key with all its relationships.
func DetachDelete(typeName, key string) *Plan {
	return &Plan{
		Action: ActionDetachDelete,
		Nodes:  []Node{NodeOf(NodeAlias, typeName)},
		Keys:   []KeyFilter{{Alias: NodeAlias, Key: key}},
	}
}

// Read returns the entities matching node and filter.
func Read(node Node, filter Filter, page *Page) *Plan {
	return &Plan{
		Action: ActionRead,
		Nodes:  []Node{node},
		Filter: filter,
		Return: ReturnEntity,
		Target: node.Alias,
		Page:   page,
	}
}

// ReadByID returns at most one entity keyed by key.
func ReadByID(typeName, key string) *Plan {
	return &Plan{
		Action: ActionRead,
		Nodes:  []Node{NodeOf(NodeAlias, typeName)},
		Keys:   []KeyFilter{{Alias: NodeAlias, Key: key}},
		Return: ReturnEntity,
		Target: NodeAlias,
		Page:   &Page{Limit: 1},
	}
}

// Labels returns the label set of the node keyed by key.
func Labels(typeName, key string) *Plan {
	return &Plan{
		Action: ActionRead,
		Nodes:  []Node{NodeOf(NodeAlias, typeName)},
		Keys:   []KeyFilter{{Alias: NodeAlias, Key: key}},
		Return: ReturnLabels,
		Target: NodeAlias,
		Page:   &Page{Limit: 1},
	}
}

// SetLabel adds label to the node keyed by key.
func SetLabel(typeName, key, label string) *Plan {
	return &Plan{
		Action: ActionSetLabel,
		Nodes:  []Node{NodeOf(NodeAlias, typeName)},
		Keys:   []KeyFilter{{Alias: NodeAlias, Key: key}},
		Label:  label,
	}
}

// RemoveLabel drops label from the node keyed by key.
func RemoveLabel(typeName, key, label string) *Plan {
	p := SetLabel(typeName, key, label)
	p.Action = ActionRemoveLabel
	return p
}

// Merge creates the relationship path between the two keyed nodes unless it
// already exists. A non-nil relation is merged into the relationship properties.
func Merge(path Path, inKey, outKey string, relation map[string]any) *Plan {
	p := &Plan{
		Action: ActionMerge,
		Nodes:  []Node{path.From, path.To},
		Path:   &path,
		Keys:   endpoints(path, inKey, outKey),
	}
	if relation != nil {
		p.Params = map[string]any{RelationParam: relation}
	}
	return p
}

// CountPath counts the relationships along path between the keyed nodes.
func CountPath(path Path, inKey, outKey string) *Plan {
	return &Plan{
		Action: ActionRead,
		Path:   &path,
		Keys:   endpoints(path, inKey, outKey),
		Return: ReturnCount,
		Target: path.Alias,
	}
}

// DeletePath removes the relationships along path between the keyed nodes.
func DeletePath(path Path, inKey, outKey string) *Plan {
	return &Plan{
		Action: ActionDeleteRelationship,
		Path:   &path,
		Keys:   endpoints(path, inKey, outKey),
	}
}

// Related collects, or counts, the outbound ends of path from the keyed node.
// filter applies to the relationship.
func Related(path Path, inKey string, filter Filter, page *Page, count bool) *Plan {
	p := &Plan{
		Action:   ActionRead,
		Path:     &path,
		Optional: true,
		Keys:     []KeyFilter{{Alias: path.From.Alias, Key: inKey}},
		Filter:   filter,
		Return:   ReturnCollect,
		Target:   path.To.Alias,
		Page:     page,
	}
	if count {
		p.Return = ReturnCount
	}
	return p
}

// Constraint makes Id unique among nodes of typeName.
func Constraint(typeName string) *Plan {
	return &Plan{
		Action:     ActionConstraint,
		Nodes:      []Node{NodeOf(NodeAlias, typeName)},
		Properties: []string{IDProperty},
	}
}

// Index indexes properties of nodes of typeName, Id when none are given.
func Index(typeName string, properties ...string) *Plan {
	if len(properties) == 0 {
		properties = []string{IDProperty}
	}
	return &Plan{
		Action:     ActionIndex,
		Nodes:      []Node{NodeOf(NodeAlias, typeName)},
		Properties: properties,
	}
}

// Raw passes caller text through untouched.
func Raw(statement string, params map[string]any) *Plan {
	return &Plan{
		Action:    ActionRaw,
		Statement: statement,
		Params:    params,
		Return:    ReturnRows,
	}
}

func endpoints(path Path, inKey, outKey string) []KeyFilter {
	return []KeyFilter{
		{Alias: path.From.Alias, Key: inKey},
		{Alias: path.To.Alias, Key: outKey},
	}
}
