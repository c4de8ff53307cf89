package schema

// Query is a single SQL statement with its bound arguments.
type Query struct {
	Stmt string
	Args []any
}

// A Change is one reversible unit of schema work. Down is expected to undo
// Up; a change whose effect cannot be reversed carries an empty Down.
type Change struct {
	// Comment describes the change for plan logs and migration files.
	Comment string
	Up      []Query
	Down    []Query
}

// A Plan is an ordered list of changes produced by one build. Applying the
// up queries in order converges the database on the declared model.
type Plan struct {
	// Name labels the plan, usually after its most significant change.
	Name    string
	Changes []*Change
}

// UpQueries flattens the plan into forward statements, in plan order.
func (p *Plan) UpQueries() []Query {
	var qs []Query
	for _, c := range p.Changes {
		qs = append(qs, c.Up...)
	}
	return qs
}

// DownQueries flattens the plan into reverse statements. Changes are undone
// last-first, and the statements inside each change are reversed as well.
func (p *Plan) DownQueries() []Query {
	var qs []Query
	for i := len(p.Changes) - 1; i >= 0; i-- {
		down := p.Changes[i].Down
		for j := len(down) - 1; j >= 0; j-- {
			qs = append(qs, down[j])
		}
	}
	return qs
}

// Empty reports whether the plan carries no statements.
func (p *Plan) Empty() bool {
	for _, c := range p.Changes {
		if len(c.Up) > 0 {
			return false
		}
	}
	return true
}
