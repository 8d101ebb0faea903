package members

// Member is one row of the members table, column name to value. The table
// schema is owned elsewhere, so no fixed struct.
type Member map[string]any

// Table holds the members rows together with the column order reported by the database.
type Table struct {
	Columns []string
	Rows    []Member
}

func emptyTable() Table {
	return Table{
		Columns: []string{},
		Rows:    []Member{},
	}
}
