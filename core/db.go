package core

// DBOrdering is a single ORDER BY term, parsed from "field" / "-field" query
// param syntax at the API boundary.
type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}
