package storage

import "strings"

// LikePattern turns a user query into a %substring% LIKE pattern with
// '\' as the escape character for literal %, _ and \.
func LikePattern(query string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(query) + "%"
}

// OrderClause returns the ORDER BY expression for a normalized sort.
func OrderClause(sort string) string {
	switch sort {
	case SortCreated:
		return "created_at DESC, path ASC"
	case SortPath:
		return "path ASC"
	default:
		return "updated_at DESC, path ASC"
	}
}
