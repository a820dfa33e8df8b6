package shared

import "strings"

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// LikePattern turns a user search term into a contains pattern for
// ILIKE ... ESCAPE '\'. Wildcards typed by the user match literally.
func LikePattern(term string) string {
	return "%" + likeEscaper.Replace(term) + "%"
}

// PrefixPattern is LikePattern anchored at the start of the value.
func PrefixPattern(term string) string {
	return likeEscaper.Replace(term) + "%"
}
