package teacher

import (
	"database/sql"
)

// Teacher is a person teaching lessons. Key is the identity; Code and Name
// are attributes refined as more spellings are observed.
type Teacher struct {
	Key           string         `db:"teacher_key"`
	Code          sql.NullString `db:"code"`
	Name          string         `db:"name"`
	SourceHref    string         `db:"source_href"`
	URL           string         `db:"url"`
	LastSeenRunID string         `db:"last_seen_run_id"`
}
