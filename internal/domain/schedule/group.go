package schedule

import (
	"database/sql"
)

// Group is a student group as listed on the group roster page.
type Group struct {
	Code            string       `db:"code"`
	Name            string       `db:"name"`
	SourceHref      string       `db:"source_href"`
	URL             string       `db:"url"`
	LastSeenRunID   string       `db:"last_seen_run_id"`
	SourceUpdatedAt sql.NullTime `db:"source_updated_at"`
}
