// Package pgrepos implements the repositories on PostgreSQL through sqlx.
package pgrepos

import (
	"database/sql"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/klunity/klunity/core"
)

const uniqueViolation = "23505"

// getExec returns the transaction handed down by a service, or db.
func getExec(db *sqlx.DB, exec []core.DBExecutor) sqlx.ExtContext {
	if len(exec) > 0 && exec[0] != nil {
		if ext, ok := exec[0].(sqlx.ExtContext); ok {
			return ext
		}
	}
	return db
}

// uniqueConstraint returns the name of the constraint err violates, if any.
func uniqueConstraint(err error) (string, bool) {
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}

func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func rowsAffected(res sql.Result) int {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return int(n)
}

// where accumulates the conditions and positional args of a dynamic query.
type where struct {
	conds []string
	args  []interface{}
}

// add appends cond, replacing each "?" with the next positional placeholder.
func (w *where) add(cond string, args ...interface{}) {
	for _, arg := range args {
		w.args = append(w.args, arg)
		cond = strings.Replace(cond, "?", "$"+strconv.Itoa(len(w.args)), 1)
	}
	w.conds = append(w.conds, cond)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// next returns the placeholder of an extra arg appended after the conditions.
func (w *where) next(arg interface{}) string {
	w.args = append(w.args, arg)
	return "$" + strconv.Itoa(len(w.args))
}

func orderBy(ordering []core.DBOrdering, columns map[string]string, fallback string) string {
	parts := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		if col, ok := columns[ord.Field]; ok {
			parts = append(parts, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
		}
	}
	parts = append(parts, fallback)
	return " ORDER BY " + strings.Join(parts, ", ")
}

func stringArray(ss []string) pq.StringArray {
	if ss == nil {
		return pq.StringArray{}
	}
	return ss
}
