package server

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pthm/lattice"
	"github.com/pthm/lattice/internal/sqlgen/sqldsl"
	"github.com/pthm/lattice/pkg/schema"
)

type listQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1"`
}

// listRecords returns the rows of a table the session can see.
func (s *Server) listRecords(c *gin.Context) {
	table, ok := s.table(c)
	if !ok {
		return
	}
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abortError(c, http.StatusBadRequest, err.Error())
		return
	}
	limit := s.cfg.MaxRows
	if q.Limit > 0 && q.Limit < limit {
		limit = q.Limit
	}

	session := sessionFrom(c)
	if !s.permit(c, table.Name, schema.ActionRead, session) {
		return
	}

	query := selectRecords(table).SQL()
	ctx := c.Request.Context()
	records := make([]json.RawMessage, 0)
	err := s.checker.WithSession(ctx, session, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, limit)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var rec []byte
			if err := rows.Scan(&rec); err != nil {
				return err
			}
			records = append(records, rec)
		}
		return rows.Err()
	})
	if err != nil {
		s.databaseError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

// createRecord inserts one row from a JSON object of field values.
func (s *Server) createRecord(c *gin.Context) {
	table, ok := s.table(c)
	if !ok {
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		abortError(c, http.StatusBadRequest, err.Error())
		return
	}
	columns, err := recordColumns(table, body)
	if err != nil {
		abortError(c, http.StatusBadRequest, err.Error())
		return
	}

	session := sessionFrom(c)
	if !s.permit(c, table.Name, schema.ActionCreate, session) {
		return
	}
	// RETURNING is subject to the read policy. A filtered read would fail the
	// whole insert when the new row falls outside the filter, so the row is
	// only returned when reads are unconditional.
	read, err := s.checker.Decide(c.Request.Context(), table.Name, schema.ActionRead, session)
	if err != nil {
		s.databaseError(c, err)
		return
	}
	returning := read == lattice.DecisionAllow

	stmt := insertRecord(table, columns, returning)
	args := []any{}
	if len(columns) > 0 {
		args = append(args, string(body))
	}

	ctx := c.Request.Context()
	var created []byte
	err = s.checker.WithSession(ctx, session, func(tx *sql.Tx) error {
		if !returning {
			_, err := tx.ExecContext(ctx, stmt.SQL(), args...)
			return err
		}
		return tx.QueryRowContext(ctx, stmt.SQL(), args...).Scan(&created)
	})
	if err != nil {
		s.databaseError(c, err)
		return
	}
	if created == nil {
		c.JSON(http.StatusCreated, gin.H{})
		return
	}
	c.Data(http.StatusCreated, "application/json; charset=utf-8", created)
}

// table resolves the :table parameter, answering 404 for unknown tables.
func (s *Server) table(c *gin.Context) (schema.Table, bool) {
	t, ok := s.tables[c.Param("table")]
	if !ok {
		abortError(c, http.StatusNotFound, "unknown table "+c.Param("table"))
		return schema.Table{}, false
	}
	return t, true
}

// permit records the decision and answers 403 when it denies.
func (s *Server) permit(c *gin.Context, table string, action schema.Action, session lattice.Session) bool {
	d, err := s.checker.Decide(c.Request.Context(), table, action, session)
	if err != nil {
		s.databaseError(c, err)
		return false
	}
	s.metrics.observeDecision(table, action, d)
	if !d.Permitted() {
		abortError(c, http.StatusForbidden, string(action)+" on "+table+" is not permitted")
		return false
	}
	return true
}

// databaseError maps an error to a response. Constraint and data errors are
// client errors and keep the database message.
func (s *Server) databaseError(c *gin.Context, err error) {
	switch {
	case lattice.IsPolicyViolation(err):
		abortError(c, http.StatusForbidden, err.Error())
	case lattice.IsConstraintViolation(err), strings.HasPrefix(lattice.SQLState(err), "22"):
		abortError(c, http.StatusBadRequest, err.Error())
	case lattice.IsInvalidSessionErr(err):
		abortError(c, http.StatusUnauthorized, err.Error())
	default:
		s.logger.Error("request failed", "method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
		abortError(c, http.StatusInternalServerError, "internal error")
	}
}

func selectRecords(t schema.Table) sqldsl.SelectStmt {
	var order []sqldsl.Expr
	for _, col := range t.PrimaryKeyOrDefault().Columns() {
		order = append(order, sqldsl.Col{Table: "r", Column: col})
	}
	return sqldsl.SelectStmt{
		Columns: []sqldsl.Expr{sqldsl.Raw("to_jsonb(r)")},
		From:    sqldsl.TableRef{Name: t.Name, Alias: "r"},
		OrderBy: order,
		Limit:   sqldsl.Param(1),
	}
}

// insertRecord builds an INSERT that reads the values from the JSON body
// bound to $1, so PostgreSQL performs every type conversion.
func insertRecord(t schema.Table, columns []string, returning bool) sqldsl.InsertSelect {
	cols := make([]sqldsl.Expr, len(columns))
	for i, name := range columns {
		cols[i] = sqldsl.Col{Table: "r", Column: name}
	}
	stmt := sqldsl.InsertSelect{
		Table:   t.Name,
		Columns: columns,
		Query: sqldsl.SelectStmt{
			Columns: cols,
			From:    sqldsl.Raw("json_populate_record(NULL::" + sqldsl.Ident(t.Name) + ", $1::json) AS r"),
		},
	}
	if returning {
		stmt.Returning = []sqldsl.Expr{sqldsl.Raw("to_jsonb(" + sqldsl.Ident(t.Name) + ".*)")}
	}
	return stmt
}

// recordColumns returns the sorted keys of a JSON object body. Every key must
// be a declared field.
func recordColumns(t schema.Table, body []byte) ([]string, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("request body must be a JSON object")
	}
	var values map[string]json.RawMessage
	if err := json.Unmarshal(body, &values); err != nil {
		return nil, errors.New("request body must be a JSON object: " + err.Error())
	}
	if values == nil {
		return nil, errors.New("request body must be a JSON object")
	}

	columns := make([]string, 0, len(values))
	for name := range values {
		if _, ok := t.Field(name); !ok {
			return nil, errors.New("unknown field " + name + " on " + t.Name)
		}
		columns = append(columns, name)
	}
	sort.Strings(columns)
	return columns, nil
}
