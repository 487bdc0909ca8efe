package vault

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/amirbrooks/mdv/internal/collection"
)

// compiledQuery is a request translated to SQL over the docs table.
type compiledQuery struct {
	formulaNames []string
	selectSQL    string
	countSQL     string
	selectArgs   []any
	countArgs    []any
}

// Query runs req against the index.
func (v *Vault) Query(ctx context.Context, req collection.QueryRequest) (collection.QueryResponse, error) {
	if err := v.checkOpen(); err != nil {
		return collection.QueryResponse{}, err
	}
	start := time.Now()
	q, err := compileRequest(req)
	if err != nil {
		return collection.QueryResponse{}, err
	}

	var total int
	if err := v.db.QueryRowContext(ctx, q.countSQL, q.countArgs...).Scan(&total); err != nil {
		return collection.QueryResponse{}, fmt.Errorf("query failed: %w", err)
	}

	rows, err := v.db.QueryContext(ctx, q.selectSQL, q.selectArgs...)
	if err != nil {
		return collection.QueryResponse{}, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	results := []collection.Document{}
	for rows.Next() {
		var p string
		formulaVals := make([]any, len(q.formulaNames))
		dest := []any{&p}
		for i := range formulaVals {
			dest = append(dest, &formulaVals[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return collection.QueryResponse{}, fmt.Errorf("query failed: %w", err)
		}
		doc, ok := v.docs[p]
		if !ok {
			continue
		}
		out := doc.toResult(req.IncludeBody)
		if len(q.formulaNames) > 0 {
			out.Formulas = make(map[string]any, len(q.formulaNames))
			for i, name := range q.formulaNames {
				out.Formulas[name] = normalizeSQLValue(formulaVals[i])
			}
		}
		results = append(results, out)
	}
	if err := rows.Err(); err != nil {
		return collection.QueryResponse{}, fmt.Errorf("query failed: %w", err)
	}

	offset := 0
	if req.Offset != nil {
		offset = *req.Offset
	}
	v.log.Debug("query",
		zap.Strings("types", req.Types),
		zap.String("where", req.Where),
		zap.Int("results", len(results)),
		zap.Int("total", total),
		zap.Duration("took", time.Since(start)))
	return collection.QueryResponse{
		Results: results,
		Meta:    &collection.Meta{TotalCount: total, HasMore: offset+len(results) < total},
	}, nil
}

func compileRequest(req collection.QueryRequest) (compiledQuery, error) {
	if len(req.Extra) > 0 {
		keys := make([]string, 0, len(req.Extra))
		for k := range req.Extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return compiledQuery{}, fmt.Errorf("%w: unknown query field %q", collection.ErrInvalid, keys[0])
	}
	if req.Limit != nil && *req.Limit < 0 {
		return compiledQuery{}, fmt.Errorf("%w: limit must not be negative", collection.ErrInvalid)
	}
	if req.Offset != nil && *req.Offset < 0 {
		return compiledQuery{}, fmt.Errorf("%w: offset must not be negative", collection.ErrInvalid)
	}

	var q compiledQuery
	c := compiler{formulas: map[string]fragment{}}
	for name := range req.Formulas {
		q.formulaNames = append(q.formulaNames, name)
	}
	sort.Strings(q.formulaNames)

	var formulaCols []string
	for i, name := range q.formulaNames {
		if !isPlainName(name) {
			return compiledQuery{}, fmt.Errorf("%w: formula name %q must be a plain identifier", collection.ErrInvalid, name)
		}
		f, err := compiler{}.compileSource(req.Formulas[name])
		if err != nil {
			return compiledQuery{}, fmt.Errorf("%w: formula %s: %v", collection.ErrInvalid, name, err)
		}
		c.formulas[name] = f
		formulaCols = append(formulaCols, fmt.Sprintf("(%s) AS f%d", f.sql, i))
		q.selectArgs = append(q.selectArgs, f.args...)
	}

	var conds []string
	var whereArgs []any
	if len(req.Types) > 0 {
		marks := make([]string, len(req.Types))
		for i, t := range req.Types {
			marks[i] = "?"
			whereArgs = append(whereArgs, t)
		}
		conds = append(conds, "EXISTS (SELECT 1 FROM json_each(d.types) WHERE json_each.value IN ("+strings.Join(marks, ", ")+"))")
	}
	if folder := strings.Trim(strings.TrimSpace(req.Folder), "/"); folder != "" {
		conds = append(conds, `(d.folder = ? OR d.folder LIKE ? ESCAPE '\')`)
		whereArgs = append(whereArgs, folder, escapeLike(folder)+"/%")
	}
	if where := strings.TrimSpace(req.Where); where != "" {
		f, err := c.compileSource(where)
		if err != nil {
			return compiledQuery{}, fmt.Errorf("%w: where: %v", collection.ErrInvalid, err)
		}
		conds = append(conds, "("+f.sql+")")
		whereArgs = append(whereArgs, f.args...)
	}
	whereSQL := ""
	if len(conds) > 0 {
		whereSQL = " WHERE " + strings.Join(conds, " AND ")
	}

	var orderTerms []string
	var orderArgs []any
	for _, ob := range req.OrderBy {
		f, err := c.compileSource(ob.Field)
		if err != nil {
			return compiledQuery{}, fmt.Errorf("%w: order_by %s: %v", collection.ErrInvalid, ob.Field, err)
		}
		dir := "ASC"
		if ob.Direction == collection.Desc {
			dir = "DESC"
		}
		// Missing values sort last in either direction.
		orderTerms = append(orderTerms, fmt.Sprintf("(%s) IS NULL", f.sql), fmt.Sprintf("(%s) %s", f.sql, dir))
		orderArgs = append(orderArgs, f.args...)
		orderArgs = append(orderArgs, f.args...)
	}
	orderTerms = append(orderTerms, "d.path ASC")

	cols := append([]string{"d.path"}, formulaCols...)
	q.selectSQL = "SELECT " + strings.Join(cols, ", ") + " FROM docs d" + whereSQL + " ORDER BY " + strings.Join(orderTerms, ", ")
	q.selectArgs = append(q.selectArgs, whereArgs...)
	q.selectArgs = append(q.selectArgs, orderArgs...)
	switch {
	case req.Limit != nil:
		q.selectSQL += " LIMIT ?"
		q.selectArgs = append(q.selectArgs, *req.Limit)
	case req.Offset != nil:
		q.selectSQL += " LIMIT -1"
	}
	if req.Offset != nil {
		q.selectSQL += " OFFSET ?"
		q.selectArgs = append(q.selectArgs, *req.Offset)
	}

	q.countSQL = "SELECT COUNT(*) FROM docs d" + whereSQL
	q.countArgs = whereArgs
	return q, nil
}

func isPlainName(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isIdentChar(s[i]) || s[i] == '.' {
			return false
		}
	}
	return true
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func normalizeSQLValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case float64:
		if x == float64(int64(x)) {
			return int64(x)
		}
		return x
	default:
		return x
	}
}
