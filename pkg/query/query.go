// Package query renders Mongo operations as shell strings for log lines.
package query

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Op string

const (
	InsertOne Op = "insertOne"
	Find      Op = "find"
	FindOne   Op = "findOne"
	DeleteOne Op = "deleteOne"
)

// MaxLength caps rendered queries in logs.
const MaxLength = 2048

// Render returns e.g. db.audit_events.find({'subject':'u1'}, {'limit':20}).
func Render(collection string, op Op, args ...any) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		raw, err := json.Marshal(a)
		if err != nil {
			return fmt.Sprintf("db.%s.%s(...)", collection, op)
		}
		parts = append(parts, shellFormat(string(raw)))
	}
	return Truncate(fmt.Sprintf("db.%s.%s(%s)", collection, op, strings.Join(parts, ", ")), MaxLength)
}

// shellFormat swaps JSON double quotes for the single quotes the mongo shell
// prints.
func shellFormat(s string) string {
	s = strings.ReplaceAll(s, `\"`, "\x00")
	s = strings.ReplaceAll(s, `"`, `'`)
	return strings.ReplaceAll(s, "\x00", `"`)
}

func Truncate(q string, maxLength int) string {
	if maxLength < 4 || len(q) <= maxLength {
		return q
	}
	return q[:maxLength-3] + "..."
}
