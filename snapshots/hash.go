// Copyright (C) 2026 Hearth Labs.
// See LICENSE for copying information.

package snapshots

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/hearthdb/hearth/dbschema"
)

// HashSchemas derives a stable fingerprint of the schema from the stored
// table definitions. Table order does not affect the result, only the DDL
// text does, so two captures of an unchanged schema always agree.
func HashSchemas(tables []dbschema.Table) string {
	ddls := make([]string, 0, len(tables))
	for _, table := range tables {
		ddls = append(ddls, table.CreateSQL)
	}
	sort.Strings(ddls)

	sum := sha256.Sum256([]byte(strings.Join(ddls, "\n")))
	return hex.EncodeToString(sum[:])
}

// FullSchema renders the table definitions as a single executable script,
// one statement per table in name order.
func FullSchema(tables []dbschema.Table) string {
	if len(tables) == 0 {
		return ""
	}
	ddls := make([]string, 0, len(tables))
	for _, table := range tables {
		ddls = append(ddls, table.CreateSQL)
	}
	return strings.Join(ddls, ";\n\n") + ";\n"
}
