package migration

import "embed"

const PostgresDir = "postgresql"

//go:embed postgresql/*/*.sql
var FS embed.FS
