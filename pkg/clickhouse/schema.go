package clickhouse

import "fmt"

// DailyBarsSchema returns the DDL for the daily price-bar table. Rows are
// replaced per (symbol, date) so re-ingesting a day is idempotent.
func DailyBarsSchema(database, table string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
	date         Date,
	symbol       LowCardinality(String),
	open         Float64,
	high         Float64,
	low          Float64,
	close        Float64,
	volume       Float64,
	transactions Float64 DEFAULT 0,
	ingested_at  DateTime DEFAULT now()
) ENGINE = ReplacingMergeTree(ingested_at)
PARTITION BY toYear(date)
ORDER BY (symbol, date)`, database, table),
	}
}
