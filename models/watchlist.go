// models/watchlist.go
package models

// Source and type values used by the fallback check.
const (
	SourceSDNTreasury  = "Specially Designated Nationals (SDN) - Treasury Department"
	SDNTypeIndividual  = "Individual"
	SanctionsTypeSDN   = "SDN"
	DefaultSDNAPILists = "ISN,SDN"
)

// WatchlistEntry is one row of the consolidated screening list CSV export.
// Only the columns the fallback needs are mapped; the export carries many more
// and they are ignored by the decoder.
type WatchlistEntry struct {
	Source    string `csv:"source"`
	Type      string `csv:"type"`
	Name      string `csv:"name"`
	Addresses string `csv:"addresses"`
	AltNames  string `csv:"alt_names"`
	IDs       string `csv:"ids"`
}

// FallbackRow is a normalized watchlist entry owned by a Snapshot.
// Names and Addresses hold space separated tokens; Countries holds space
// separated ISO 3166-1 alpha-2 codes.
type FallbackRow struct {
	ID         int64  `db:"id" json:"id"`
	SnapshotID int64  `db:"sanctions_fallback_metadata_id" json:"snapshot_id"`
	Source     string `db:"source" json:"source"`
	SDNType    string `db:"sdn_type" json:"sdn_type"`
	Names      string `db:"names" json:"names"`
	Addresses  string `db:"addresses" json:"addresses"`
	Countries  string `db:"countries" json:"countries"`
}
