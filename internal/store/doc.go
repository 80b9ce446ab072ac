// Package store provides SQLite-backed durable storage for the wallet
// ledger.
//
// The store holds the ordered wallet collection plus its repair backup
// snapshots:
//   - Wallets: accounts with a nullable display_order key
//   - Backups: timestamped wallets_backup_* tables created before a repair
//
// # Critical Patterns
//
// CP-1: Single Connection
//   - SetMaxOpenConns(1) so database/sql never races two connections
//   - Serialization of writes is the gate's job, not the pool's
//
// CP-2: WAL With a Busy Timeout
//   - journal_mode=WAL, synchronous=NORMAL, busy_timeout=5000
//   - Readers never block the writer; residual lock errors surface as
//     SQLITE_BUSY and are retried upstream
//
// CP-3: Deterministic Ordering Reads
//   - Position listings ORDER BY display_order IS NULL, display_order,
//     created_at, id so every caller sees the same sequence
//
// CP-4: Validated Identifiers
//   - Backup table names are generated, regex-checked, and quoted before
//     interpolation; user input never reaches an identifier position
//
// Schema changes go through user_version migrations in store.go.
package store
