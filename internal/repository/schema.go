package repository

// 账本使用的表结构，CreateSchema 按顺序执行
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS ledger_snapshots (
		id TINYINT UNSIGNED NOT NULL PRIMARY KEY,
		seq BIGINT UNSIGNED NOT NULL,
		payload LONGTEXT NOT NULL,
		updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS ledger_events (
		event_id CHAR(36) NOT NULL PRIMARY KEY,
		seq BIGINT UNSIGNED NOT NULL,
		event_type VARCHAR(32) NOT NULL,
		round_id BIGINT UNSIGNED NOT NULL DEFAULT 0,
		caller CHAR(42) NOT NULL,
		payload TEXT NOT NULL,
		occurred_at DATETIME(6) NOT NULL,
		KEY idx_round_seq (round_id, seq)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS accounts (
		address CHAR(42) NOT NULL PRIMARY KEY,
		balance BIGINT UNSIGNED NOT NULL DEFAULT 0,
		updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS transfers (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		from_address CHAR(42) NOT NULL,
		to_address CHAR(42) NOT NULL,
		amount BIGINT UNSIGNED NOT NULL,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		KEY idx_from (from_address),
		KEY idx_to (to_address)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// 快照表只有一行
const snapshotRowID = 1
