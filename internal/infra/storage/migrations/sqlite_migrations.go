package migrations

// Amounts are TEXT so SQLite never coerces them to floating point.
func sqliteMigrations() []Migration {
	return []Migration{
		{
			Version:     "001",
			Description: "Initial ledger schema",
			UpSQL: `
				CREATE TABLE IF NOT EXISTS users (
					id TEXT PRIMARY KEY,
					identity TEXT NOT NULL UNIQUE,
					balance TEXT NOT NULL DEFAULT '0',
					role TEXT NOT NULL DEFAULT 'standard',
					status TEXT NOT NULL DEFAULT 'normal',
					default_model TEXT NOT NULL DEFAULT '',
					continuous_chat BOOLEAN NOT NULL DEFAULT FALSE,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				);

				CREATE TABLE IF NOT EXISTS models (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL UNIQUE,
					prompt_rate TEXT NOT NULL,
					completion_rate TEXT NOT NULL,
					multiplier TEXT NOT NULL,
					status TEXT NOT NULL DEFAULT 'active',
					description TEXT NOT NULL DEFAULT '',
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				);

				CREATE TABLE IF NOT EXISTS conversations (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL REFERENCES users(id),
					model_name TEXT NOT NULL,
					status TEXT NOT NULL DEFAULT 'active',
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_conversations_user_created ON conversations(user_id, created_at DESC);

				CREATE TABLE IF NOT EXISTS messages (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL REFERENCES users(id),
					conversation_id TEXT NOT NULL REFERENCES conversations(id),
					exchange_id TEXT NOT NULL,
					content TEXT NOT NULL,
					role TEXT NOT NULL,
					token_count INTEGER,
					cost TEXT,
					is_error BOOLEAN NOT NULL DEFAULT FALSE,
					created_at DATETIME NOT NULL,
					UNIQUE (exchange_id, role)
				);
				CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);

				CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL REFERENCES users(id),
					amount TEXT NOT NULL,
					kind TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					conversation_id TEXT,
					exchange_id TEXT UNIQUE,
					created_at DATETIME NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_transactions_user_created ON transactions(user_id, created_at DESC);
			`,
		},
		{
			Version:     "002",
			Description: "Dead letters for billing events",
			UpSQL: `
				CREATE TABLE IF NOT EXISTS dead_letters (
					id TEXT PRIMARY KEY,
					exchange_id TEXT NOT NULL,
					kind TEXT NOT NULL,
					payload TEXT NOT NULL,
					error TEXT NOT NULL DEFAULT '',
					attempts INTEGER NOT NULL DEFAULT 0,
					resolved BOOLEAN NOT NULL DEFAULT FALSE,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_dead_letters_pending ON dead_letters(resolved, created_at);
			`,
		},
	}
}
