package migrations

func postgresMigrations() []Migration {
	return []Migration{
		{
			Version:     "001",
			Description: "Initial ledger schema",
			UpSQL: `
				CREATE TABLE IF NOT EXISTS users (
					id UUID PRIMARY KEY,
					identity VARCHAR(255) NOT NULL UNIQUE,
					balance NUMERIC(38, 9) NOT NULL DEFAULT 0,
					role VARCHAR(16) NOT NULL DEFAULT 'standard',
					status VARCHAR(16) NOT NULL DEFAULT 'normal',
					default_model VARCHAR(255) NOT NULL DEFAULT '',
					continuous_chat BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL,
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL
				);

				CREATE TABLE IF NOT EXISTS models (
					id UUID PRIMARY KEY,
					name VARCHAR(255) NOT NULL UNIQUE,
					prompt_rate NUMERIC(38, 9) NOT NULL,
					completion_rate NUMERIC(38, 9) NOT NULL,
					multiplier NUMERIC(38, 9) NOT NULL,
					status VARCHAR(16) NOT NULL DEFAULT 'active',
					description TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP WITH TIME ZONE NOT NULL,
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL
				);

				CREATE TABLE IF NOT EXISTS conversations (
					id UUID PRIMARY KEY,
					user_id UUID NOT NULL REFERENCES users(id),
					model_name VARCHAR(255) NOT NULL,
					status VARCHAR(16) NOT NULL DEFAULT 'active',
					created_at TIMESTAMP WITH TIME ZONE NOT NULL,
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_conversations_user_created ON conversations(user_id, created_at DESC);

				CREATE TABLE IF NOT EXISTS messages (
					id UUID PRIMARY KEY,
					user_id UUID NOT NULL REFERENCES users(id),
					conversation_id UUID NOT NULL REFERENCES conversations(id),
					exchange_id UUID NOT NULL,
					content TEXT NOT NULL,
					role VARCHAR(16) NOT NULL,
					token_count BIGINT,
					cost NUMERIC(38, 9),
					is_error BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL,
					UNIQUE (exchange_id, role)
				);
				CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);

				CREATE TABLE IF NOT EXISTS transactions (
					id UUID PRIMARY KEY,
					user_id UUID NOT NULL REFERENCES users(id),
					amount NUMERIC(38, 9) NOT NULL,
					kind VARCHAR(16) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					conversation_id UUID,
					exchange_id UUID UNIQUE,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_transactions_user_created ON transactions(user_id, created_at DESC);
			`,
		},
		{
			Version:     "002",
			Description: "Dead letters for billing events",
			UpSQL: `
				CREATE TABLE IF NOT EXISTS dead_letters (
					id UUID PRIMARY KEY,
					exchange_id UUID NOT NULL,
					kind VARCHAR(16) NOT NULL,
					payload JSONB NOT NULL,
					error TEXT NOT NULL DEFAULT '',
					attempts INTEGER NOT NULL DEFAULT 0,
					resolved BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL,
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_dead_letters_pending ON dead_letters(resolved, created_at);
			`,
		},
	}
}
