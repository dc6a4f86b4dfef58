package database

// schemaStatements creates the node tables backing each repository. Run once
// per Manager; CREATE NODE TABLE IF NOT EXISTS is idempotent across restarts.
var schemaStatements = []string{
	`CREATE NODE TABLE IF NOT EXISTS Agent(
		name STRING,
		kind STRING,
		status STRING,
		healthy BOOLEAN,
		last_check TIMESTAMP,
		consecutive_failures INT64,
		error_message STRING,
		PRIMARY KEY(name)
	);`,
	`CREATE NODE TABLE IF NOT EXISTS Session(
		session_id STRING,
		kind STRING,
		started_at TIMESTAMP,
		ended_at TIMESTAMP,
		total_input_tokens INT64,
		total_output_tokens INT64,
		model_name STRING,
		cost_usd DOUBLE,
		project_path STRING,
		PRIMARY KEY(session_id)
	);`,
	`CREATE NODE TABLE IF NOT EXISTS CostRecord(
		id STRING,
		session_id STRING,
		agent_id STRING,
		model_name STRING,
		input_tokens INT64,
		output_tokens INT64,
		cost_usd DOUBLE,
		recorded_at TIMESTAMP,
		PRIMARY KEY(id)
	);`,
	`CREATE NODE TABLE IF NOT EXISTS Model(
		id STRING,
		provider STRING,
		model_name STRING,
		input_rate_per_1k DOUBLE,
		output_rate_per_1k DOUBLE,
		context_window INT64,
		PRIMARY KEY(id)
	);`,
}
