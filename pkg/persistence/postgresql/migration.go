package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create workflows table
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				owner VARCHAR(255) NOT NULL DEFAULT '',
				nodes JSONB NOT NULL DEFAULT '[]',
				connections JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflows_owner ON workflows(owner);
			CREATE INDEX idx_workflows_deleted_at ON workflows(deleted_at);

			-- Executions keep a snapshot of the workflow name and owner, so history
			-- survives workflow renames and deletion (no foreign key on workflow_id).
			CREATE TABLE executions (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				workflow_name VARCHAR(255) NOT NULL,
				owner VARCHAR(255) NOT NULL DEFAULT '',
				status VARCHAR(20) NOT NULL CHECK (status IN ('QUEUED', 'PENDING', 'RUNNING', 'COMPLETED', 'FAILED', 'CANCELLED')),
				trigger_type VARCHAR(20) NOT NULL CHECK (trigger_type IN ('MANUAL', 'WEBHOOK', 'SCHEDULE', 'API')),
				trigger_payload JSONB NOT NULL DEFAULT '{}',
				error_message TEXT NOT NULL DEFAULT '',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				CONSTRAINT chk_executions_completed_at
					CHECK ((completed_at IS NOT NULL) = (status IN ('COMPLETED', 'FAILED', 'CANCELLED')))
			);

			CREATE INDEX idx_executions_workflow_started_at ON executions(workflow_id, started_at DESC);
			CREATE INDEX idx_executions_started_at ON executions(started_at DESC);
			CREATE INDEX idx_executions_status ON executions(status);
			CREATE INDEX idx_executions_owner ON executions(owner);

			-- Create execution_logs table (one row per node per execution)
			CREATE TABLE execution_logs (
				id VARCHAR(255) PRIMARY KEY,
				execution_id VARCHAR(255) NOT NULL REFERENCES executions(id) ON DELETE CASCADE,
				node_id VARCHAR(255) NOT NULL,
				node_name VARCHAR(255) NOT NULL,
				node_type VARCHAR(255) NOT NULL,
				status VARCHAR(20) NOT NULL CHECK (status IN ('RUNNING', 'COMPLETED', 'FAILED')),
				input_context JSONB NOT NULL DEFAULT '{}',
				output_context JSONB,
				error_message TEXT NOT NULL DEFAULT '',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				CONSTRAINT uq_execution_logs_execution_node UNIQUE (execution_id, node_id)
			);

			CREATE INDEX idx_execution_logs_execution_started_at ON execution_logs(execution_id, started_at);
		`,
		2: `
			-- Migration 2: case-insensitive search over the workflow name snapshot
			CREATE INDEX idx_executions_workflow_name_lower ON executions(LOWER(workflow_name));
		`,
	}
}
