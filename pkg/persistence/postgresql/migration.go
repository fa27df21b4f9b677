package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id UUID PRIMARY KEY,
				goal TEXT NOT NULL,
				plan JSONB NOT NULL DEFAULT '[]',
				status VARCHAR(50) NOT NULL CHECK (status IN ('planning', 'saved', 'running', 'completed', 'failed', 'cancelled')),
				step_count INTEGER NOT NULL DEFAULT 0,
				current_step_index INTEGER NOT NULL DEFAULT 0,
				summary TEXT,
				total_cost NUMERIC(12, 4) NOT NULL DEFAULT 0,
				metadata JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflows_status ON workflows(status);
			CREATE INDEX idx_workflows_created_at ON workflows(created_at);

			CREATE TABLE run_records (
				id UUID PRIMARY KEY,
				workflow_id UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				step_ordinal INTEGER NOT NULL,
				worker_name VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('pending', 'running', 'completed', 'failed', 'cancelled')),
				output TEXT NOT NULL DEFAULT '',
				error_message TEXT NOT NULL DEFAULT '',
				exit_code INTEGER NOT NULL DEFAULT 0,
				cost NUMERIC(12, 4),
				started_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_run_records_workflow_id ON run_records(workflow_id);
			CREATE INDEX idx_run_records_workflow_step ON run_records(workflow_id, step_ordinal);

			CREATE TABLE approval_gates (
				id UUID PRIMARY KEY,
				workflow_id UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				step_ordinal INTEGER NOT NULL DEFAULT 0,
				kind VARCHAR(50) NOT NULL CHECK (kind IN ('pre_execution', 'post_validation', 'critical_action', 'worker_creation')),
				status VARCHAR(50) NOT NULL CHECK (status IN ('pending', 'approved', 'rejected')),
				context JSONB,
				resolved_by VARCHAR(255) NOT NULL DEFAULT '',
				resolution_notes TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				resolved_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_approval_gates_workflow_id ON approval_gates(workflow_id);
			CREATE INDEX idx_approval_gates_status ON approval_gates(status);

			CREATE TABLE workers (
				name VARCHAR(255) PRIMARY KEY,
				description TEXT NOT NULL DEFAULT '',
				script_path TEXT NOT NULL,
				language VARCHAR(50) NOT NULL DEFAULT 'python',
				default_parameters JSONB,
				tags JSONB,
				capabilities JSONB,
				estimated_cost NUMERIC(12, 4) NOT NULL DEFAULT 0,
				system_generated BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE worker_artifacts (
				id UUID PRIMARY KEY,
				workflow_id UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				worker_name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				capabilities JSONB,
				source TEXT NOT NULL,
				safety_verdict VARCHAR(20) NOT NULL CHECK (safety_verdict IN ('safe', 'unsafe')),
				gate_id UUID,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_worker_artifacts_workflow_id ON worker_artifacts(workflow_id);
		`,
	}
}
