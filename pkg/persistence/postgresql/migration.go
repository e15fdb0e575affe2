package postgresql

// migrations returns the ordered schema migrations for the journey engine.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS journeys (
				id UUID PRIMARY KEY,
				tenant_id TEXT NOT NULL,
				name TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT 'draft',
				trigger_type TEXT NOT NULL DEFAULT 'manual',
				trigger_conditions JSONB,
				goal JSONB,
				re_enrollment JSONB NOT NULL DEFAULT '{}',
				tags JSONB NOT NULL DEFAULT '[]',
				total_enrolled BIGINT NOT NULL DEFAULT 0,
				total_completed BIGINT NOT NULL DEFAULT 0,
				total_goal_reached BIGINT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				activated_at TIMESTAMP WITH TIME ZONE,
				archived_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_journeys_tenant ON journeys (tenant_id);
			CREATE INDEX IF NOT EXISTS idx_journeys_status ON journeys (status);
			CREATE INDEX IF NOT EXISTS idx_journeys_trigger ON journeys (trigger_type) WHERE status = 'active';

			CREATE TABLE IF NOT EXISTS journey_steps (
				id UUID PRIMARY KEY,
				journey_id UUID NOT NULL REFERENCES journeys (id) ON DELETE CASCADE,
				name TEXT NOT NULL,
				type TEXT NOT NULL,
				config JSONB NOT NULL DEFAULT '{}',
				next_step_id UUID,
				condition_true_step_id UUID,
				condition_false_step_id UUID,
				position_x INTEGER NOT NULL DEFAULT 0,
				position_y INTEGER NOT NULL DEFAULT 0,
				total_executions BIGINT NOT NULL DEFAULT 0,
				total_success BIGINT NOT NULL DEFAULT 0,
				total_failure BIGINT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_journey_steps_journey ON journey_steps (journey_id);

			CREATE TABLE IF NOT EXISTS journey_enrollments (
				id UUID PRIMARY KEY,
				journey_id UUID NOT NULL REFERENCES journeys (id) ON DELETE CASCADE,
				contact_id TEXT NOT NULL,
				tenant_id TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'active',
				current_step_id UUID,
				context JSONB NOT NULL DEFAULT '{}',
				source TEXT NOT NULL DEFAULT '',
				exit_reason TEXT NOT NULL DEFAULT '',
				last_error TEXT NOT NULL DEFAULT '',
				steps_completed BIGINT NOT NULL DEFAULT 0,
				emails_sent BIGINT NOT NULL DEFAULT 0,
				emails_opened BIGINT NOT NULL DEFAULT 0,
				emails_clicked BIGINT NOT NULL DEFAULT 0,
				enrolled_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				started_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE,
				exited_at TIMESTAMP WITH TIME ZONE,
				goal_reached_at TIMESTAMP WITH TIME ZONE,
				failed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_enrollments_journey_contact ON journey_enrollments (journey_id, contact_id);
			CREATE INDEX IF NOT EXISTS idx_enrollments_status ON journey_enrollments (status);

			CREATE TABLE IF NOT EXISTS step_executions (
				id UUID PRIMARY KEY,
				enrollment_id UUID NOT NULL REFERENCES journey_enrollments (id) ON DELETE CASCADE,
				step_id UUID NOT NULL,
				status TEXT NOT NULL DEFAULT 'pending',
				scheduled_for TIMESTAMP WITH TIME ZONE,
				result JSONB,
				error_message TEXT NOT NULL DEFAULT '',
				retry_count INTEGER NOT NULL DEFAULT 0,
				decision_made BOOLEAN,
				decision_reason TEXT NOT NULL DEFAULT '',
				provider_message_id TEXT NOT NULL DEFAULT '',
				opened_at TIMESTAMP WITH TIME ZONE,
				clicked_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				started_at TIMESTAMP WITH TIME ZONE,
				finished_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_executions_enrollment ON step_executions (enrollment_id);
			CREATE INDEX IF NOT EXISTS idx_executions_due ON step_executions (status, scheduled_for)
				WHERE status IN ('pending', 'scheduled');
		`,
	}
}
