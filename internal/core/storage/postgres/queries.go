package postgres

// SQL for the four durable collections: events, window_claims, summaries,
// deliveries. Every state change is a conditional write; RowsAffected == 0
// (or sql.ErrNoRows on RETURNING) means the condition did not hold.

const (
	// queryPutEvent inserts an event with content-hash idempotency.
	// ON CONFLICT DO NOTHING returns no rows (sql.ErrNoRows) for duplicates.
	queryPutEvent = `
		INSERT INTO events (
			event_id, recipient_id, source_type,
			occurred_at, ingested_at, metadata, payload,
			content_hash, window_key
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (recipient_id, content_hash) DO NOTHING
		RETURNING ingest_seq
	`

	// queryScanWindow loads the snapshot of one (recipient, window) in
	// strict ingest order.
	queryScanWindow = `
		SELECT
			event_id, recipient_id, source_type,
			occurred_at, ingested_at, metadata, payload,
			content_hash, window_key, ingest_seq
		FROM events
		WHERE recipient_id = $1
		  AND window_key = $2
		ORDER BY ingest_seq ASC
	`

	// queryEnsureWindowOpen creates the claim row if absent. Never
	// overwrites: a claim in any state blocks the insert.
	queryEnsureWindowOpen = `
		INSERT INTO window_claims (
			recipient_id, window_key, window_start, window_end, state, attempts
		)
		VALUES ($1, $2, $3, $4, 'open', 0)
		ON CONFLICT (recipient_id, window_key) DO NOTHING
	`

	queryGetWindowClaim = `
		SELECT recipient_id, window_key, window_start, window_end, state, attempts, claimed_at
		FROM window_claims
		WHERE recipient_id = $1
		  AND window_key = $2
	`

	queryDueWindows = `
		SELECT recipient_id, window_key, window_start, window_end, state, attempts, claimed_at
		FROM window_claims
		WHERE state = 'open'
		  AND window_end <= $1
		ORDER BY window_end ASC
		LIMIT $2
	`

	// queryClaimWindow is the open → claimed compare-and-swap. Only the
	// first concurrent caller updates a row.
	queryClaimWindow = `
		UPDATE window_claims
		SET state = 'claimed', claimed_at = $3
		WHERE recipient_id = $1
		  AND window_key = $2
		  AND state = 'open'
	`

	queryMarkWindowProcessed = `
		UPDATE window_claims
		SET state = 'processed'
		WHERE recipient_id = $1
		  AND window_key = $2
		  AND state = 'claimed'
	`

	// queryReleaseWindow returns a claimed window to open for retry, or
	// parks it as failed once the attempt ceiling is reached.
	queryReleaseWindow = `
		UPDATE window_claims
		SET state = CASE WHEN attempts + 1 >= $3 THEN 'failed' ELSE 'open' END,
		    attempts = attempts + 1
		WHERE recipient_id = $1
		  AND window_key = $2
		  AND state = 'claimed'
		RETURNING state
	`

	// queryInsertSummary creates a pending summary conditionally on the
	// (recipient, window, granularity) idempotency key.
	queryInsertSummary = `
		INSERT INTO summaries (
			summary_id, recipient_id, window_key, window_start, granularity,
			headline, bullets, included_event_ids, status, failure_reason,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (recipient_id, window_key, granularity) DO NOTHING
		RETURNING summary_id
	`

	summaryColumns = `
		summary_id, recipient_id, window_key, window_start, granularity,
		headline, bullets, included_event_ids, status, failure_reason,
		created_at, updated_at
	`

	queryGetSummaryByID = `
		SELECT ` + summaryColumns + `
		FROM summaries
		WHERE summary_id = $1
	`

	queryGetSummaryByWindow = `
		SELECT ` + summaryColumns + `
		FROM summaries
		WHERE recipient_id = $1
		  AND window_key = $2
		  AND granularity = $3
	`

	queryMarkSummaryReady = `
		UPDATE summaries
		SET status = 'ready', headline = $2, bullets = $3, updated_at = $4
		WHERE summary_id = $1
		  AND status = 'pending'
	`

	queryMarkSummaryFailed = `
		UPDATE summaries
		SET status = 'failed', failure_reason = $2, updated_at = $3
		WHERE summary_id = $1
		  AND status = 'pending'
	`

	queryListSummariesByRecipient = `
		SELECT ` + summaryColumns + `
		FROM summaries
		WHERE recipient_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	queryListReadySummariesBetween = `
		SELECT ` + summaryColumns + `
		FROM summaries
		WHERE recipient_id = $1
		  AND granularity = $2
		  AND status = 'ready'
		  AND window_start >= $3
		  AND window_start < $4
		ORDER BY window_start ASC
	`

	queryRecipientsWithReadyBetween = `
		SELECT DISTINCT recipient_id
		FROM summaries
		WHERE granularity = $1
		  AND status = 'ready'
		  AND window_start >= $2
		  AND window_start < $3
		ORDER BY recipient_id ASC
	`

	// queryCreateDelivery inserts a pending record conditionally on
	// (summary_id, channel), making fan-out idempotent.
	queryCreateDelivery = `
		INSERT INTO deliveries (
			delivery_id, summary_id, recipient_id, channel,
			state, attempts, last_error, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, 'pending', 0, '', $5, $5)
		ON CONFLICT (summary_id, channel) DO NOTHING
	`

	deliveryColumns = `
		delivery_id, summary_id, recipient_id, channel,
		state, attempts, last_error, created_at, updated_at
	`

	queryListPendingDeliveries = `
		SELECT ` + deliveryColumns + `
		FROM deliveries
		WHERE state = 'pending'
		ORDER BY created_at ASC
		LIMIT $1
	`

	queryListDeliveriesBySummary = `
		SELECT ` + deliveryColumns + `
		FROM deliveries
		WHERE summary_id = $1
		ORDER BY channel ASC
	`

	queryMarkDeliverySent = `
		UPDATE deliveries
		SET state = 'sent', attempts = $2, updated_at = $3
		WHERE delivery_id = $1
		  AND state = 'pending'
	`

	queryMarkDeliveryAcked = `
		UPDATE deliveries
		SET state = 'acked', updated_at = $2
		WHERE delivery_id = $1
		  AND state = 'sent'
	`

	queryMarkDeliverySkipped = `
		UPDATE deliveries
		SET state = 'skipped', updated_at = $2
		WHERE delivery_id = $1
		  AND state = 'pending'
	`

	queryMarkDeliveryFailed = `
		UPDATE deliveries
		SET state = 'failed', attempts = $2, last_error = $3, updated_at = $4
		WHERE delivery_id = $1
		  AND state IN ('pending', 'sent')
	`
)
