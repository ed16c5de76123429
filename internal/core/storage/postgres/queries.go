package postgres

// SQL for identity resolution and stitching. Uniqueness and race
// arbitration live here, in the database, not in application code.

const (
	// querySelectSession loads one session by its natural key.
	querySelectSession = `
		SELECT id, anonymous_id, lead_id, ip_address, user_agent, referrer,
		       utm_source, utm_medium, utm_campaign, started_at
		FROM sessions
		WHERE id = $1
	`

	// queryInsertSessionIfAbsent is the conditional create behind idempotent
	// session resolution. ON CONFLICT DO NOTHING returns no rows
	// (sql.ErrNoRows) when a concurrent creator won; the caller then reads
	// the winner's row back instead of erroring.
	queryInsertSessionIfAbsent = `
		INSERT INTO sessions (
			id, anonymous_id, lead_id, ip_address, user_agent, referrer,
			utm_source, utm_medium, utm_campaign
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
		RETURNING started_at
	`

	// queryLatestLeadForAnonymous is the store-side fallback behind the
	// fast-path cache: the most recent already-attributed session wins.
	queryLatestLeadForAnonymous = `
		SELECT lead_id
		FROM sessions
		WHERE anonymous_id = $1 AND lead_id IS NOT NULL
		ORDER BY started_at DESC
		LIMIT 1
	`

	// queryInsertEvent appends one immutable event. lead_id is whatever the
	// caller resolved at creation time; it is only ever back-filled later by
	// the stitch statements below.
	queryInsertEvent = `
		INSERT INTO events (session_id, lead_id, event_type, event_data, page_url, page_title)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	querySelectLead = `
		SELECT id, email, first_name, last_name, company, phone, created_at
		FROM leads
		WHERE id = $1
	`

	querySelectLeadByEmail = `
		SELECT id, email, first_name, last_name, company, phone, created_at
		FROM leads
		WHERE email = $1
	`

	// queryInsertLeadIfAbsent creates the lead unless the normalized email
	// is already taken. No rows back means another writer (or an earlier
	// call) owns the email; the caller re-reads by email.
	queryInsertLeadIfAbsent = `
		INSERT INTO leads (email, first_name, last_name, company, phone)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email) DO NOTHING
		RETURNING id, created_at
	`

	// queryEnrichLead fills previously-empty contact fields only. A
	// populated field is never overwritten by a later, sparser signal.
	queryEnrichLead = `
		UPDATE leads
		SET first_name = CASE WHEN COALESCE(first_name, '') = '' THEN $2 ELSE first_name END,
		    last_name  = CASE WHEN COALESCE(last_name, '')  = '' THEN $3 ELSE last_name  END,
		    company    = CASE WHEN COALESCE(company, '')    = '' THEN $4 ELSE company    END,
		    phone      = CASE WHEN COALESCE(phone, '')      = '' THEN $5 ELSE phone      END
		WHERE id = $1
	`

	// queryStitchSessions reassigns every orphaned session of one anonymous
	// id. The lead_id IS NULL guard makes the statement idempotent and
	// prevents re-attributing a session to a second lead.
	queryStitchSessions = `
		UPDATE sessions
		SET lead_id = $1
		WHERE anonymous_id = $2 AND lead_id IS NULL
	`

	// queryStitchEvents back-fills the denormalized lead reference on every
	// null-lead event whose session now belongs to the lead.
	queryStitchEvents = `
		UPDATE events
		SET lead_id = $1
		WHERE lead_id IS NULL
		  AND session_id IN (
			SELECT id FROM sessions WHERE anonymous_id = $2 AND lead_id = $1
		  )
	`

	querySelectLinkByToken = `
		SELECT id, token, destination_url, campaign_id, campaign_name,
		       lead_id, clicks, unique_clicks, created_at
		FROM tracking_links
		WHERE token = $1
	`

	queryInsertLink = `
		INSERT INTO tracking_links (token, destination_url, campaign_id, campaign_name, lead_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	// queryAttachSessionLead sets a clicked session's lead reference. The
	// lead_id IS NULL guard is first-write-wins: an existing attribution is
	// never downgraded or overridden.
	queryAttachSessionLead = `
		UPDATE sessions
		SET lead_id = $1
		WHERE id = $2 AND lead_id IS NULL
	`

	queryAttachSessionEvents = `
		UPDATE events
		SET lead_id = $1
		WHERE session_id = $2 AND lead_id IS NULL
	`

	// queryInsertLinkClick is the unique-click dedup ledger. The pair
	// constraint makes "first click from this visitor" a property the
	// database decides, idempotently.
	queryInsertLinkClick = `
		INSERT INTO tracking_link_clicks (link_id, anonymous_id)
		VALUES ($1, $2)
		ON CONFLICT (link_id, anonymous_id) DO NOTHING
	`

	// queryIncrementLinkClicks advances the monotonic counters. $2 is 1 when
	// the click ledger accepted a new (link, anonymous id) pair, else 0.
	queryIncrementLinkClicks = `
		UPDATE tracking_links
		SET clicks = clicks + 1, unique_clicks = unique_clicks + $2
		WHERE id = $1
	`

	querySessionsForLead = `
		SELECT id, anonymous_id, lead_id, ip_address, user_agent, referrer,
		       utm_source, utm_medium, utm_campaign, started_at
		FROM sessions
		WHERE lead_id = $1
		ORDER BY started_at DESC
	`

	queryEventsForLead = `
		SELECT id, session_id, lead_id, event_type, event_data, page_url, page_title, created_at
		FROM events
		WHERE lead_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	queryCountLeads              = `SELECT COUNT(*) FROM leads`
	queryCountSessions           = `SELECT COUNT(*) FROM sessions`
	queryCountIdentifiedSessions = `SELECT COUNT(*) FROM sessions WHERE lead_id IS NOT NULL`
	queryCountEvents             = `SELECT COUNT(*) FROM events`
)
