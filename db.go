package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ensureSchema cria/ajusta o schema necessário de forma idempotente.
func ensureSchema(ctx context.Context, db *pgxpool.Pool) error {
	_, _ = db.Exec(ctx, `SET search_path TO public`)

	stmts := []string{
		// USERS
		`CREATE TABLE IF NOT EXISTS public.users (
			id                   BIGSERIAL PRIMARY KEY,
			email                TEXT NOT NULL UNIQUE,
			password_hash        TEXT NOT NULL,
			full_name            TEXT NOT NULL,
			role                 TEXT NOT NULL DEFAULT 'agent',
			phone                TEXT,
			profile_picture      TEXT,
			whatsapp_instance_id TEXT,
			created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_users_email_lower ON public.users ((LOWER(email)));`,

		// LEADS
		`CREATE TABLE IF NOT EXISTS public.leads (
			id           UUID PRIMARY KEY,
			name         TEXT NOT NULL,
			email        TEXT,
			phone        TEXT,
			phone_digits TEXT,
			source       TEXT NOT NULL DEFAULT 'manual',
			status       TEXT NOT NULL DEFAULT 'new',
			external_id  TEXT UNIQUE,
			page_id      TEXT,
			form_id      TEXT,
			raw_fields   JSONB,
			assigned_to  BIGINT REFERENCES public.users(id) ON DELETE SET NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_leads_phone_digits ON public.leads (phone_digits);`,
		`CREATE INDEX IF NOT EXISTS idx_leads_email_lower ON public.leads ((LOWER(email)));`,

		// DEALS
		`CREATE TABLE IF NOT EXISTS public.deals (
			id                  BIGSERIAL PRIMARY KEY,
			lead_id             UUID NOT NULL REFERENCES public.leads(id) ON DELETE CASCADE,
			stage               TEXT NOT NULL DEFAULT 'prospecting',
			value               NUMERIC(14,2),
			probability         INTEGER,
			expected_close_date DATE,
			assigned_to         BIGINT REFERENCES public.users(id) ON DELETE SET NULL,
			created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_deals_lead ON public.deals (lead_id);`,

		// INTEGRATIONS: uma configuração ativa por tipo (meta/google/twilio/...)
		`CREATE TABLE IF NOT EXISTS public.integrations (
			id         BIGSERIAL PRIMARY KEY,
			type       TEXT NOT NULL UNIQUE,
			config     JSONB NOT NULL DEFAULT '{}'::jsonb,
			status     TEXT NOT NULL DEFAULT 'inactive',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,

		// FACEBOOK CONNECTIONS: credencial por página/formulário de Lead Ads
		`CREATE TABLE IF NOT EXISTS public.facebook_connections (
			id               BIGSERIAL PRIMARY KEY,
			user_id          BIGINT REFERENCES public.users(id) ON DELETE SET NULL,
			name             TEXT,
			access_token     TEXT NOT NULL,
			business_id      TEXT,
			business_name    TEXT,
			ad_account_id    TEXT,
			ad_account_name  TEXT,
			page_id          TEXT NOT NULL,
			page_name        TEXT,
			page_picture_url TEXT,
			form_id          TEXT,
			form_name        TEXT,
			status           TEXT NOT NULL DEFAULT 'active',
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_fb_connections_page ON public.facebook_connections (page_id);`,

		// MESSAGES: append-only; provider_message_id é a chave de dedup
		// para reentregas do gateway
		`CREATE TABLE IF NOT EXISTS public.messages (
			id                  BIGSERIAL PRIMARY KEY,
			provider_message_id TEXT,
			instance_id         TEXT NOT NULL,
			lead_id             UUID REFERENCES public.leads(id) ON DELETE SET NULL,
			remote_jid          TEXT NOT NULL,
			from_me             BOOLEAN NOT NULL DEFAULT FALSE,
			content             TEXT,
			media_url           TEXT,
			media_type          TEXT NOT NULL DEFAULT 'text',
			timestamp           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			status              TEXT NOT NULL DEFAULT 'sent'
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_messages_provider_id
			ON public.messages (provider_message_id) WHERE provider_message_id IS NOT NULL;`,
		`CREATE INDEX IF NOT EXISTS idx_messages_instance_remote ON public.messages (instance_id, remote_jid);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON public.messages (timestamp);`,

		// ROUND ROBIN: linha única (id=1) com cursor de atribuição
		`CREATE TABLE IF NOT EXISTS public.round_robin_settings (
			id                    INTEGER PRIMARY KEY CHECK (id = 1),
			is_active             BOOLEAN NOT NULL DEFAULT FALSE,
			included_user_ids     BIGINT[] NOT NULL DEFAULT '{}',
			last_assigned_user_id BIGINT,
			updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`INSERT INTO public.round_robin_settings (id, is_active) VALUES (1, FALSE)
		 ON CONFLICT (id) DO NOTHING;`,

		// WEBHOOKS LOG: payload bruto de cada entrega, para auditoria
		`CREATE TABLE IF NOT EXISTS public.webhooks_log (
			id         BIGSERIAL PRIMARY KEY,
			source     TEXT,
			event      TEXT,
			payload    JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
	}

	for _, q := range stmts {
		if _, err := db.Exec(ctx, q); err != nil {
			return err
		}
	}
	return nil
}
