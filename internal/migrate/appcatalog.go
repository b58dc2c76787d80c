package migrate

// AppCatalog is the revision graph for the production schema. The
// integrations and narratives branches were developed concurrently and
// reconcile in a merge revision before the identifier coercion.
func AppCatalog() (*Catalog, error) {
	return NewCatalog(
		Revision{
			ID:     "0001_identity_base",
			Branch: "core",
			Up: Ops(
				CreateTable("organizations", `
					create table organizations (
						id uuid primary key,
						name text not null,
						slug text not null unique,
						subscription_tier text not null default 'solo',
						active boolean not null default true,
						created_at timestamptz not null default now(),
						updated_at timestamptz not null default now(),
						deleted_at timestamptz
					)`),
				CreateTable("users", `
					create table users (
						id uuid primary key,
						external_subject text not null unique,
						email text not null,
						first_name text not null default '',
						last_name text not null default '',
						image_url text not null default '',
						role text not null default 'solo',
						active boolean not null default true,
						organization_id char(36),
						last_login_at timestamptz,
						created_at timestamptz not null default now(),
						updated_at timestamptz not null default now(),
						deleted_at timestamptz
					)`),
				CreateTable("audit_entries", `
					create table audit_entries (
						id char(26) primary key,
						organization_id char(36) not null default '',
						actor_id char(36) not null default '',
						subject_id char(36) not null default '',
						action text not null,
						detail jsonb not null default '{}',
						created_at timestamptz not null default now()
					)`),
				Exec(`create index if not exists audit_entries_org_created_idx
					on audit_entries (organization_id, created_at desc)`),
			),
			Down: Ops(
				DropTable("audit_entries"),
				DropTable("users"),
				DropTable("organizations"),
			),
		},
		Revision{
			ID:      "0002_deals",
			Parents: []string{"0001_identity_base"},
			Branch:  "core",
			Up: CreateTable("deals", `
				create table deals (
					id char(36) primary key,
					organization_id char(36) not null,
					name text not null,
					status text not null default 'active',
					created_at timestamptz not null default now(),
					updated_at timestamptz not null default now()
				)`),
			Down: DropTable("deals"),
		},
		Revision{
			ID:      "0003_financial_connections",
			Parents: []string{"0002_deals"},
			Branch:  "integrations",
			Up: Ops(
				CreateTable("financial_connections", `
					create table financial_connections (
						id char(36) primary key,
						deal_id char(36) not null references deals (id),
						organization_id char(36) not null,
						platform text not null,
						status text not null,
						external_org_id text not null default '',
						external_org_name text not null default '',
						sealed_access_token text not null default '',
						sealed_refresh_token text not null default '',
						token_expires_at timestamptz,
						created_at timestamptz not null default now(),
						updated_at timestamptz not null default now(),
						deleted_at timestamptz
					)`),
				Exec(`create unique index if not exists financial_connections_active_idx
					on financial_connections (deal_id, platform) where status = 'active'`),
				CreateTable("oauth_state_tickets", `
					create table oauth_state_tickets (
						state char(26) primary key,
						deal_id char(36) not null,
						organization_id char(36) not null,
						platform text not null,
						user_id char(36) not null,
						connection_id char(36) not null default '',
						expires_at timestamptz not null,
						redeemed_at timestamptz,
						created_at timestamptz not null default now()
					)`),
			),
			Down: Ops(
				DropTable("oauth_state_tickets"),
				DropTable("financial_connections"),
			),
		},
		Revision{
			ID:      "0004_financial_statements",
			Parents: []string{"0003_financial_connections"},
			Branch:  "integrations",
			Up: CreateTable("financial_statements", `
				create table financial_statements (
					id char(36) primary key,
					connection_id char(36) not null references financial_connections (id),
					deal_id char(36) not null,
					organization_id char(36) not null,
					platform text not null,
					statement_type text not null,
					period_end date not null,
					currency text not null default '',
					quality text not null default 'ok',
					total_assets numeric(20,3),
					total_liabilities numeric(20,3),
					total_equity numeric(20,3),
					figures jsonb not null default '{}',
					created_at timestamptz not null default now(),
					updated_at timestamptz not null default now(),
					unique (connection_id, statement_type, period_end)
				)`),
			Down: DropTable("financial_statements"),
		},
		Revision{
			ID:      "0005_deal_narratives",
			Parents: []string{"0002_deals"},
			Branch:  "narratives",
			Up: CreateTable("deal_narratives", `
				create table deal_narratives (
					id char(36) primary key,
					deal_id char(36) not null references deals (id),
					organization_id char(36) not null,
					version integer not null,
					supersedes_id char(36),
					content text not null,
					summary text not null default '',
					model_tag text not null default '',
					prompt_version text not null default '',
					token_count integer not null default 0,
					generation_ms bigint not null default 0,
					readiness_score double precision,
					financial_score double precision,
					operational_score double precision,
					growth_score double precision,
					risk_score double precision,
					created_by char(36) not null default '',
					created_at timestamptz not null default now(),
					unique (deal_id, version)
				)`),
			Down: DropTable("deal_narratives"),
		},
		Revision{
			ID:      "0006_merge_branches",
			Parents: []string{"0004_financial_statements", "0005_deal_narratives"},
		},
		Revision{
			ID:      "0007_identity_char_ids",
			Parents: []string{"0006_merge_branches"},
			// users.id and organizations.id predate the char(36) id
			// convention. The coercion and the foreign keys that depend
			// on it must land in the same batch.
			Up: Ops(
				CoerceUUIDColumnToChar36("users", "id"),
				CoerceUUIDColumnToChar36("organizations", "id"),
				AddForeignKey("users_organization_id_fkey", "users", "organization_id", "organizations", "id"),
				AddForeignKey("deals_organization_id_fkey", "deals", "organization_id", "organizations", "id"),
			),
			Down: Ops(
				DropConstraint("deals", "deals_organization_id_fkey"),
				DropConstraint("users", "users_organization_id_fkey"),
				Exec(`alter table organizations alter column id type uuid using trim(id)::uuid`),
				Exec(`alter table users alter column id type uuid using trim(id)::uuid`),
			),
		},
		Revision{
			ID:      "0008_connection_sync_tracking",
			Parents: []string{"0007_identity_char_ids"},
			Up: Ops(
				AddColumn("financial_connections", "last_synced_at", "timestamptz"),
				AddColumn("financial_connections", "last_sync_status", "text not null default ''"),
			),
			Down: Ops(
				DropColumn("financial_connections", "last_sync_status"),
				DropColumn("financial_connections", "last_synced_at"),
			),
		},
		Revision{
			ID:      "0009_financial_ratios",
			Parents: []string{"0008_connection_sync_tracking"},
			Up: CreateTable("financial_ratios", `
				create table financial_ratios (
					id char(26) primary key,
					statement_id char(36) not null references financial_statements (id) on delete cascade,
					deal_id char(36) not null,
					period_label text not null,
					name text not null,
					value numeric(24,6),
					quality text not null,
					created_at timestamptz not null default now(),
					unique (statement_id, name)
				)`),
			Down: DropTable("financial_ratios"),
		},
	)
}
