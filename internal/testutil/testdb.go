// Package testutil holds sqlite fixtures shared by service tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var dbSeq atomic.Int64

// OpenDB opens an isolated in-memory database and applies the given schema statements.
func OpenDB(t *testing.T, schema ...string) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:memdb_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return db
}

func SnowflakeNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

// CountRows returns the result of a COUNT(*) query.
func CountRows(t *testing.T, db *gorm.DB, query string, args ...any) int64 {
	t.Helper()
	var got int64
	if err := db.Raw(query, args...).Scan(&got).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return got
}

const OfferingsTable = `CREATE TABLE offerings (
	id INTEGER PRIMARY KEY,
	code TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	category TEXT NOT NULL,
	description TEXT,
	unit_price INTEGER NOT NULL,
	currency TEXT NOT NULL,
	features TEXT,
	is_active BOOLEAN NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
)`

const OrdersTable = `CREATE TABLE orders (
	id INTEGER PRIMARY KEY,
	user_id TEXT NOT NULL,
	contact_name TEXT NOT NULL,
	contact_email TEXT NOT NULL,
	contact_phone TEXT,
	cart_session_id TEXT,
	total_amount INTEGER NOT NULL,
	currency TEXT NOT NULL,
	status TEXT NOT NULL,
	provider_transaction_id TEXT,
	failure_reason TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	paid_at DATETIME,
	failed_at DATETIME
)`

const OrderLinesTable = `CREATE TABLE order_lines (
	id INTEGER PRIMARY KEY,
	order_id INTEGER NOT NULL,
	line_no INTEGER NOT NULL,
	offering_id INTEGER NOT NULL,
	name TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	price_at_purchase INTEGER NOT NULL,
	amount INTEGER NOT NULL,
	UNIQUE (order_id, line_no)
)`

const LaunchRequestsTable = `CREATE TABLE launch_requests (
	id INTEGER PRIMARY KEY,
	user_id TEXT NOT NULL,
	current_step INTEGER NOT NULL DEFAULT 1,
	is_started BOOLEAN NOT NULL DEFAULT 0,
	is_form_complete BOOLEAN NOT NULL DEFAULT 0,
	form_completed_at DATETIME,
	full_name TEXT,
	national_id TEXT,
	email TEXT,
	phone TEXT,
	nationality TEXT,
	shareholders TEXT,
	company_name TEXT,
	company_type TEXT,
	business_activity TEXT,
	city TEXT,
	capital_amount INTEGER,
	brand_name TEXT,
	brand_colors TEXT,
	logo_url TEXT,
	brand_style TEXT,
	website_description TEXT,
	website_domain TEXT,
	website_pages TEXT,
	website_contact_email TEXT,
	billing_name TEXT,
	billing_tax_id TEXT,
	billing_email TEXT,
	billing_address TEXT,
	package_offering_id INTEGER,
	payment_status TEXT NOT NULL DEFAULT 'pending',
	provider_transaction_id TEXT,
	paid_amount INTEGER,
	paid_currency TEXT,
	paid_at DATETIME,
	payment_failure_reason TEXT,
	admin_status TEXT NOT NULL DEFAULT 'new',
	fulfillment_started_at DATETIME,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
)`

const LaunchRequestsOpenIndex = `CREATE UNIQUE INDEX ux_launch_requests_open_per_user
	ON launch_requests (user_id) WHERE admin_status <> 'completed'`

const LaunchProgressTable = `CREATE TABLE launch_progress (
	id INTEGER PRIMARY KEY,
	launch_request_id INTEGER NOT NULL UNIQUE,
	user_id TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
)`

const LaunchDeliverablesTable = `CREATE TABLE launch_deliverables (
	id INTEGER PRIMARY KEY,
	launch_progress_id INTEGER NOT NULL,
	kind TEXT NOT NULL,
	position INTEGER NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	progress INTEGER NOT NULL DEFAULT 0,
	delivery_url TEXT,
	current_step_label TEXT,
	next_step_label TEXT,
	updated_at DATETIME NOT NULL,
	UNIQUE (launch_progress_id, kind)
)`

const CheckoutAttemptsTable = `CREATE TABLE checkout_attempts (
	id INTEGER PRIMARY KEY,
	target_type TEXT NOT NULL,
	target_id INTEGER NOT NULL,
	offering_id INTEGER,
	user_id TEXT NOT NULL,
	amount INTEGER NOT NULL,
	currency TEXT NOT NULL,
	state TEXT NOT NULL,
	provider TEXT NOT NULL,
	provider_transaction_id TEXT,
	client_secret TEXT,
	hosted_session_id TEXT UNIQUE,
	hosted_url TEXT,
	fallback_trigger TEXT,
	fallback_deadline DATETIME,
	embedded_ready_at DATETIME,
	failure_reason TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	completed_at DATETIME
)`

const CheckoutAttemptsLiveIndex = `CREATE UNIQUE INDEX ux_checkout_attempts_live_target
	ON checkout_attempts (target_type, target_id) WHERE state NOT IN ('succeeded', 'failed')`

const PaymentOverpaymentsTable = `CREATE TABLE payment_overpayments (
	id INTEGER PRIMARY KEY,
	attempt_id INTEGER NOT NULL,
	target_type TEXT NOT NULL,
	target_id INTEGER NOT NULL,
	provider TEXT NOT NULL,
	transaction_id TEXT NOT NULL,
	settled_transaction_id TEXT,
	amount INTEGER NOT NULL,
	currency TEXT NOT NULL,
	detected_at DATETIME NOT NULL,
	refunded_at DATETIME,
	UNIQUE (provider, transaction_id)
)`

const PaymentEventsTable = `CREATE TABLE payment_events (
	id INTEGER PRIMARY KEY,
	provider TEXT NOT NULL,
	provider_event_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	target_type TEXT,
	target_id INTEGER,
	payload TEXT NOT NULL,
	received_at DATETIME NOT NULL,
	processed_at DATETIME,
	UNIQUE (provider, provider_event_id)
)`

const BenefitsTable = `CREATE TABLE benefits (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	partner TEXT NOT NULL,
	description TEXT,
	is_active BOOLEAN NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL
)`

const BenefitCodesTable = `CREATE TABLE benefit_codes (
	id INTEGER PRIMARY KEY,
	benefit_id INTEGER NOT NULL,
	user_id TEXT NOT NULL,
	code TEXT NOT NULL UNIQUE,
	is_used BOOLEAN NOT NULL DEFAULT 0,
	used_at DATETIME,
	created_at DATETIME NOT NULL,
	UNIQUE (benefit_id, user_id)
)`

const DomainEventsTable = `CREATE TABLE domain_events (
	id TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	aggregate_type TEXT NOT NULL,
	aggregate_id TEXT NOT NULL,
	payload TEXT,
	occurred_at DATETIME NOT NULL,
	claimed_at DATETIME,
	dispatched_at DATETIME,
	UNIQUE (event_type, aggregate_type, aggregate_id)
)`

const AuditLogsTable = `CREATE TABLE audit_logs (
	id INTEGER PRIMARY KEY,
	actor_type TEXT NOT NULL,
	actor_id TEXT,
	action TEXT NOT NULL,
	target_type TEXT NOT NULL,
	target_id TEXT,
	metadata TEXT,
	ip_address TEXT,
	user_agent TEXT,
	created_at DATETIME NOT NULL
)`
