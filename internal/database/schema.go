package database

// Business tables MUST keep CHECK constraints in sync with validation.enums.
var tables = []struct {
	name string
	ddl  string
}{
	{"users", `CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		display_name TEXT DEFAULT '',
		role TEXT DEFAULT 'user' CHECK(role IN ('admin','user','readonly')),
		active INTEGER DEFAULT 1,
		failed_login_attempts INTEGER DEFAULT 0,
		locked_until DATETIME,
		last_login DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`},
	{"sessions", `CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		expires_at DATETIME NOT NULL,
		last_activity DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	)`},
	{"suppliers", `CREATE TABLE IF NOT EXISTS suppliers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		contact_name TEXT DEFAULT '',
		phone TEXT DEFAULT '',
		email TEXT DEFAULT '',
		address TEXT DEFAULT '',
		tax_code TEXT DEFAULT '',
		country TEXT DEFAULT '',
		notes TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`},
	{"customers", `CREATE TABLE IF NOT EXISTS customers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		company TEXT DEFAULT '',
		contact_name TEXT DEFAULT '',
		phone TEXT DEFAULT '',
		email TEXT DEFAULT '',
		address TEXT DEFAULT '',
		tax_code TEXT DEFAULT '',
		notes TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`},
	{"products", `CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL,
		brand TEXT DEFAULT '',
		machine_model TEXT DEFAULT '',
		category TEXT DEFAULT '',
		unit TEXT DEFAULT 'cái',
		stock REAL,
		cost_price REAL CHECK(cost_price IS NULL OR cost_price >= 0),
		sale_price REAL CHECK(sale_price IS NULL OR sale_price >= 0),
		supplier_id INTEGER,
		location TEXT DEFAULT '',
		notes TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (supplier_id) REFERENCES suppliers(id) ON DELETE SET NULL
	)`},
	{"quotations", `CREATE TABLE IF NOT EXISTS quotations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT UNIQUE NOT NULL,
		customer_id INTEGER NOT NULL,
		status TEXT DEFAULT 'draft' CHECK(status IN ('draft','sent','accepted','rejected','expired')),
		valid_until TEXT DEFAULT '',
		vat_rate REAL DEFAULT 10,
		notes TEXT DEFAULT '',
		subtotal REAL DEFAULT 0,
		vat_amount REAL DEFAULT 0,
		total REAL DEFAULT 0,
		created_by TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (customer_id) REFERENCES customers(id) ON DELETE RESTRICT
	)`},
	{"quotation_items", `CREATE TABLE IF NOT EXISTS quotation_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		quotation_id INTEGER NOT NULL,
		product_id INTEGER,
		description TEXT DEFAULT '',
		qty REAL NOT NULL CHECK(qty > 0),
		unit_price REAL DEFAULT 0 CHECK(unit_price >= 0),
		discount REAL DEFAULT 0 CHECK(discount >= 0 AND discount <= 100),
		line_total REAL DEFAULT 0,
		FOREIGN KEY (quotation_id) REFERENCES quotations(id) ON DELETE CASCADE,
		FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE RESTRICT
	)`},
	{"orders", `CREATE TABLE IF NOT EXISTS orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT UNIQUE NOT NULL,
		quotation_id INTEGER,
		customer_id INTEGER NOT NULL,
		status TEXT DEFAULT 'pending' CHECK(status IN ('pending','confirmed','shipping','delivered','cancelled')),
		payment_status TEXT DEFAULT 'unpaid' CHECK(payment_status IN ('unpaid','partial','paid')),
		delivery_date TEXT DEFAULT '',
		vat_rate REAL DEFAULT 10,
		notes TEXT DEFAULT '',
		subtotal REAL DEFAULT 0,
		vat_amount REAL DEFAULT 0,
		total REAL DEFAULT 0,
		created_by TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (quotation_id) REFERENCES quotations(id) ON DELETE SET NULL,
		FOREIGN KEY (customer_id) REFERENCES customers(id) ON DELETE RESTRICT
	)`},
	{"order_items", `CREATE TABLE IF NOT EXISTS order_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id INTEGER NOT NULL,
		product_id INTEGER,
		description TEXT DEFAULT '',
		qty REAL NOT NULL CHECK(qty > 0),
		unit_price REAL DEFAULT 0 CHECK(unit_price >= 0),
		discount REAL DEFAULT 0 CHECK(discount >= 0 AND discount <= 100),
		line_total REAL DEFAULT 0,
		FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE,
		FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE RESTRICT
	)`},
	{"deals", `CREATE TABLE IF NOT EXISTS deals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		customer_id INTEGER,
		value REAL,
		stage TEXT DEFAULT 'lead' CHECK(stage IN ('lead','qualified','proposal','negotiation','won','lost')),
		probability INTEGER DEFAULT 10 CHECK(probability >= 0 AND probability <= 100),
		expected_close TEXT DEFAULT '',
		position INTEGER DEFAULT 0,
		notes TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (customer_id) REFERENCES customers(id) ON DELETE SET NULL
	)`},
	{"audit_log", `CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT DEFAULT 'system',
		action TEXT NOT NULL,
		module TEXT NOT NULL,
		record_id TEXT DEFAULT '',
		summary TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`},
}

var indexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_products_category ON products(category)`,
	`CREATE INDEX IF NOT EXISTS idx_products_supplier ON products(supplier_id)`,
	`CREATE INDEX IF NOT EXISTS idx_quotation_items_quotation ON quotation_items(quotation_id)`,
	`CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders(customer_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_quotation ON orders(quotation_id) WHERE quotation_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_deals_stage ON deals(stage, position)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_module ON audit_log(module, created_at)`,
}

// BusinessTables lists the data tables in dependency-safe delete order.
var BusinessTables = []string{
	"order_items", "orders", "quotation_items", "quotations",
	"deals", "products", "customers", "suppliers", "audit_log",
}
