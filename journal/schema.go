package journal

const Schema = `
CREATE TABLE IF NOT EXISTS scenario_report (
	run_id TEXT NOT NULL,
	trade_id TEXT NOT NULL,
	factor TEXT NOT NULL,
	kind TEXT NOT NULL,
	base_npv REAL NOT NULL,
	scenario_npv REAL NOT NULL,
	difference REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS sensitivity_report (
	run_id TEXT NOT NULL,
	trade_id TEXT NOT NULL,
	factor TEXT NOT NULL,
	shift_size REAL NOT NULL,
	base_npv REAL NOT NULL,
	delta REAL NOT NULL,
	gamma REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS crossgamma_report (
	run_id TEXT NOT NULL,
	trade_id TEXT NOT NULL,
	factor_1 TEXT NOT NULL,
	shift_size_1 REAL NOT NULL,
	factor_2 TEXT NOT NULL,
	shift_size_2 REAL NOT NULL,
	base_npv REAL NOT NULL,
	cross_gamma REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS collateral_balances (
	run_id TEXT NOT NULL,
	netting_set_id TEXT NOT NULL,
	scenario INTEGER NOT NULL,
	date DATETIME NOT NULL,
	balance REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS exposure (
	run_id TEXT NOT NULL,
	netting_set_id TEXT NOT NULL,
	collateralized INTEGER NOT NULL,
	date DATETIME NOT NULL,
	ee REAL NOT NULL,
	epe REAL NOT NULL,
	ene REAL NOT NULL,
	pfe REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sensitivity_run ON sensitivity_report(run_id, trade_id);
CREATE INDEX IF NOT EXISTS idx_balances_run ON collateral_balances(run_id, netting_set_id, scenario, date);
`
