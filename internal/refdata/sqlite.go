package refdata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the reference tables in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens or creates the reference database at path and ensures the
// schema exists.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open reference db: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create reference schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS ports (
		port_id INTEGER PRIMARY KEY AUTOINCREMENT,
		port_number INTEGER NOT NULL,
		protocol TEXT NOT NULL,
		service_name TEXT NOT NULL,
		description TEXT,
		is_well_known INTEGER NOT NULL DEFAULT 0,
		UNIQUE(port_number, protocol)
	);
	CREATE TABLE IF NOT EXISTS mac_vendors (
		vendor_id INTEGER PRIMARY KEY AUTOINCREMENT,
		mac_prefix TEXT NOT NULL UNIQUE,
		vendor_name TEXT NOT NULL,
		vendor_details TEXT
	);
	CREATE TABLE IF NOT EXISTS device_signatures (
		signature_id INTEGER PRIMARY KEY AUTOINCREMENT,
		device_type TEXT NOT NULL UNIQUE,
		manufacturer TEXT,
		confidence_threshold REAL NOT NULL,
		description TEXT
	);
	CREATE TABLE IF NOT EXISTS traffic_patterns (
		pattern_id INTEGER PRIMARY KEY AUTOINCREMENT,
		signature_id INTEGER NOT NULL REFERENCES device_signatures(signature_id) ON DELETE CASCADE,
		pattern_type TEXT NOT NULL,
		pattern_value TEXT NOT NULL,
		weight REAL NOT NULL,
		description TEXT,
		UNIQUE(signature_id, pattern_type, pattern_value)
	);
	CREATE TABLE IF NOT EXISTS known_devices (
		device_id INTEGER PRIMARY KEY AUTOINCREMENT,
		ip_address TEXT,
		mac_address TEXT,
		device_type TEXT NOT NULL,
		friendly_name TEXT,
		last_seen INTEGER NOT NULL -- Unix timestamp
	);
	CREATE INDEX IF NOT EXISTS idx_known_devices_ip ON known_devices(ip_address);
	CREATE INDEX IF NOT EXISTS idx_known_devices_mac ON known_devices(mac_address);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Seed inserts the default reference data. Rows that already exist are left
// untouched, so Seed can run on every start.
func (s *SQLiteStore) Seed(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, p := range DefaultPorts {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ports (port_number, protocol, service_name, description, is_well_known)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING`,
			p.Port, p.Transport, p.Service, p.Description, p.WellKnown); err != nil {
			return fmt.Errorf("seed port %d: %w", p.Port, err)
		}
	}

	for _, v := range DefaultVendors {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO mac_vendors (mac_prefix, vendor_name, vendor_details)
			VALUES (?, ?, ?)
			ON CONFLICT DO NOTHING`,
			normalizePrefix(v.Prefix), v.Vendor, v.Details); err != nil {
			return fmt.Errorf("seed vendor %s: %w", v.Prefix, err)
		}
	}

	for _, sig := range DefaultSignatures {
		if err := addSignature(ctx, tx, sig); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// AddSignature stores sig and its rules, replacing nothing that already exists.
func (s *SQLiteStore) AddSignature(ctx context.Context, sig Signature) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := addSignature(ctx, tx, sig); err != nil {
		return err
	}
	return tx.Commit()
}

func addSignature(ctx context.Context, tx *sql.Tx, sig Signature) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO device_signatures (device_type, manufacturer, confidence_threshold, description)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(device_type) DO NOTHING`,
		sig.DeviceType, sig.Manufacturer, sig.Threshold, sig.Description); err != nil {
		return fmt.Errorf("seed signature %s: %w", sig.DeviceType, err)
	}

	var id int64
	if err := tx.QueryRowContext(ctx,
		`SELECT signature_id FROM device_signatures WHERE device_type = ?`, sig.DeviceType).Scan(&id); err != nil {
		return fmt.Errorf("lookup signature %s: %w", sig.DeviceType, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO traffic_patterns (signature_id, pattern_type, pattern_value, weight, description)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range sig.Rules {
		if _, err := stmt.ExecContext(ctx, id, r.Type, r.Value, r.Weight, r.Description); err != nil {
			return fmt.Errorf("seed rule %s %s: %w", r.Type, r.Value, err)
		}
	}
	return nil
}

// AddPort upserts a port registry entry.
func (s *SQLiteStore) AddPort(ctx context.Context, p PortEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ports (port_number, protocol, service_name, description, is_well_known)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(port_number, protocol) DO UPDATE SET
			service_name = excluded.service_name,
			description = excluded.description,
			is_well_known = excluded.is_well_known`,
		p.Port, p.Transport, p.Service, p.Description, p.WellKnown)
	return err
}

// AddKnownDevice records a confirmed device.
func (s *SQLiteStore) AddKnownDevice(ctx context.Context, d KnownDevice) error {
	if d.LastSeen.IsZero() {
		d.LastSeen = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO known_devices (ip_address, mac_address, device_type, friendly_name, last_seen)
		VALUES (?, ?, ?, ?, ?)`,
		d.IP, d.MAC, d.DeviceType, d.FriendlyName, d.LastSeen.Unix())
	return err
}

func (s *SQLiteStore) KnownDevice(ctx context.Context, ip, mac string) (*KnownDevice, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(ip_address, ''), COALESCE(mac_address, ''), device_type, COALESCE(friendly_name, ''), last_seen
		FROM known_devices
		WHERE (? != '' AND ip_address = ?) OR (? != '' AND mac_address = ?)
		ORDER BY last_seen DESC
		LIMIT 1`, ip, ip, mac, mac)

	var d KnownDevice
	var lastSeen int64
	err := row.Scan(&d.IP, &d.MAC, &d.DeviceType, &d.FriendlyName, &lastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("known device lookup: %w", err)
	}
	d.LastSeen = time.Unix(lastSeen, 0)
	return &d, nil
}

func (s *SQLiteStore) MACVendor(ctx context.Context, prefix string) (*VendorEntry, error) {
	var v VendorEntry
	err := s.db.QueryRowContext(ctx, `
		SELECT mac_prefix, vendor_name, COALESCE(vendor_details, '')
		FROM mac_vendors WHERE mac_prefix = ?`, normalizePrefix(prefix)).Scan(&v.Prefix, &v.Vendor, &v.Details)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mac vendor lookup: %w", err)
	}
	return &v, nil
}

func (s *SQLiteStore) PortService(ctx context.Context, port int) (*PortEntry, error) {
	var p PortEntry
	err := s.db.QueryRowContext(ctx, `
		SELECT port_number, protocol, service_name, COALESCE(description, ''), is_well_known
		FROM ports
		WHERE port_number = ? AND is_well_known = 1
		LIMIT 1`, port).Scan(&p.Port, &p.Transport, &p.Service, &p.Description, &p.WellKnown)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("port lookup: %w", err)
	}
	return &p, nil
}

// Signatures returns every signature with its rules in insertion order.
func (s *SQLiteStore) Signatures(ctx context.Context) ([]Signature, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ds.signature_id, ds.device_type, COALESCE(ds.manufacturer, ''), ds.confidence_threshold,
			COALESCE(ds.description, ''), tp.pattern_type, tp.pattern_value, tp.weight, COALESCE(tp.description, '')
		FROM device_signatures ds
		JOIN traffic_patterns tp ON ds.signature_id = tp.signature_id
		ORDER BY ds.signature_id, tp.pattern_id`)
	if err != nil {
		return nil, fmt.Errorf("signature query: %w", err)
	}
	defer rows.Close()

	var out []Signature
	index := make(map[int64]int)
	for rows.Next() {
		var (
			id  int64
			sig Signature
			r   Rule
		)
		if err := rows.Scan(&id, &sig.DeviceType, &sig.Manufacturer, &sig.Threshold, &sig.Description,
			&r.Type, &r.Value, &r.Weight, &r.Description); err != nil {
			return nil, err
		}
		i, ok := index[id]
		if !ok {
			i = len(out)
			index[id] = i
			out = append(out, sig)
		}
		out[i].Rules = append(out[i].Rules, r)
	}
	return out, rows.Err()
}
