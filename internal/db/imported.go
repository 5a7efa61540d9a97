package db

import (
	"database/sql"
	"fmt"
)

// LoadImportedFiles returns the import files already loaded as a
// map from file_path to file_mtime.
func (db *DB) LoadImportedFiles() (map[string]int64, error) {
	rows, err := db.reader.Query(
		"SELECT file_path, file_mtime FROM imported_files",
	)
	if err != nil {
		return nil, fmt.Errorf("loading imported files: %w", err)
	}
	defer rows.Close()

	result := make(map[string]int64)
	for rows.Next() {
		var path string
		var mtime int64
		if err := rows.Scan(&path, &mtime); err != nil {
			return nil, fmt.Errorf(
				"scanning imported file: %w", err,
			)
		}
		result[path] = mtime
	}
	return result, rows.Err()
}

// MarkImported records that path was loaded at mtime.
func (db *DB) MarkImported(path string, mtime int64) error {
	return db.Update(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO imported_files (file_path, file_mtime)
			VALUES (?, ?)
			ON CONFLICT(file_path) DO UPDATE SET
				file_mtime = excluded.file_mtime`,
			path, mtime,
		)
		if err != nil {
			return fmt.Errorf("marking %s imported: %w", path, err)
		}
		return nil
	})
}

// ForgetImported removes a single entry so the file is loaded
// again on the next pass.
func (db *DB) ForgetImported(path string) error {
	return db.Update(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			"DELETE FROM imported_files WHERE file_path = ?", path,
		)
		return err
	})
}
