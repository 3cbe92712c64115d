package store

import "database/sql"

// execRequireRows turns a zero-row update into notFoundErr.
func execRequireRows(result sql.Result, err, notFoundErr error) error {
	if err != nil {
		return err
	}
	n, affectedErr := result.RowsAffected()
	if affectedErr != nil {
		return affectedErr
	}
	if n == 0 {
		return notFoundErr
	}
	return nil
}

// insertedRow reports whether an INSERT ... ON CONFLICT DO NOTHING wrote a row.
func insertedRow(result sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, affectedErr := result.RowsAffected()
	if affectedErr != nil {
		return false, affectedErr
	}
	return n > 0, nil
}
