package sessiondb

func (s *Store) InsertSession(record *SessionRecord) error {
	_, err := s.db.Exec(
		"INSERT INTO measurement_sessions "+
			"(uuid, port, started_at, ended_at, "+
			"device_product_name, device_serial_number, device_firmware_version, device_calibration_due, "+
			"probe_product_name, probe_serial_number, probe_field_type, probe_calibration_due, "+
			"standard_name, frequency_mhz) "+
			"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		record.Uuid,
		record.Port,
		record.StartedAt,
		record.EndedAt,
		record.DeviceProductName,
		record.DeviceSerialNumber,
		record.DeviceFirmwareVersion,
		record.DeviceCalibrationDue,
		record.ProbeProductName,
		record.ProbeSerialNumber,
		record.ProbeFieldType,
		record.ProbeCalibrationDue,
		record.StandardName,
		record.FrequencyMhz,
	)
	if err != nil {
		return err
	}
	return nil
}

// CloseSession marks a session as ended.
func (s *Store) CloseSession(sessionUuid string, endedAt int64) error {
	_, err := s.db.Exec(
		"UPDATE measurement_sessions SET ended_at = ? WHERE uuid = ?",
		endedAt,
		sessionUuid,
	)
	if err != nil {
		return err
	}
	return nil
}

// ListRecentSessions returns the newest sessions first.
func (s *Store) ListRecentSessions(limit int) ([]*SessionRecord, error) {
	query := `
		SELECT
			uuid, port, started_at, ended_at,
			device_product_name, device_serial_number, device_firmware_version, device_calibration_due,
			probe_product_name, probe_serial_number, probe_field_type, probe_calibration_due,
			standard_name, frequency_mhz
		FROM measurement_sessions
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*SessionRecord
	for rows.Next() {
		record := &SessionRecord{}
		if err := rows.Scan(
			&record.Uuid,
			&record.Port,
			&record.StartedAt,
			&record.EndedAt,
			&record.DeviceProductName,
			&record.DeviceSerialNumber,
			&record.DeviceFirmwareVersion,
			&record.DeviceCalibrationDue,
			&record.ProbeProductName,
			&record.ProbeSerialNumber,
			&record.ProbeFieldType,
			&record.ProbeCalibrationDue,
			&record.StandardName,
			&record.FrequencyMhz,
		); err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
